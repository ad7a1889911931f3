package upstreamclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonecourier/zonecourier/internal/config"
)

func TestListDomainsStructuredJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"domains":[{"domain":"example.com","username":"bob"}],"has_more":false}`))
	}))
	defer srv.Close()

	c := New(config.UpstreamServerConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, time.Second, 100)
	domains, more, err := c.ListDomains(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, domains, 1)
	assert.Equal(t, "example.com", domains[0].Name)
	assert.Equal(t, "bob", domains[0].Username)
}

func TestListDomainsLegacyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("example.com=bob\nother.com=alice\n"))
	}))
	defer srv.Close()

	c := New(config.UpstreamServerConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, time.Second, 100)
	domains, _, err := c.ListDomains(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "example.com", domains[0].Name)
	assert.Equal(t, "other.com", domains[1].Name)
}

func TestGetRetriesWithSessionLoginOn401(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/CMD_LOGIN":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok"})
			w.WriteHeader(http.StatusOK)
		case "/CMD_API_SHOW_DOMAINS":
			attempts++
			if _, hasCookie := r.Header["Cookie"]; !hasCookie {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"domains":[],"has_more":false}`))
		}
	}))
	defer srv.Close()

	c := New(config.UpstreamServerConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, time.Second, 100)
	_, err := c.Get(context.Background(), "CMD_API_SHOW_DOMAINS", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "should retry once after session login")
}

func TestGetReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(config.UpstreamServerConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, time.Second, 100)
	_, err := c.Get(context.Background(), "CMD_API_SHOW_DOMAINS", url.Values{})
	assert.Error(t, err)
}

func TestEnsureExtraDNSServerAssertsRequiredFlags(t *testing.T) {
	var gotDNS, gotDomainCheck string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotDNS = r.FormValue("dns")
		gotDomainCheck = r.FormValue("domain_check")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(config.UpstreamServerConfig{BaseURL: srv.URL, Username: "u", Password: "p"}, time.Second, 100)
	err := c.EnsureExtraDNSServer(context.Background(), "https://node2.example.com", Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "yes", gotDNS)
	assert.Equal(t, "yes", gotDomainCheck)
}
