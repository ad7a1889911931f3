// Command zonelint parses an RFC 1035 zone file and prints its
// normalized record set, for inspecting what a push would actually
// submit before sending it to zonecourierd.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/zonecourier/zonecourier/internal/zonefile"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: zonelint path/to/zonefile\n")
		os.Exit(2)
	}

	path := flag.Arg(0)
	text, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read zone file: %v\n", err)
		os.Exit(1)
	}

	z, err := zonefile.ParseText(string(text))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse zone: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ORIGIN: %s\n", z.Origin)
	fmt.Printf("DEFAULT_TTL: %d\n", z.DefaultTTL)
	if z.SOA != nil {
		fmt.Printf("SOA: serial=%d refresh=%d retry=%d expire=%d minimum=%d\n",
			z.SOA.Serial, z.SOA.Refresh, z.SOA.Retry, z.SOA.Expire, z.SOA.Minimum)
	}
	fmt.Printf("RECORDS (%d):\n", len(z.Records))

	recs := append([]zonefile.Record(nil), z.Records...)
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.TTL != b.TTL {
			return a.TTL < b.TTL
		}
		return a.RData < b.RData
	})

	for _, rr := range recs {
		fmt.Printf("  %s %d IN %s %s\n", rr.Name, rr.TTL, rr.Type, rr.RData)
	}

	n, err := zonefile.CountRecords(string(text))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to count records: %v\n", err)
		os.Exit(1)
	}
	if n != len(recs) {
		fmt.Fprintf(os.Stderr, "warning: CountRecords (%d) disagrees with parsed record count (%d)\n", n, len(recs))
	}
}
