// Package backend defines the uniform contract every authoritative DNS
// daemon or database target implements, and the in-process registry the
// save/delete drainers use to resolve a target-backend-name set into
// live Driver values.
package backend

import "context"

// Driver is the uniform write/verify surface for anything this daemon
// pushes zone data into. WriteZone must be idempotent: a re-write fully
// replaces prior content for that zone, atomically from the driver's
// consumers' perspective. DeleteZone is idempotent too — deleting an
// absent zone is not an error.
type Driver interface {
	Name() string
	Enabled() bool

	WriteZone(ctx context.Context, zoneName, zoneText string) error
	DeleteZone(ctx context.Context, zoneName string) error
	ZoneExists(ctx context.Context, zoneName string) (bool, error)
	CountRecords(ctx context.Context, zoneName string) (int, error)

	// Reconcile removes everything the driver holds for zoneName that is
	// not present in zoneText, then rewrites. Safe to call on a zone that
	// is already consistent.
	Reconcile(ctx context.Context, zoneName, zoneText string) error
}

// Registry resolves backend names to live Drivers. The save/delete
// drainers use it to turn an explicit target-backend set (from a retry or
// a reconciler healing item) into concrete Drivers, and to enumerate
// "all enabled backends" when no explicit set is given.
type Registry struct {
	drivers []Driver
}

func NewRegistry(drivers ...Driver) *Registry {
	return &Registry{drivers: drivers}
}

// Enabled returns every driver currently enabled, in registration order.
func (r *Registry) Enabled() []Driver {
	out := make([]Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if d.Enabled() {
			out = append(out, d)
		}
	}
	return out
}

// Select resolves a set of backend names to Drivers, skipping names that
// no longer correspond to a configured driver (e.g. removed from config
// since the retry item was enqueued).
func (r *Registry) Select(names []string) []Driver {
	if len(names) == 0 {
		return r.Enabled()
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]Driver, 0, len(names))
	for _, d := range r.drivers {
		if want[d.Name()] {
			out = append(out, d)
		}
	}
	return out
}

// All returns every registered driver regardless of enabled state. The
// reconciler's backend-healing pass uses Enabled, not All.
func (r *Registry) All() []Driver {
	out := make([]Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}
