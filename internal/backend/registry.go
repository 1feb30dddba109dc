package backend

import "fmt"

var constructors = map[string]Constructor{}

// Register adds a named backend constructor to the process-wide registry.
// Backend packages call this from an init() func, e.g.:
//
//	func init() {
//		backend.Register("sql-dns", func(cfg map[string]string) (backend.Backend, error) { ... })
//	}
//
// This resolves the teacher's §9 "backend plugin discovery" note: instead
// of the teacher's per-vendor cmd/external-dns/main_<vendor>.go build-tag
// files, every backend this daemon ships registers into one map and
// config.Config.Backends (an ordered, non-empty list per spec.md §6) is
// resolved against it at startup.
func Register(name string, ctor Constructor) {
	constructors[name] = ctor
}

// Build resolves name to a Backend using its registered Constructor.
func Build(name string, cfg map[string]string) (Backend, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("backend: unknown backend class %q", name)
	}
	return ctor(cfg)
}
