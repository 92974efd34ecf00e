package adapter

import "fmt"

// Defaults returns the built-in sources in their fixed result order.
func Defaults() []*Adapter {
	return []*Adapter{MobileDE(), AutoScout24(), Kleinanzeigen()}
}

// Select returns the default adapters whose names appear in names, keeping
// the default order. An empty names list selects every source.
func Select(names []string) ([]*Adapter, error) {
	all := Defaults()
	if len(names) == 0 {
		return all, nil
	}

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	out := make([]*Adapter, 0, len(names))
	for _, a := range all {
		if _, ok := want[a.Name()]; ok {
			out = append(out, a)
			delete(want, a.Name())
		}
	}
	for n := range want {
		return nil, fmt.Errorf("adapter: unknown source %q", n)
	}
	return out, nil
}
