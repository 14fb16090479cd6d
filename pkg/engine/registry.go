package engine

import "fmt"

// StaticRegistry is an in-memory Registry over a validated unit list.
type StaticRegistry struct {
	units []UnitSpec
	index map[string]int
}

// NewStaticRegistry validates units and returns a registry preserving their
// declaration order. Empty or duplicate names and references to units outside
// the list are configuration errors.
func NewStaticRegistry(units []UnitSpec) (*StaticRegistry, error) {
	r := &StaticRegistry{
		units: make([]UnitSpec, 0, len(units)),
		index: make(map[string]int, len(units)),
	}

	for _, u := range units {
		if u.Name == "" {
			return nil, NewConfigError(fmt.Sprintf("unit #%d has an empty name", len(r.units)+1), nil)
		}
		if _, exists := r.index[u.Name]; exists {
			return nil, NewConfigError(fmt.Sprintf("duplicate unit name: %s", u.Name), nil).WithUnit(u.Name)
		}
		for i, arg := range u.Args {
			if arg.IsRef() && arg.Value != nil {
				return nil, NewConfigError(
					fmt.Sprintf("argument %d of %s is both a literal and a reference", i, u.Name), nil).
					WithUnit(u.Name)
			}
		}
		r.index[u.Name] = len(r.units)
		r.units = append(r.units, u)
	}

	for _, u := range r.units {
		for _, dep := range u.Dependencies() {
			if _, ok := r.index[dep]; !ok {
				return nil, NewConfigError(
					fmt.Sprintf("unit %s depends on %s which is not in the registry", u.Name, dep),
					NewUnknownDependencyError(u.Name, dep)).WithUnit(u.Name)
			}
		}
	}

	return r, nil
}

// ListUnits returns a copy of the units in declaration order.
func (r *StaticRegistry) ListUnits() ([]UnitSpec, error) {
	out := make([]UnitSpec, len(r.units))
	copy(out, r.units)
	return out, nil
}

// Unit returns the named unit.
func (r *StaticRegistry) Unit(name string) (UnitSpec, bool) {
	i, ok := r.index[name]
	if !ok {
		return UnitSpec{}, false
	}
	return r.units[i], true
}

// Names returns unit names in declaration order.
func (r *StaticRegistry) Names() []string {
	names := make([]string, len(r.units))
	for i, u := range r.units {
		names[i] = u.Name
	}
	return names
}
