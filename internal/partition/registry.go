package partition

// Registry reports which partitions were unpacked for this run. Unpacking
// itself is decided upstream by the image pipeline; the registry only
// records the result.
type Registry struct {
	present map[Name]bool
}

// NewRegistry creates a Registry containing the primary partition plus the
// given secondaries. System is always present by construction.
func NewRegistry(secondaries ...Name) *Registry {
	r := &Registry{present: make(map[Name]bool, len(secondaries)+1)}
	r.present[System] = true
	for _, name := range secondaries {
		r.present[name] = true
	}
	return r
}

// IsPresent reports whether the named partition was unpacked this run.
// Pure lookup; unknown names are simply not present.
func (r *Registry) IsPresent(name Name) bool {
	return r.present[name]
}

// Present returns the present partitions in the fixed resolution order,
// primary first.
func (r *Registry) Present() []Name {
	var names []Name
	for _, name := range All() {
		if r.present[name] {
			names = append(names, name)
		}
	}
	return names
}
