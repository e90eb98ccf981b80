// Package partition models the mutable per-partition subtrees of an
// unpacked firmware image: which partitions a run unpacked, and the
// filesystem view each one exposes while the image is open for patching.
package partition

// Name identifies one partition of the output image.
type Name string

const (
	// System is the primary partition. Every run unpacks it.
	System Name = "system"

	Vendor    Name = "vendor"
	Odm       Name = "odm"
	SystemExt Name = "system_ext"
	Product   Name = "product"
)

// Secondaries lists every non-primary partition in the fixed order used
// everywhere candidates are resolved. The order is load-bearing: outcome
// lists and log lines follow it.
func Secondaries() []Name {
	return []Name{Vendor, Odm, SystemExt, Product}
}

// All lists every known partition, primary first.
func All() []Name {
	return append([]Name{System}, Secondaries()...)
}
