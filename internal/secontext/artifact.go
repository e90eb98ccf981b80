// Package secontext applies SELinux context fragments across the partitions
// of an unpacked firmware image. It decides, per artifact kind, which
// per-partition rules files must be extended, in what order, and with what
// fallback when a partition or its rules file is absent.
//
// Rule file content is opaque here: fragments are appended byte-for-byte,
// terminated by a single newline boundary so repeated merges stay
// individually parseable by the policy loader.
package secontext

import (
	"fmt"
	"path"

	"github.com/otaforge/otapatch/internal/partition"
)

// ArtifactKind identifies one family of security-context rules files.
// Each kind has a fixed per-partition target path and a mandatory primary
// target; adding a kind means adding one entry to kindSpecs.
type ArtifactKind int

const (
	// DomainAssignmentRules maps application identity to a runtime SELinux
	// domain (seapp_contexts).
	DomainAssignmentRules ArtifactKind = iota

	// PathLabelRules maps filesystem paths to SELinux labels
	// (file_contexts).
	PathLabelRules
)

// kindSpec is the per-kind configuration: target file suffix, the partition
// whose file must exist, and the secondary candidates in resolution order.
type kindSpec struct {
	suffix      string
	primary     partition.Name
	secondaries []partition.Name
}

var kindSpecs = map[ArtifactKind]kindSpec{
	DomainAssignmentRules: {
		suffix:      "seapp_contexts",
		primary:     partition.System,
		secondaries: partition.Secondaries(),
	},
	PathLabelRules: {
		suffix:      "file_contexts",
		primary:     partition.System,
		secondaries: partition.Secondaries(),
	},
}

func (k ArtifactKind) spec() kindSpec {
	s, ok := kindSpecs[k]
	if !ok {
		panic(fmt.Sprintf("secontext: unknown artifact kind %d", int(k)))
	}
	return s
}

func (k ArtifactKind) String() string {
	return k.spec().suffix
}

// TargetPath returns the rules file for this kind on the given partition,
// relative to the partition handle's root. The primary partition uses the
// platform prefix; secondaries are prefixed with their own name.
func (k ArtifactKind) TargetPath(p partition.Name) string {
	prefix := string(p)
	if p == k.spec().primary {
		prefix = "plat"
	}
	return path.Join(string(p), "etc", "selinux", prefix+"_"+k.spec().suffix)
}
