package secontext

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/otaforge/otapatch/internal/partition"
)

// Request describes one fragment injection. It is built fresh per call and
// immutable once built; the compatibility toggle travels here rather than
// in any process-wide state.
type Request struct {
	// Kind selects which rules file family to extend.
	Kind ArtifactKind

	// Fragment is the opaque rule content to append. No reformatting, no
	// deduplication: the engine assumes it runs against a freshly unpacked
	// image each time.
	Fragment []byte

	// CompatMode extends the merge to every secondary partition's rules
	// file. Default mode touches exactly the primary target, so enabling
	// this only ever adds targets, never removes or reorders them.
	CompatMode bool
}

// Status classifies the result of one (partition, target) attempt.
type Status int

const (
	// Applied means the fragment and its boundary were appended.
	Applied Status = iota

	// SkippedMissing means the partition was unpacked but ships no rules
	// file of this kind. Per-partition override files are optional on
	// secondaries, so this is expected, not an error.
	SkippedMissing

	// SkippedNotApplicable means the run never unpacked the partition.
	SkippedNotApplicable
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case SkippedMissing:
		return "skipped-missing"
	case SkippedNotApplicable:
		return "skipped-not-applicable"
	default:
		return "unknown"
	}
}

// Outcome records what happened for one resolved target. Outcome lists are
// reporting data for logs; nothing persists them.
type Outcome struct {
	Partition partition.Name
	Path      string
	Status    Status
}

// PreconditionError reports a missing mandatory primary-partition target.
// It indicates a structurally incompatible source image and aborts the run.
type PreconditionError struct {
	Kind ArtifactKind
	Path string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("mandatory %s file missing from source image: %s", e.Kind, e.Path)
}

// Engine applies Requests across all applicable partitions. It is
// synchronous: one Request is fully resolved before control returns, and
// partition handles are borrowed only for the duration of the call.
type Engine struct {
	log *zap.Logger
}

// NewEngine creates an Engine that reports per-target outcomes through log.
func NewEngine(log *zap.Logger) *Engine {
	return &Engine{log: log}
}

// Merge applies one Request across its candidate partitions and returns an
// Outcome per candidate, in the fixed resolution order: primary first, then
// each secondary known for the artifact kind.
//
// Candidates are resolved regardless of presence; presence is filtered per
// candidate so absent partitions still show up in the outcome list as
// SkippedNotApplicable. A missing primary target is fatal. A write failure
// is fatal immediately: partial writes to a rules file are unsafe to ignore.
func (e *Engine) Merge(req Request, reg *partition.Registry, handles map[partition.Name]partition.Handle) ([]Outcome, error) {
	spec := req.Kind.spec()

	candidates := []partition.Name{spec.primary}
	if req.CompatMode {
		candidates = append(candidates, spec.secondaries...)
	}

	outcomes := make([]Outcome, 0, len(candidates))
	for _, part := range candidates {
		target := req.Kind.TargetPath(part)

		if part != spec.primary && !reg.IsPresent(part) {
			e.log.Debug("skipping target: partition not unpacked this run",
				zap.String("partition", string(part)),
				zap.String("path", target))
			outcomes = append(outcomes, Outcome{Partition: part, Path: target, Status: SkippedNotApplicable})
			continue
		}

		handle, ok := handles[part]
		if !ok {
			return outcomes, fmt.Errorf("no filesystem handle for partition %s", part)
		}

		exists, err := handle.Exists(target)
		if err != nil {
			return outcomes, fmt.Errorf("check %s on %s: %w", target, part, err)
		}
		if !exists {
			if part == spec.primary {
				return outcomes, &PreconditionError{Kind: req.Kind, Path: target}
			}
			e.log.Info("skipping target: file does not exist",
				zap.String("partition", string(part)),
				zap.String("path", target))
			outcomes = append(outcomes, Outcome{Partition: part, Path: target, Status: SkippedMissing})
			continue
		}

		e.log.Info("adding context to target",
			zap.String("partition", string(part)),
			zap.String("path", target),
			zap.Bool("compatMode", req.CompatMode && part != spec.primary))

		if err := appendFragment(handle, target, req.Fragment); err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, Outcome{Partition: part, Path: target, Status: Applied})
	}

	return outcomes, nil
}

// appendFragment appends fragment plus exactly one newline boundary to
// target. The boundary goes last so a failed fragment write never leaves a
// stray terminator behind.
func appendFragment(h partition.Handle, target string, fragment []byte) (err error) {
	w, err := h.OpenAppend(target)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", target, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", target, cerr)
		}
	}()

	if _, err = w.Write(fragment); err != nil {
		return fmt.Errorf("append fragment to %s: %w", target, err)
	}
	if _, err = w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("append boundary to %s: %w", target, err)
	}
	return nil
}
