// Package modules defines the extension modules that can be injected into
// an unpacked firmware image, and the environment each module's Inject runs
// against. Modules declare their partition requirements up front so the
// image pipeline can unpack exactly what a run needs.
package modules

import (
	"context"

	"go.uber.org/zap"

	"github.com/otaforge/otapatch/internal/partition"
	"github.com/otaforge/otapatch/internal/secontext"
)

// Requirements declares what a module needs from the run before Inject is
// called.
type Requirements struct {
	// ExtImages lists the partitions whose trees the module writes into.
	ExtImages []partition.Name

	// SelinuxPatching is set when the module injects security-context
	// fragments. In compatibility mode this makes the pipeline unpack all
	// secondary partitions so their rules files can be extended too.
	SelinuxPatching bool
}

// Env is the borrowed view of one run that a module injects against. All
// fields are owned by the caller; a module must not retain them past the
// Inject call.
type Env struct {
	Registry *partition.Registry
	Handles  map[partition.Name]partition.Handle
	Engine   *secontext.Engine
	Payload  *Payload

	// CompatMode extends security-context merges to secondary partitions.
	// It arrives here explicitly, never from process-wide state.
	CompatMode bool

	Log *zap.Logger
}

// Module is one injectable extension.
type Module interface {
	// Name is the module's registry identifier.
	Name() string

	// Requirements reports what the run must unpack for this module.
	Requirements() Requirements

	// Inject writes the module's content into the unpacked image.
	Inject(ctx context.Context, env *Env) error
}

// mergeContexts routes a security-context fragment from the payload through
// the merge engine and logs each outcome.
func mergeContexts(env *Env, kind secontext.ArtifactKind, fragmentEntry string) error {
	fragment, err := env.Payload.Fragment(fragmentEntry)
	if err != nil {
		return err
	}

	outcomes, err := env.Engine.Merge(secontext.Request{
		Kind:       kind,
		Fragment:   fragment,
		CompatMode: env.CompatMode,
	}, env.Registry, env.Handles)
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		env.Log.Debug("context merge outcome",
			zap.String("partition", string(o.Partition)),
			zap.String("path", o.Path),
			zap.Stringer("status", o.Status))
	}
	return nil
}
