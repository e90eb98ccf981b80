package modules

import (
	"context"
	"fmt"

	"github.com/otaforge/otapatch/internal/partition"
	"github.com/otaforge/otapatch/internal/secontext"
)

// Payload entry names and install targets for the call recorder module.
const (
	bcrAPKEntry      = "app/bcr.apk"
	bcrAPKDest       = "system/priv-app/com.chiller3.bcr/bcr.apk"
	bcrPermsEntry    = "etc/permissions/privapp-permissions-bcr.xml"
	bcrPermsDest     = "system/etc/permissions/privapp-permissions-bcr.xml"
	bcrContextsEntry = "seapp_contexts"
)

// Compile-time check.
var _ Module = (*BCR)(nil)

// BCR installs the Basic Call Recorder privileged app and assigns its
// process the priv_app domain via a seapp_contexts fragment.
type BCR struct{}

func (*BCR) Name() string { return "bcr" }

func (*BCR) Requirements() Requirements {
	return Requirements{
		ExtImages:       []partition.Name{partition.System},
		SelinuxPatching: true,
	}
}

// Inject installs the app, its privileged-permission allowlist, and the
// domain-assignment fragment.
func (m *BCR) Inject(ctx context.Context, env *Env) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	system, ok := env.Handles[partition.System]
	if !ok {
		return fmt.Errorf("module %s: system partition not unpacked", m.Name())
	}

	if err := env.Payload.ExtractTo(system, bcrAPKEntry, bcrAPKDest); err != nil {
		return fmt.Errorf("module %s: %w", m.Name(), err)
	}
	if err := env.Payload.ExtractTo(system, bcrPermsEntry, bcrPermsDest); err != nil {
		return fmt.Errorf("module %s: %w", m.Name(), err)
	}

	if err := mergeContexts(env, secontext.DomainAssignmentRules, bcrContextsEntry); err != nil {
		return fmt.Errorf("module %s: %w", m.Name(), err)
	}
	return nil
}
