package modules

import (
	"context"
	"fmt"

	"github.com/otaforge/otapatch/internal/partition"
	"github.com/otaforge/otapatch/internal/secontext"
)

const (
	oemUnlockAPKEntry      = "app/oemunlockonboot.apk"
	oemUnlockAPKDest       = "system/priv-app/com.chiller3.oemunlockonboot/oemunlockonboot.apk"
	oemUnlockContextsEntry = "seapp_contexts"
)

// Compile-time check.
var _ Module = (*OEMUnlockOnBoot)(nil)

// OEMUnlockOnBoot installs a privileged app that re-enables the OEM
// unlocking toggle on every boot, plus its domain assignment.
type OEMUnlockOnBoot struct{}

func (*OEMUnlockOnBoot) Name() string { return "oemunlockonboot" }

func (*OEMUnlockOnBoot) Requirements() Requirements {
	return Requirements{
		ExtImages:       []partition.Name{partition.System},
		SelinuxPatching: true,
	}
}

func (m *OEMUnlockOnBoot) Inject(ctx context.Context, env *Env) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	system, ok := env.Handles[partition.System]
	if !ok {
		return fmt.Errorf("module %s: system partition not unpacked", m.Name())
	}

	if err := env.Payload.ExtractTo(system, oemUnlockAPKEntry, oemUnlockAPKDest); err != nil {
		return fmt.Errorf("module %s: %w", m.Name(), err)
	}

	if err := mergeContexts(env, secontext.DomainAssignmentRules, oemUnlockContextsEntry); err != nil {
		return fmt.Errorf("module %s: %w", m.Name(), err)
	}
	return nil
}
