package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otaforge/otapatch/internal/config"
	"github.com/otaforge/otapatch/internal/image"
	"github.com/otaforge/otapatch/internal/modules"
	"github.com/otaforge/otapatch/internal/partition"
	"github.com/otaforge/otapatch/internal/secontext"
)

var (
	patchInput     string
	patchOutput    string
	patchWorkDir   string
	patchConfigDir string
	patchCompat    bool
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Inject configured modules into a firmware image",
	Long: `Unpack a firmware image container, inject every module listed in the
run configuration, and repack the patched container.

With --compat-sepolicy, security-context fragments are merged into every
unpacked secondary partition's rules files in addition to the primary
partition, so app labeling stays consistent wherever it is checked.`,
	RunE: runPatch,
}

func init() {
	patchCmd.Flags().StringVar(&patchInput, "input", "", "input image container")
	patchCmd.Flags().StringVar(&patchOutput, "output", "", "output image container")
	patchCmd.Flags().StringVar(&patchWorkDir, "work-dir", "", "scratch directory for partition trees (default: temp dir)")
	patchCmd.Flags().StringVar(&patchConfigDir, "config-dir", ".", "directory containing otapatch.yml")
	patchCmd.Flags().BoolVar(&patchCompat, "compat-sepolicy", false, "also merge contexts into secondary partitions")
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(patchConfigDir)
	if err != nil {
		return err
	}
	if patchInput != "" {
		cfg.Input = patchInput
	}
	if patchOutput != "" {
		cfg.Output = patchOutput
	}
	if cmd.Flags().Changed("compat-sepolicy") {
		cfg.CompatSepolicy = patchCompat
	}
	if cfg.Input == "" || cfg.Output == "" {
		return errors.New("both an input and an output image are required")
	}
	if len(cfg.Modules) == 0 {
		return errors.New("no modules configured; nothing to inject")
	}

	workDir := patchWorkDir
	if workDir == "" {
		workDir = cfg.WorkDir
	}
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "otapatch-*")
		if err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(workDir)
	}

	registry := modules.NewRegistry()
	mods := make([]modules.Module, 0, len(cfg.Modules))
	for _, mc := range cfg.Modules {
		mod, err := registry.New(mc.Name)
		if err != nil {
			return err
		}
		mods = append(mods, mod)
	}

	up, err := image.Unpack(ctx, cfg.Input, workDir, wantedPartitions(mods, cfg.CompatSepolicy), logger)
	if err != nil {
		return err
	}

	engine := secontext.NewEngine(logger)
	for i, mod := range mods {
		if err := injectModule(ctx, mod, cfg.Modules[i], cfg, up, engine); err != nil {
			return err
		}
	}

	if err := up.Repack(cfg.Output, logger); err != nil {
		return err
	}
	logger.Info("patched image written", zap.String("output", cfg.Output))
	return nil
}

// wantedPartitions is the union of every module's partition requirements.
// When any module patches SELinux contexts and compatibility mode is on,
// all secondary partitions are unpacked so their rules files can be merged.
func wantedPartitions(mods []modules.Module, compat bool) []partition.Name {
	wanted := map[partition.Name]bool{partition.System: true}
	selinux := false
	for _, mod := range mods {
		req := mod.Requirements()
		for _, name := range req.ExtImages {
			wanted[name] = true
		}
		selinux = selinux || req.SelinuxPatching
	}
	if compat && selinux {
		for _, name := range partition.Secondaries() {
			wanted[name] = true
		}
	}

	var names []partition.Name
	for _, name := range partition.All() {
		if wanted[name] {
			names = append(names, name)
		}
	}
	return names
}

func injectModule(ctx context.Context, mod modules.Module, mc config.ModuleConfig, cfg *config.RunConfig, up *image.Unpacked, engine *secontext.Engine) error {
	if mc.Sig != "" {
		if cfg.TrustedKey == "" {
			return fmt.Errorf("module %s has a signature but no trustedKey is configured", mc.Name)
		}
		if err := modules.VerifySSHSig(ctx, mc.Zip, mc.Sig, cfg.TrustedKey); err != nil {
			return err
		}
	}

	payload, err := modules.OpenPayload(mc.Zip)
	if err != nil {
		return err
	}
	defer payload.Close()

	logger.Info("injecting module", zap.String("module", mod.Name()))
	return mod.Inject(ctx, &modules.Env{
		Registry:   up.Registry,
		Handles:    up.Handles,
		Engine:     engine,
		Payload:    payload,
		CompatMode: cfg.CompatSepolicy,
		Log:        logger,
	})
}
