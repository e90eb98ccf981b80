package modules

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// VerifySSHSig checks a module zip against its detached OpenSSH signature
// using ssh-keygen's own verifier, with publicKey as the sole trusted
// signer. A verification failure is fatal to the run: unsigned module
// content must never reach the image.
func VerifySSHSig(ctx context.Context, zipPath, sigPath, publicKey string) (err error) {
	signers, err := os.CreateTemp("", "otapatch-signers-*")
	if err != nil {
		return fmt.Errorf("create allowed-signers file: %w", err)
	}
	defer os.Remove(signers.Name())

	if _, err := fmt.Fprintf(signers, "trusted %s\n", publicKey); err != nil {
		signers.Close()
		return fmt.Errorf("write allowed-signers file: %w", err)
	}
	if err := signers.Close(); err != nil {
		return fmt.Errorf("close allowed-signers file: %w", err)
	}

	payload, err := os.Open(zipPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", zipPath, err)
	}
	defer payload.Close()

	cmd := exec.CommandContext(ctx, "ssh-keygen",
		"-Y", "verify",
		"-f", signers.Name(),
		"-I", "trusted",
		"-n", "file",
		"-s", sigPath,
	)
	cmd.Stdin = payload

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("verify signature of %s: %w: %s", zipPath, err, out)
	}
	return nil
}

// HostAndroidABI returns the Android ABI string matching the host
// architecture, for selecting native libraries out of module payloads.
func HostAndroidABI() (string, error) {
	return androidABI(runtime.GOARCH)
}

func androidABI(goarch string) (string, error) {
	switch goarch {
	case "amd64":
		return "x86_64", nil
	case "386":
		return "x86", nil
	case "arm64":
		return "arm64-v8a", nil
	case "arm":
		return "armeabi-v7a", nil
	default:
		return "", fmt.Errorf("no Android ABI for architecture %s", goarch)
	}
}
