package modules

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/otaforge/otapatch/internal/partition"
	"github.com/otaforge/otapatch/internal/secontext"
)

// writePayload builds a module zip on disk and opens it.
func writePayload(t *testing.T, entries map[string]string) *Payload {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	p, err := OpenPayload(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func memHandle(t *testing.T, files map[string]string) partition.Handle {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return partition.NewDirHandle(fs)
}

func readAll(t *testing.T, h partition.Handle, name string) string {
	t.Helper()
	r, err := h.OpenRead(name)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, []string{"bcr", "oemunlockonboot"}, reg.Names())

	m, err := reg.New("bcr")
	require.NoError(t, err)
	assert.Equal(t, "bcr", m.Name())

	_, err = reg.New("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestPayload_FragmentAndExtract(t *testing.T) {
	p := writePayload(t, map[string]string{
		"seapp_contexts": "app u:r:app:s0",
		"app/thing.apk":  "apk-bytes",
	})

	frag, err := p.Fragment("seapp_contexts")
	require.NoError(t, err)
	assert.Equal(t, []byte("app u:r:app:s0"), frag)

	_, err = p.Fragment("missing")
	require.Error(t, err)

	h := memHandle(t, nil)
	require.NoError(t, p.ExtractTo(h, "app/thing.apk", "system/priv-app/thing/thing.apk"))
	assert.Equal(t, "apk-bytes", readAll(t, h, "system/priv-app/thing/thing.apk"))
}

func TestBCR_Inject(t *testing.T) {
	payload := writePayload(t, map[string]string{
		bcrAPKEntry:      "apk-bytes",
		bcrPermsEntry:    "<permissions/>",
		bcrContextsEntry: "bcr u:r:priv_app:s0",
	})

	system := memHandle(t, map[string]string{
		"system/etc/selinux/plat_seapp_contexts": "base u:r:base:s0\n",
	})
	env := &Env{
		Registry: partition.NewRegistry(),
		Handles:  map[partition.Name]partition.Handle{partition.System: system},
		Engine:   secontext.NewEngine(zap.NewNop()),
		Payload:  payload,
		Log:      zap.NewNop(),
	}

	m := &BCR{}
	require.True(t, m.Requirements().SelinuxPatching)
	require.NoError(t, m.Inject(context.Background(), env))

	assert.Equal(t, "apk-bytes", readAll(t, system, bcrAPKDest))
	assert.Equal(t, "<permissions/>", readAll(t, system, bcrPermsDest))
	assert.Equal(t, "base u:r:base:s0\nbcr u:r:priv_app:s0\n",
		readAll(t, system, "system/etc/selinux/plat_seapp_contexts"))
}

func TestBCR_Inject_CompatMode(t *testing.T) {
	payload := writePayload(t, map[string]string{
		bcrAPKEntry:      "apk-bytes",
		bcrPermsEntry:    "<permissions/>",
		bcrContextsEntry: "bcr u:r:priv_app:s0",
	})

	system := memHandle(t, map[string]string{
		"system/etc/selinux/plat_seapp_contexts": "",
	})
	vendor := memHandle(t, map[string]string{
		"vendor/etc/selinux/vendor_seapp_contexts": "",
	})
	env := &Env{
		Registry: partition.NewRegistry(partition.Vendor),
		Handles: map[partition.Name]partition.Handle{
			partition.System: system,
			partition.Vendor: vendor,
		},
		Engine:     secontext.NewEngine(zap.NewNop()),
		Payload:    payload,
		CompatMode: true,
		Log:        zap.NewNop(),
	}

	require.NoError(t, (&BCR{}).Inject(context.Background(), env))

	assert.Equal(t, "bcr u:r:priv_app:s0\n",
		readAll(t, vendor, "vendor/etc/selinux/vendor_seapp_contexts"))
}

func TestOEMUnlockOnBoot_Inject_MissingPrimaryTarget(t *testing.T) {
	payload := writePayload(t, map[string]string{
		oemUnlockAPKEntry:      "apk-bytes",
		oemUnlockContextsEntry: "oem u:r:priv_app:s0",
	})

	// No plat_seapp_contexts in the image: structurally incompatible.
	system := memHandle(t, nil)
	env := &Env{
		Registry: partition.NewRegistry(),
		Handles:  map[partition.Name]partition.Handle{partition.System: system},
		Engine:   secontext.NewEngine(zap.NewNop()),
		Payload:  payload,
		Log:      zap.NewNop(),
	}

	err := (&OEMUnlockOnBoot{}).Inject(context.Background(), env)
	require.Error(t, err)

	var pe *secontext.PreconditionError
	assert.ErrorAs(t, err, &pe)
}

func TestAndroidABI(t *testing.T) {
	cases := map[string]string{
		"amd64": "x86_64",
		"386":   "x86",
		"arm64": "arm64-v8a",
		"arm":   "armeabi-v7a",
	}
	for goarch, want := range cases {
		got, err := androidABI(goarch)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := androidABI("riscv64")
	require.Error(t, err)
}
