package tools

import (
	"context"
	"os/exec"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noPath(string) (string, error) { return "", exec.ErrNotFound }

func TestResolveFixedPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/case/tools/sysinternals", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/case/tools/sysinternals/procmon.exe", []byte("MZ"), 0o755))

	r := NewResolver(fs, "/case/tools", DefaultCatalog("windows"), &fakeRunner{}, WithLookPath(noPath))
	res := r.Resolve(context.Background(), ProcMon)

	assert.True(t, res.Available)
	assert.Equal(t, SourceFixed, res.Source)
	assert.Equal(t, "/case/tools/sysinternals/procmon.exe", res.Path())
}

func TestResolveSearchesFixedDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	script := "/case/tools/ghidra/ghidra_11.0_PUBLIC/support/analyzeHeadless"
	require.NoError(t, fs.MkdirAll("/case/tools/ghidra/ghidra_11.0_PUBLIC/support", 0o755))
	require.NoError(t, afero.WriteFile(fs, script, []byte("#!/bin/sh"), 0o755))

	r := NewResolver(fs, "/case/tools", DefaultCatalog("linux"), nil, WithLookPath(noPath))
	res := r.Resolve(context.Background(), Ghidra)

	require.True(t, res.Available)
	assert.Equal(t, script, res.Path())
}

func TestResolveSearchPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	look := func(name string) (string, error) {
		if name == "tshark" {
			return "/usr/bin/tshark", nil
		}
		return "", exec.ErrNotFound
	}

	r := NewResolver(fs, "/case/tools", DefaultCatalog("linux"), nil, WithLookPath(look))
	res := r.Resolve(context.Background(), TShark)

	assert.True(t, res.Available)
	assert.Equal(t, SourcePath, res.Source)
	assert.Equal(t, []string{"/usr/bin/tshark"}, res.Argv)

	cmd := res.Command(0, "-r", "x.pcap")
	assert.Equal(t, "/usr/bin/tshark", cmd.Path)
	assert.Equal(t, []string{"-r", "x.pcap"}, cmd.Args)
}

func TestResolveProbe(t *testing.T) {
	runner := &fakeRunner{run: func(c Command) (Result, error) {
		return Result{Stdout: []byte("Name: volatility3\nVersion: 2.5.0\n")}, nil
	}}

	r := NewResolver(afero.NewMemMapFs(), "/t", DefaultCatalog("linux"), runner, WithLookPath(noPath))
	res := r.Resolve(context.Background(), Volatility)

	require.True(t, res.Available)
	assert.Equal(t, SourceProbe, res.Source)
	assert.Equal(t, []string{"python3", "-m", "volatility3"}, res.Argv)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "python3", runner.calls[0].Path)
	assert.Equal(t, []string{"-m", "pip", "show", "volatility3"}, runner.calls[0].Args)
}

func TestResolveProbeFailure(t *testing.T) {
	runner := &fakeRunner{run: func(c Command) (Result, error) {
		return Result{ExitCode: 1, Stderr: []byte("WARNING: Package(s) not found")}, nil
	}}

	r := NewResolver(afero.NewMemMapFs(), "/t", DefaultCatalog("linux"), runner, WithLookPath(noPath))
	assert.False(t, r.Available(context.Background(), Volatility))
}

func TestResolveUnknownAndMissing(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), "/t", DefaultCatalog("linux"), &fakeRunner{}, WithLookPath(noPath))

	res := r.Resolve(context.Background(), "nope")
	assert.False(t, res.Available)
	assert.Equal(t, SourceNone, res.Source)
	assert.Equal(t, "", res.Path())

	assert.False(t, r.Available(context.Background(), Yara))
}

func TestResolveIsNotCached(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := NewResolver(fs, "/t", DefaultCatalog("linux"), nil, WithLookPath(noPath))

	assert.False(t, r.Available(context.Background(), AVML))
	require.NoError(t, fs.MkdirAll("/t/avml", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/t/avml/avml", []byte{0x7f}, 0o755))
	assert.True(t, r.Available(context.Background(), AVML))
	assert.True(t, r.Available(context.Background(), AVML))
}

func TestMergeCatalog(t *testing.T) {
	base := DefaultCatalog("linux")
	merged := Merge(base, []Tool{
		{ID: Yara, Name: "YARA", Binaries: []string{"/opt/yara/bin/yara"}},
		{ID: "capa", Name: "capa", Binaries: []string{"capa"}},
	})

	assert.Len(t, merged, len(base)+1)
	r := NewResolver(afero.NewMemMapFs(), "", merged, nil)
	y, ok := r.Lookup(Yara)
	require.True(t, ok)
	assert.Equal(t, []string{"/opt/yara/bin/yara"}, y.Binaries)
	_, ok = r.Lookup("capa")
	assert.True(t, ok)
}
