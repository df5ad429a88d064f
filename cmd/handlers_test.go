package cmd_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdev-sh/kdev/cmd"
	"github.com/kdev-sh/kdev/pkg/config"
	"github.com/kdev-sh/kdev/pkg/engine"
	"github.com/kdev-sh/kdev/pkg/kubecontext"
	"github.com/kdev-sh/kdev/pkg/registry"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://localhost:%d
  name: k3d-test
contexts:
- context:
    cluster: k3d-test
    user: admin
  name: k3d-test
current-context: k3d-test
users:
- name: admin
  user:
    token: abc
`

type fakeEngine struct {
	live    []string
	deletes []string
}

func (f *fakeEngine) Create(_ context.Context, opts engine.CreateOptions) error {
	f.live = append(f.live, opts.Name)

	return nil
}

func (f *fakeEngine) Delete(_ context.Context, name string) error {
	f.deletes = append(f.deletes, name)

	return nil
}

func (f *fakeEngine) List(_ context.Context) ([]string, error) {
	return f.live, nil
}

func (f *fakeEngine) ImportImage(_ context.Context, _, _ string) error { return nil }

func (f *fakeEngine) LabelNodes(_ context.Context, _ string, _ map[string]string) error {
	return nil
}

func (f *fakeEngine) Kubeconfig(_ context.Context, name string) ([]byte, error) {
	for _, live := range f.live {
		if live == name {
			return []byte(fmt.Sprintf(testKubeconfig, 6445)), nil
		}
	}

	return nil, fmt.Errorf("cluster %s not found", name)
}

func (f *fakeEngine) Version() string { return "v5-test" }

type harness struct {
	deps cmd.Deps
	eng  *fakeEngine
	fsys afero.Fs
	cfg  *config.Config
	out  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		RootDir:              "/kdev",
		BaseLoadBalancerPort: config.DefaultBaseLoadBalancerPort,
		BaseAPIPort:          config.DefaultBaseAPIPort,
		ReadyTimeout:         config.DefaultReadyTimeout,
		PortSearchLimit:      config.DefaultPortSearchLimit,
	}

	fsys := afero.NewMemMapFs()
	require.NoError(t, cfg.EnsureDirs(fsys))

	eng := &fakeEngine{}
	reg := registry.NewRegistry(fsys, cfg.ClustersDir())
	out := &bytes.Buffer{}

	return &harness{
		deps: cmd.Deps{
			Config:   cfg,
			Fs:       fsys,
			Engine:   eng,
			Registry: reg,
			Switcher: kubecontext.NewSwitcher(eng, reg, cfg, fsys),
			Out:      out,
		},
		eng:  eng,
		fsys: fsys,
		cfg:  cfg,
		out:  out,
	}
}

func (h *harness) putRecord(t *testing.T, name string) registry.ClusterRecord {
	t.Helper()

	record := registry.ClusterRecord{
		Name:             name,
		Repository:       "repo",
		Developer:        "ada-lovelace",
		Email:            "ada@example.com",
		LoadBalancerPort: 8092,
		APIPort:          6457,
		KubeconfigPath:   h.cfg.KubeconfigPath(name),
		CreatedAt:        time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC),
		EngineVersion:    "v5-test",
	}
	require.NoError(t, h.deps.Registry.Put(&record))

	return record
}

func (h *harness) command(t *testing.T) *cobra.Command {
	t.Helper()

	cobraCmd := &cobra.Command{Use: "test"}
	cobraCmd.SetOut(h.out)
	cobraCmd.SetErr(h.out)
	cobraCmd.SetContext(context.Background())

	return cobraCmd
}

func TestHandleListRunE_EmptyRegistry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := cmd.HandleListRunE(h.command(t), h.deps)
	require.NoError(t, err)

	assert.Contains(t, h.out.String(), "no clusters found")
}

func TestHandleListRunE_MarksActiveCluster(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.putRecord(t, "repo-ada-lovelace-9f86d0")
	h.putRecord(t, "repo-grace-hopper-a1b2c3")
	require.NoError(t, afero.WriteFile(h.fsys, h.cfg.ActivePath(), []byte("repo-ada-lovelace-9f86d0\n"), 0o600))

	err := cmd.HandleListRunE(h.command(t), h.deps)
	require.NoError(t, err)

	output := h.out.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "* repo-ada-lovelace-9f86d0")
	assert.Contains(t, output, "  repo-grace-hopper-a1b2c3")
	assert.Contains(t, output, "ada-lovelace")
}

func TestHandleCurrentRunE_NoActiveCluster(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := cmd.HandleCurrentRunE(h.command(t), h.deps)
	require.NoError(t, err)

	assert.Contains(t, h.out.String(), "no cluster active")
}

func TestHandleCurrentRunE_PrintsActiveRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	record := h.putRecord(t, "repo-ada-lovelace-9f86d0")
	require.NoError(t, afero.WriteFile(h.fsys, h.cfg.ActivePath(), []byte(record.Name+"\n"), 0o600))

	err := cmd.HandleCurrentRunE(h.command(t), h.deps)
	require.NoError(t, err)

	output := h.out.String()
	assert.Contains(t, output, "name:        repo-ada-lovelace-9f86d0")
	assert.Contains(t, output, "lb port:     8092")
	assert.Contains(t, output, "api port:    6457")
}

func TestHandleDeleteRunE_RemovesRecordKubeconfigAndPointer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	record := h.putRecord(t, "repo-ada-lovelace-9f86d0")
	h.eng.live = []string{record.Name}
	require.NoError(t, afero.WriteFile(h.fsys, record.KubeconfigPath, []byte("cfg"), 0o600))
	require.NoError(t, afero.WriteFile(h.fsys, h.cfg.ActivePath(), []byte(record.Name+"\n"), 0o600))

	err := cmd.HandleDeleteRunE(h.command(t), h.deps, record.Name)
	require.NoError(t, err)

	assert.Equal(t, []string{record.Name}, h.eng.deletes)

	_, err = h.deps.Registry.Get(record.Name)
	require.Error(t, err)

	exists, err := afero.Exists(h.fsys, record.KubeconfigPath)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Nil(t, h.deps.Switcher.Active())
}

func TestHandleDeleteRunE_UnknownNameSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := cmd.HandleDeleteRunE(h.command(t), h.deps, "never-registered")
	require.NoError(t, err)

	assert.Contains(t, h.out.String(), "deleted")
}

func TestHandleSwitchRunE_ActivatesAndPrintsExportHint(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	record := h.putRecord(t, "repo-ada-lovelace-9f86d0")
	h.eng.live = []string{record.Name}
	require.NoError(t, afero.WriteFile(h.fsys, record.KubeconfigPath, []byte("cfg"), 0o600))

	err := cmd.HandleSwitchRunE(h.command(t), h.deps, record.Name)
	require.NoError(t, err)

	output := h.out.String()
	assert.Contains(t, output, "cluster 'repo-ada-lovelace-9f86d0' is active")
	assert.Contains(t, output, "export KUBECONFIG="+record.KubeconfigPath)

	active := h.deps.Switcher.Active()
	require.NotNil(t, active)
	assert.Equal(t, record.Name, active.Name)
}

func TestHandleSwitchRunE_UnknownNameFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := cmd.HandleSwitchRunE(h.command(t), h.deps, "nope")
	require.Error(t, err)
}

func TestHandleCleanupRunE_ReportsRemovedOrphans(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.putRecord(t, "repo-ada-lovelace-9f86d0")
	h.putRecord(t, "repo-grace-hopper-a1b2c3")
	h.eng.live = []string{"repo-grace-hopper-a1b2c3"}

	err := cmd.HandleCleanupRunE(h.command(t), h.deps)
	require.NoError(t, err)

	assert.Contains(t, h.out.String(), "removed orphan record 'repo-ada-lovelace-9f86d0'")

	_, err = h.deps.Registry.Get("repo-grace-hopper-a1b2c3")
	require.NoError(t, err)
}

func TestHandleCleanupRunE_NothingToCleanUp(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := cmd.HandleCleanupRunE(h.command(t), h.deps)
	require.NoError(t, err)

	assert.Contains(t, h.out.String(), "nothing to clean up")
}
