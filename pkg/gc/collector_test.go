package gc_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdev-sh/kdev/pkg/config"
	"github.com/kdev-sh/kdev/pkg/engine"
	"github.com/kdev-sh/kdev/pkg/gc"
	"github.com/kdev-sh/kdev/pkg/kubecontext"
	"github.com/kdev-sh/kdev/pkg/registry"
)

// fakeEngine exposes a fixed live inventory.
type fakeEngine struct {
	live []string
}

func (e *fakeEngine) Create(context.Context, engine.CreateOptions) error { return nil }

func (e *fakeEngine) Delete(context.Context, string) error { return nil }

func (e *fakeEngine) List(context.Context) ([]string, error) { return e.live, nil }

func (e *fakeEngine) ImportImage(context.Context, string, string) error { return nil }

func (e *fakeEngine) LabelNodes(context.Context, string, map[string]string) error { return nil }

func (e *fakeEngine) Kubeconfig(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func (e *fakeEngine) Version() string { return "v5.9.0-fake" }

func record(cfg *config.Config, name string) *registry.ClusterRecord {
	return &registry.ClusterRecord{
		Name:           name,
		Repository:     "repo",
		KubeconfigPath: cfg.KubeconfigPath(name),
		CreatedAt:      time.Now().UTC(),
	}
}

func TestReconcile_RemovesExactlyTheOrphans(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RootDir: "/kdev"}
	fsys := afero.NewMemMapFs()
	eng := &fakeEngine{live: []string{"alive"}}
	reg := registry.NewRegistry(fsys, cfg.ClustersDir())
	switcher := kubecontext.NewSwitcher(eng, reg, cfg, fsys)

	require.NoError(t, reg.Put(record(cfg, "alive")))
	require.NoError(t, reg.Put(record(cfg, "gone")))
	require.NoError(t, afero.WriteFile(fsys, cfg.KubeconfigPath("gone"), []byte("cfg"), 0o600))

	collector := gc.NewCollector(eng, reg, switcher, cfg, fsys, nil)

	removed, err := collector.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, removed)

	// The survivor is untouched, the orphan's files are gone.
	_, err = reg.Get("alive")
	require.NoError(t, err)

	_, err = reg.Get("gone")
	require.Error(t, err)

	exists, err := afero.Exists(fsys, cfg.KubeconfigPath("gone"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReconcile_ClearsActivePointerOfOrphan(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RootDir: "/kdev"}
	fsys := afero.NewMemMapFs()
	eng := &fakeEngine{live: nil}
	reg := registry.NewRegistry(fsys, cfg.ClustersDir())
	switcher := kubecontext.NewSwitcher(eng, reg, cfg, fsys)

	require.NoError(t, reg.Put(record(cfg, "gone")))
	require.NoError(t, afero.WriteFile(fsys, cfg.ActivePath(), []byte("gone\n"), 0o600))

	collector := gc.NewCollector(eng, reg, switcher, cfg, fsys, nil)

	removed, err := collector.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, removed)
	assert.Nil(t, switcher.Active())
}

func TestReconcile_EmptyRegistryRemovesNothing(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RootDir: "/kdev"}
	fsys := afero.NewMemMapFs()
	eng := &fakeEngine{live: []string{"something"}}
	reg := registry.NewRegistry(fsys, cfg.ClustersDir())
	switcher := kubecontext.NewSwitcher(eng, reg, cfg, fsys)

	collector := gc.NewCollector(eng, reg, switcher, cfg, fsys, nil)

	removed, err := collector.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
}
