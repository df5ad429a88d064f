// Package gc reconciles registry records against the live cluster inventory,
// removing metadata for clusters that no longer exist.
package gc

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/kdev-sh/kdev/pkg/config"
	"github.com/kdev-sh/kdev/pkg/engine"
	"github.com/kdev-sh/kdev/pkg/kubecontext"
	"github.com/kdev-sh/kdev/pkg/notify"
	"github.com/kdev-sh/kdev/pkg/registry"
)

// Collector removes orphaned registry records and their kubeconfig files.
type Collector struct {
	engine   engine.Engine
	registry *registry.Registry
	switcher *kubecontext.Switcher
	cfg      *config.Config
	fsys     afero.Fs
	out      io.Writer
}

// NewCollector constructs a garbage collector.
func NewCollector(
	eng engine.Engine,
	reg *registry.Registry,
	switcher *kubecontext.Switcher,
	cfg *config.Config,
	fsys afero.Fs,
	out io.Writer,
) *Collector {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	if out == nil {
		out = io.Discard
	}

	return &Collector{
		engine:   eng,
		registry: reg,
		switcher: switcher,
		cfg:      cfg,
		fsys:     fsys,
		out:      out,
	}
}

// Reconcile removes every record whose cluster is absent from the live
// engine inventory and returns the names actually removed. Removal is
// best-effort per orphan: a single failure is logged and the sweep continues.
func (c *Collector) Reconcile(ctx context.Context) ([]string, error) {
	live, err := c.engine.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live clusters: %w", err)
	}

	orphans, err := c.registry.ListOrphans(live)
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(orphans))

	for _, orphan := range orphans {
		deleteErr := c.registry.Delete(orphan.Name)
		if deleteErr != nil {
			notify.WriteMessage(notify.Message{
				Type:    notify.WarningType,
				Content: "failed to remove orphan record '%s': %v",
				Args:    []any{orphan.Name, deleteErr},
				Writer:  c.out,
			})

			continue
		}

		// Keep the owned directories consistent: drop the stale kubeconfig
		// and the active pointer if it referenced the orphan.
		_ = c.fsys.Remove(orphan.KubeconfigPath)
		c.switcher.Deactivate(orphan.Name)

		removed = append(removed, orphan.Name)
	}

	return removed, nil
}
