// Package kubecontext activates previously provisioned clusters as the
// caller's active context.
//
// Activation points the active-context pointer at the cluster's own
// kubeconfig file; the shared default kubeconfig is never touched.
package kubecontext

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/kdev-sh/kdev/pkg/clustererr"
	"github.com/kdev-sh/kdev/pkg/config"
	"github.com/kdev-sh/kdev/pkg/engine"
	"github.com/kdev-sh/kdev/pkg/k8s"
	"github.com/kdev-sh/kdev/pkg/registry"
)

const pointerFileMode = 0o600

// Switcher activates clusters and tracks the active one.
type Switcher struct {
	engine   engine.Engine
	registry *registry.Registry
	cfg      *config.Config
	fsys     afero.Afero
}

// NewSwitcher constructs a context switcher. A nil filesystem defaults to the
// OS filesystem.
func NewSwitcher(
	eng engine.Engine,
	reg *registry.Registry,
	cfg *config.Config,
	fsys afero.Fs,
) *Switcher {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	return &Switcher{
		engine:   eng,
		registry: reg,
		cfg:      cfg,
		fsys:     afero.Afero{Fs: fsys},
	}
}

// Activate makes the named cluster the active context and returns its
// kubeconfig path. A missing or empty kubeconfig is regenerated once from
// the live engine; if the cluster no longer exists the record is stale and
// garbage collection is recommended.
func (s *Switcher) Activate(ctx context.Context, name string) (string, error) {
	record, err := s.registry.Get(name)
	if err != nil {
		return "", err
	}

	healthy, err := s.kubeconfigUsable(record.KubeconfigPath)
	if err != nil {
		return "", err
	}

	if !healthy {
		err = s.regenerate(ctx, record)
		if err != nil {
			return "", err
		}

		healthy, err = s.kubeconfigUsable(record.KubeconfigPath)
		if err != nil {
			return "", err
		}

		if !healthy {
			return "", fmt.Errorf(
				"kubeconfig for %q is still unusable after regeneration",
				name,
			)
		}
	}

	err = s.fsys.WriteFile(s.cfg.ActivePath(), []byte(name+"\n"), pointerFileMode)
	if err != nil {
		return "", fmt.Errorf("update active context pointer: %w", err)
	}

	return record.KubeconfigPath, nil
}

// Active returns the record of the active cluster, or nil when none is
// active or the active record has been removed.
func (s *Switcher) Active() *registry.ClusterRecord {
	data, err := s.fsys.ReadFile(s.cfg.ActivePath())
	if err != nil {
		return nil
	}

	name := strings.TrimSpace(string(data))
	if name == "" {
		return nil
	}

	record, err := s.registry.Get(name)
	if err != nil {
		return nil
	}

	return record
}

// Deactivate clears the active pointer when it references name. Used when a
// cluster is deleted or garbage-collected.
func (s *Switcher) Deactivate(name string) {
	data, err := s.fsys.ReadFile(s.cfg.ActivePath())
	if err != nil {
		return
	}

	if strings.TrimSpace(string(data)) != name {
		return
	}

	_ = s.fsys.Remove(s.cfg.ActivePath())
}

// kubeconfigUsable reports whether the kubeconfig file exists and is
// non-empty.
func (s *Switcher) kubeconfigUsable(path string) (bool, error) {
	info, err := s.fsys.Stat(path)
	if err != nil {
		return false, nil //nolint:nilerr // absent file means regenerate, not fail
	}

	return info.Size() > 0, nil
}

// regenerate rebuilds the kubeconfig from the live engine. A cluster that is
// gone from the engine inventory yields a StaleRecordError.
func (s *Switcher) regenerate(ctx context.Context, record *registry.ClusterRecord) error {
	raw, err := s.engine.Kubeconfig(ctx, record.Name)
	if err != nil {
		live, listErr := s.engine.List(ctx)
		if listErr == nil && !slices.Contains(live, record.Name) {
			return &clustererr.StaleRecordError{Name: record.Name}
		}

		return fmt.Errorf("regenerate kubeconfig for %q: %w", record.Name, err)
	}

	rewritten, err := k8s.RewriteServer(raw, record.APIPort)
	if err != nil {
		return err
	}

	return k8s.WriteFile(s.fsys, record.KubeconfigPath, rewritten)
}
