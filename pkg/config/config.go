// Package config holds the process-wide configuration threaded explicitly
// through every component. There is no package-level mutable state; the
// struct is constructed once at process start and passed down.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// DefaultBaseLoadBalancerPort is the base host port for cluster load balancers.
	DefaultBaseLoadBalancerPort = 8080
	// DefaultBaseAPIPort is the base host port for cluster API servers.
	DefaultBaseAPIPort = 6445
	// DefaultReadyTimeout bounds the wait for a new cluster's control plane.
	DefaultReadyTimeout = 60 * time.Second
	// DefaultPortSearchLimit bounds linear probing per port.
	DefaultPortSearchLimit = 50

	dirPerm = 0o755
)

// Config is the explicit configuration for all provisioning components.
type Config struct {
	// RootDir is the per-user configuration root, e.g. ~/.config/kdev.
	RootDir string
	// BaseLoadBalancerPort and BaseAPIPort anchor deterministic port derivation.
	BaseLoadBalancerPort int
	BaseAPIPort          int
	// ReadyTimeout bounds cluster readiness waits.
	ReadyTimeout time.Duration
	// PortSearchLimit bounds linear probing per port.
	PortSearchLimit int
	// Images are local images imported into new clusters best-effort.
	Images []string
	// K3sImageTag overrides the k3s node image tag when non-empty.
	K3sImageTag string
}

// Default returns the configuration with built-in defaults rooted under the
// user configuration directory.
func Default() (*Config, error) {
	userDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config dir: %w", err)
	}

	return &Config{
		RootDir:              filepath.Join(userDir, "kdev"),
		BaseLoadBalancerPort: DefaultBaseLoadBalancerPort,
		BaseAPIPort:          DefaultBaseAPIPort,
		ReadyTimeout:         DefaultReadyTimeout,
		PortSearchLimit:      DefaultPortSearchLimit,
	}, nil
}

// FromViper builds the configuration from bound flags and KDEV_* environment
// variables, falling back to defaults for unset keys.
func FromViper(vpr *viper.Viper) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if root := vpr.GetString("config-root"); root != "" {
		cfg.RootDir = root
	}

	if port := vpr.GetInt("base-lb-port"); port != 0 {
		cfg.BaseLoadBalancerPort = port
	}

	if port := vpr.GetInt("base-api-port"); port != 0 {
		cfg.BaseAPIPort = port
	}

	if timeout := vpr.GetDuration("timeout"); timeout != 0 {
		cfg.ReadyTimeout = timeout
	}

	if images := vpr.GetStringSlice("images"); len(images) > 0 {
		cfg.Images = images
	}

	return cfg, nil
}

// ClustersDir is the registry directory holding one record per cluster.
func (c *Config) ClustersDir() string {
	return filepath.Join(c.RootDir, "clusters")
}

// KubeconfigsDir holds one kubeconfig per cluster.
func (c *Config) KubeconfigsDir() string {
	return filepath.Join(c.RootDir, "kubeconfigs")
}

// KubeconfigPath returns the per-cluster kubeconfig path. Clusters never
// share the default kubeconfig to avoid cross-cluster interference.
func (c *Config) KubeconfigPath(name string) string {
	return filepath.Join(c.KubeconfigsDir(), "config-"+name)
}

// ActivePath is the active-context pointer file holding the active cluster name.
func (c *Config) ActivePath() string {
	return filepath.Join(c.RootDir, "active")
}

// EnsureDirs creates the owned directories if absent.
func (c *Config) EnsureDirs(fsys afero.Fs) error {
	for _, dir := range []string{c.ClustersDir(), c.KubeconfigsDir()} {
		err := fsys.MkdirAll(dir, dirPerm)
		if err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
