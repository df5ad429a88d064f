package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/kdev-sh/kdev/pkg/config"
	"github.com/kdev-sh/kdev/pkg/engine"
	k3dengine "github.com/kdev-sh/kdev/pkg/engine/k3d"
	"github.com/kdev-sh/kdev/pkg/gc"
	"github.com/kdev-sh/kdev/pkg/identity"
	"github.com/kdev-sh/kdev/pkg/kubecontext"
	"github.com/kdev-sh/kdev/pkg/registry"
)

// Deps bundles the constructed components every subcommand handler needs.
// Handlers take Deps so tests can substitute fakes for the engine and
// filesystem.
type Deps struct {
	Config   *config.Config
	Fs       afero.Fs
	Engine   engine.Engine
	Registry *registry.Registry
	Resolver *identity.Resolver
	Switcher *kubecontext.Switcher
	Out      io.Writer
}

// newDeps constructs real dependencies from the bound configuration.
func newDeps(vpr *viper.Viper, out io.Writer) (Deps, error) {
	cfg, err := config.FromViper(vpr)
	if err != nil {
		return Deps{}, fmt.Errorf("load configuration: %w", err)
	}

	fsys := afero.NewOsFs()

	err = cfg.EnsureDirs(fsys)
	if err != nil {
		return Deps{}, err
	}

	eng := k3dengine.NewEngine()
	reg := registry.NewRegistry(fsys, cfg.ClustersDir())

	return Deps{
		Config:   cfg,
		Fs:       fsys,
		Engine:   eng,
		Registry: reg,
		Resolver: identity.NewResolver(),
		Switcher: kubecontext.NewSwitcher(eng, reg, cfg, fsys),
		Out:      out,
	}, nil
}

// collector builds the garbage collector over the deps.
func (d Deps) collector() *gc.Collector {
	return gc.NewCollector(d.Engine, d.Registry, d.Switcher, d.Config, d.Fs, d.Out)
}
