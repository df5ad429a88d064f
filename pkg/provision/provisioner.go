// Package provision orchestrates cluster creation: it is the only component
// that mutates cluster engine state.
//
// Provisioning is idempotent: re-invocation with the same identity converges
// to the same running cluster instead of erroring or duplicating. Forced
// recreation destroys the existing instance first.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/kdev-sh/kdev/pkg/clustererr"
	"github.com/kdev-sh/kdev/pkg/config"
	"github.com/kdev-sh/kdev/pkg/engine"
	"github.com/kdev-sh/kdev/pkg/identity"
	"github.com/kdev-sh/kdev/pkg/k8s"
	"github.com/kdev-sh/kdev/pkg/notify"
	"github.com/kdev-sh/kdev/pkg/ports"
	"github.com/kdev-sh/kdev/pkg/registry"
)

const (
	// maxCreateAttempts bounds retries when the engine loses the port race
	// between allocation and bind.
	maxCreateAttempts = 3

	// importConcurrency bounds parallel image imports.
	importConcurrency = 4

	// Node labels applied for observability.
	labelDeveloper    = "kdev.sh/developer"
	labelRepository   = "kdev.sh/repository"
	labelIdentityHash = "kdev.sh/identity-hash"
)

// Provisioner creates cluster instances and persists their registry records.
type Provisioner struct {
	engine    engine.Engine
	registry  *registry.Registry
	allocator *ports.Allocator
	cfg       *config.Config
	fsys      afero.Fs
	out       io.Writer

	// waitReady is swappable in tests; the default polls the API server
	// through a real clientset.
	waitReady func(ctx context.Context, kubeconfig []byte, deadline time.Duration) error
}

// Options configures a Provisioner. Engine, Registry, Allocator, and Config
// are required. WaitReady is primarily for testing purposes.
type Options struct {
	Engine    engine.Engine
	Registry  *registry.Registry
	Allocator *ports.Allocator
	Config    *config.Config
	Fs        afero.Fs
	Out       io.Writer
	WaitReady func(ctx context.Context, kubeconfig []byte, deadline time.Duration) error
}

// NewProvisioner constructs a provisioner from its dependencies.
func NewProvisioner(opts Options) *Provisioner {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	waitReady := opts.WaitReady
	if waitReady == nil {
		waitReady = defaultWaitReady
	}

	return &Provisioner{
		engine:    opts.Engine,
		registry:  opts.Registry,
		allocator: opts.Allocator,
		cfg:       opts.Config,
		fsys:      fsys,
		out:       out,
		waitReady: waitReady,
	}
}

// Provision converges the identity's cluster to a running instance with a
// registry record and returns the record.
func (p *Provisioner) Provision(
	ctx context.Context,
	ident identity.ClusterIdentity,
	force bool,
) (*registry.ClusterRecord, error) {
	name := ident.ClusterName()

	live, err := p.engine.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live clusters: %w", err)
	}

	exists := slices.Contains(live, name)

	if exists && !force {
		return p.attach(ctx, ident, name)
	}

	var destroyErr error

	if exists {
		notify.WriteMessage(notify.Message{
			Type:    notify.ActivityType,
			Content: "destroying existing cluster '%s'",
			Args:    []any{name},
			Writer:  p.out,
		})

		destroyErr = p.engine.Delete(ctx, name)
		if destroyErr != nil {
			notify.WriteMessage(notify.Message{
				Type:    notify.WarningType,
				Content: "failed to destroy existing cluster '%s': %v",
				Args:    []any{name, destroyErr},
				Writer:  p.out,
			})
		}
	}

	record, err := p.create(ctx, ident, name)
	if err != nil {
		if destroyErr != nil {
			// A failed destroy followed by a failed create is surfaced as a
			// single combined error.
			return nil, errors.Join(destroyErr, err)
		}

		return nil, err
	}

	return record, nil
}

// attach converges on an already-running cluster: repair its kubeconfig and
// return (or rebuild) its registry record without recreating infrastructure.
func (p *Provisioner) attach(
	ctx context.Context,
	ident identity.ClusterIdentity,
	name string,
) (*registry.ClusterRecord, error) {
	record, getErr := p.registry.Get(name)
	if getErr == nil {
		err := p.repairKubeconfig(ctx, record)
		if err != nil {
			return nil, err
		}

		notify.WriteMessage(notify.Message{
			Type:    notify.SuccessType,
			Content: "cluster '%s' already running, attached",
			Args:    []any{name},
			Writer:  p.out,
		})

		return record, nil
	}

	// The cluster is live but has no record: rebuild one from engine metadata.
	raw, err := p.engine.Kubeconfig(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch kubeconfig for live cluster %q: %w", name, err)
	}

	apiPort, err := k8s.APIServerPort(raw)
	if err != nil {
		return nil, fmt.Errorf("inspect live cluster %q: %w", name, err)
	}

	rewritten, err := k8s.RewriteServer(raw, apiPort)
	if err != nil {
		return nil, err
	}

	kubeconfigPath := p.cfg.KubeconfigPath(name)

	err = k8s.WriteFile(p.fsys, kubeconfigPath, rewritten)
	if err != nil {
		return nil, err
	}

	record = &registry.ClusterRecord{
		Name:             name,
		Repository:       ident.Repository,
		Developer:        ident.DeveloperName,
		Email:            ident.Email,
		LoadBalancerPort: p.cfg.BaseLoadBalancerPort + ports.Offset(name),
		APIPort:          apiPort,
		KubeconfigPath:   kubeconfigPath,
		CreatedAt:        time.Now().UTC(),
		EngineVersion:    p.engine.Version(),
		Shared:           ident.Shared,
	}

	err = p.registry.Put(record)
	if err != nil {
		return nil, recordWriteError(name, err)
	}

	return record, nil
}

// repairKubeconfig regenerates the record's kubeconfig when the file is
// missing or empty.
func (p *Provisioner) repairKubeconfig(
	ctx context.Context,
	record *registry.ClusterRecord,
) error {
	info, statErr := p.fsys.Stat(record.KubeconfigPath)
	if statErr == nil && info.Size() > 0 {
		return nil
	}

	raw, err := p.engine.Kubeconfig(ctx, record.Name)
	if err != nil {
		return fmt.Errorf("regenerate kubeconfig for %q: %w", record.Name, err)
	}

	rewritten, err := k8s.RewriteServer(raw, record.APIPort)
	if err != nil {
		return err
	}

	return k8s.WriteFile(p.fsys, record.KubeconfigPath, rewritten)
}

// create provisions a fresh cluster, waits for readiness, labels nodes,
// imports images, writes the kubeconfig, and persists the record.
func (p *Provisioner) create(
	ctx context.Context,
	ident identity.ClusterIdentity,
	name string,
) (*registry.ClusterRecord, error) {
	assignment, err := p.createWithPortRetry(ctx, name)
	if err != nil {
		return nil, err
	}

	raw, err := p.engine.Kubeconfig(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch kubeconfig for new cluster %q: %w", name, err)
	}

	rewritten, err := k8s.RewriteServer(raw, assignment.APIPort)
	if err != nil {
		return nil, err
	}

	err = p.waitReady(ctx, rewritten, p.cfg.ReadyTimeout)
	if err != nil {
		if errors.Is(err, k8s.ErrNotReady) {
			return nil, &clustererr.ProvisioningTimeoutError{
				Name:    name,
				Timeout: p.cfg.ReadyTimeout,
			}
		}

		return nil, err
	}

	p.labelNodes(ctx, ident, name)
	p.importImages(ctx, name)

	kubeconfigPath := p.cfg.KubeconfigPath(name)

	err = k8s.WriteFile(p.fsys, kubeconfigPath, rewritten)
	if err != nil {
		return nil, err
	}

	record := &registry.ClusterRecord{
		Name:             name,
		Repository:       ident.Repository,
		Developer:        ident.DeveloperName,
		Email:            ident.Email,
		LoadBalancerPort: assignment.LoadBalancerPort,
		APIPort:          assignment.APIPort,
		KubeconfigPath:   kubeconfigPath,
		CreatedAt:        time.Now().UTC(),
		EngineVersion:    p.engine.Version(),
		Shared:           ident.Shared,
	}

	err = p.registry.Put(record)
	if err != nil {
		return nil, recordWriteError(name, err)
	}

	notify.WriteMessage(notify.Message{
		Type:    notify.SuccessType,
		Content: "cluster '%s' created (lb :%d, api :%d)",
		Args:    []any{name, record.LoadBalancerPort, record.APIPort},
		Writer:  p.out,
	})

	return record, nil
}

// createWithPortRetry allocates ports and invokes engine create, retrying
// with a fresh allocation past the previous candidates when the engine loses
// the bind race. Bounded to maxCreateAttempts.
func (p *Provisioner) createWithPortRetry(
	ctx context.Context,
	name string,
) (ports.Assignment, error) {
	base := ports.BasePorts{
		LoadBalancer: p.cfg.BaseLoadBalancerPort,
		API:          p.cfg.BaseAPIPort,
	}

	var lastErr error

	for attempt := range maxCreateAttempts {
		assignment, err := p.allocator.Allocate(name, base, p.cfg.PortSearchLimit)
		if err != nil {
			return ports.Assignment{}, err
		}

		createErr := p.engine.Create(ctx, engine.CreateOptions{
			Name:             name,
			APIPort:          assignment.APIPort,
			LoadBalancerPort: assignment.LoadBalancerPort,
			Image:            p.nodeImage(),
			Timeout:          p.cfg.ReadyTimeout,
		})
		if createErr == nil {
			return assignment, nil
		}

		lastErr = createErr

		if !isPortConflict(createErr) || attempt == maxCreateAttempts-1 {
			break
		}

		notify.WriteMessage(notify.Message{
			Type:    notify.WarningType,
			Content: "port conflict creating cluster '%s', retrying with new ports",
			Args:    []any{name},
			Writer:  p.out,
		})

		// Probe past the candidates that just lost the race.
		base = ports.BasePorts{
			LoadBalancer: assignment.LoadBalancerPort + 1,
			API:          assignment.APIPort + 1,
		}
	}

	return ports.Assignment{}, &clustererr.EngineCreateError{Name: name, Err: lastErr}
}

// labelNodes labels the cluster's nodes for observability. Failures are
// warnings, never fatal.
func (p *Provisioner) labelNodes(
	ctx context.Context,
	ident identity.ClusterIdentity,
	name string,
) {
	err := p.engine.LabelNodes(ctx, name, map[string]string{
		labelDeveloper:    ident.Developer,
		labelRepository:   ident.Repository,
		labelIdentityHash: ident.Hash,
	})
	if err != nil {
		notify.WriteMessage(notify.Message{
			Type:    notify.WarningType,
			Content: "failed to label nodes of cluster '%s': %v",
			Args:    []any{name, err},
			Writer:  p.out,
		})
	}
}

// importImages loads the configured local images into the cluster cache in
// parallel. A missing local image is a warning; the caller may still pull
// over the network later.
func (p *Provisioner) importImages(ctx context.Context, name string) {
	if len(p.cfg.Images) == 0 {
		return
	}

	var (
		mu       sync.Mutex
		warnings []string
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(importConcurrency)

	for _, image := range p.cfg.Images {
		group.Go(func() error {
			err := p.engine.ImportImage(groupCtx, name, image)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("%s: %v", image, err))
				mu.Unlock()
			}

			return nil
		})
	}

	_ = group.Wait()

	for _, warning := range warnings {
		notify.WriteMessage(notify.Message{
			Type:    notify.WarningType,
			Content: "image import skipped: %s",
			Args:    []any{warning},
			Writer:  p.out,
		})
	}
}

func (p *Provisioner) nodeImage() string {
	if p.cfg.K3sImageTag == "" {
		return ""
	}

	return "rancher/k3s:" + p.cfg.K3sImageTag
}

// recordWriteError flags the one truly inconsistent state: a running cluster
// whose record could not be written.
func recordWriteError(name string, err error) error {
	return fmt.Errorf(
		"cluster %q is running but its registry record could not be written; "+
			"run 'kdev cleanup' and 'kdev provision' to reconcile: %w",
		name, err,
	)
}

// isPortConflict reports whether an engine create failure looks like a host
// port bind race.
func isPortConflict(err error) bool {
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "port is already allocated") ||
		(strings.Contains(msg, "port") && strings.Contains(msg, "in use"))
}

// defaultWaitReady polls the API server through a real clientset.
func defaultWaitReady(
	ctx context.Context,
	kubeconfig []byte,
	deadline time.Duration,
) error {
	clientset, err := k8s.NewClientset(kubeconfig)
	if err != nil {
		return fmt.Errorf("build readiness client: %w", err)
	}

	return k8s.WaitForAPIServerReady(ctx, clientset, deadline)
}
