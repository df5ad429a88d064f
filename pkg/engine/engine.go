// Package engine defines the narrow interface to the container-cluster
// engine so the concrete tool is swappable and mockable in tests.
package engine

import (
	"context"
	"time"
)

// CreateOptions parameterizes cluster creation.
type CreateOptions struct {
	// Name is the engine-safe cluster name.
	Name string
	// APIPort is the host port the API server is published on.
	APIPort int
	// LoadBalancerPort is the host port mapped to the cluster load balancer.
	LoadBalancerPort int
	// Image overrides the node image when non-empty.
	Image string
	// Timeout bounds the engine's own readiness wait.
	Timeout time.Duration
}

// Engine is the contract with the local cluster tool. Implementations mutate
// engine state; everything above them stays free of engine specifics.
type Engine interface {
	// Create provisions a new cluster instance.
	Create(ctx context.Context, opts CreateOptions) error

	// Delete destroys a cluster instance by name.
	Delete(ctx context.Context, name string) error

	// List returns the names of all live cluster instances.
	List(ctx context.Context) ([]string, error)

	// ImportImage loads a locally available image into the cluster cache.
	ImportImage(ctx context.Context, name, image string) error

	// LabelNodes applies the labels to every compute node of the cluster.
	LabelNodes(ctx context.Context, name string, labels map[string]string) error

	// Kubeconfig returns the raw kubeconfig the engine generated for the
	// cluster.
	Kubeconfig(ctx context.Context, name string) ([]byte, error)

	// Version reports the engine version string.
	Version() string
}
