// Package docker provides the container engine preflight used before any
// cluster mutation.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// GetDockerClient creates a Docker client using environment configuration.
func GetDockerClient() (client.APIClient, error) {
	dockerClient, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return dockerClient, nil
}

// CheckEngineRunning pings the container engine and returns a descriptive
// error when it is unreachable. Provisioning refuses to start without a
// reachable engine so no partial state is created.
func CheckEngineRunning(ctx context.Context, apiClient client.APIClient) error {
	_, err := apiClient.Ping(ctx)
	if err != nil {
		return fmt.Errorf("container engine is not reachable, is Docker running? %w", err)
	}

	return nil
}
