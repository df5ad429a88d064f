// Package k3dengine implements the cluster engine contract over k3d,
// driving k3d's own Cobra commands in-process instead of shelling out to a
// binary.
package k3dengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	clustercommand "github.com/k3d-io/k3d/v5/cmd/cluster"
	imagecommand "github.com/k3d-io/k3d/v5/cmd/image"
	kubeconfigcommand "github.com/k3d-io/k3d/v5/cmd/kubeconfig"
	k3dversion "github.com/k3d-io/k3d/v5/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kdev-sh/kdev/pkg/engine"
	"github.com/kdev-sh/kdev/pkg/k8s"
	"github.com/kdev-sh/kdev/pkg/runner"
)

var (
	// stdoutMutex protects concurrent access to os.Stdout during output
	// capture. k3d writes directly to os.Stdout before Cobra's output
	// redirection takes effect.
	stdoutMutex sync.Mutex //nolint:gochecknoglobals // Required for thread-safe stdout manipulation

	// logrusConfigOnce ensures logrus is configured exactly once to avoid data races.
	logrusConfigOnce sync.Once //nolint:gochecknoglobals // Required for one-time logrus initialization
)

// Engine drives a local k3d installation through its Cobra commands.
type Engine struct {
	runner runner.CommandRunner
}

var _ engine.Engine = (*Engine)(nil)

// NewEngine constructs a command-backed k3d engine.
func NewEngine() *Engine {
	// k3d logs through logrus; configure it once for console output.
	logrusConfigOnce.Do(func() {
		logrus.SetOutput(os.Stdout)
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:      true,
			DisableTimestamp: false,
			FullTimestamp:    false,
			TimestampFormat:  "2006-01-02T15:04:05Z",
		})
		logrus.SetLevel(logrus.InfoLevel)
	})

	return &Engine{runner: runner.NewCobraCommandRunner(nil, nil)}
}

// Create provisions a k3d cluster publishing the API server and load
// balancer on the assigned host ports. The default kubeconfig is left
// untouched; kubeconfigs are managed per cluster by the caller.
func (e *Engine) Create(ctx context.Context, opts engine.CreateOptions) error {
	args := []string{
		opts.Name,
		"--api-port", "127.0.0.1:" + strconv.Itoa(opts.APIPort),
		"--port", fmt.Sprintf("%d:80@loadbalancer", opts.LoadBalancerPort),
		"--kubeconfig-update-default=false",
		"--kubeconfig-switch-context=false",
		"--wait",
	}

	if opts.Timeout > 0 {
		args = append(args, "--timeout", opts.Timeout.String())
	}

	if opts.Image != "" {
		args = append(args, "--image", opts.Image)
	}

	_, err := e.runner.Run(ctx, clustercommand.NewCmdClusterCreate(), args)
	if err != nil {
		return fmt.Errorf("cluster create: %w", err)
	}

	return nil
}

// Delete removes a k3d cluster via the Cobra command.
func (e *Engine) Delete(ctx context.Context, name string) error {
	_, err := e.runner.Run(ctx, clustercommand.NewCmdClusterDelete(), []string{name})
	if err != nil {
		return fmt.Errorf("cluster delete: %w", err)
	}

	return nil
}

// List returns cluster names reported by the Cobra command.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	output, err := e.captureCommand(
		ctx,
		clustercommand.NewCmdClusterList(),
		[]string{"--output", "json"},
	)
	if err != nil {
		return nil, fmt.Errorf("cluster list: %w", err)
	}

	return parseClusterNames(output)
}

// ImportImage loads a locally built image into the cluster's containerd
// cache.
func (e *Engine) ImportImage(ctx context.Context, name, image string) error {
	_, err := e.runner.Run(
		ctx,
		imagecommand.NewCmdImageImport(),
		[]string{image, "--cluster", name},
	)
	if err != nil {
		return fmt.Errorf("image import: %w", err)
	}

	return nil
}

// LabelNodes applies the labels to all nodes through the cluster's own API,
// using the kubeconfig the engine generated.
func (e *Engine) LabelNodes(
	ctx context.Context,
	name string,
	labels map[string]string,
) error {
	raw, err := e.Kubeconfig(ctx, name)
	if err != nil {
		return err
	}

	clientset, err := k8s.NewClientset(raw)
	if err != nil {
		return fmt.Errorf("build cluster client: %w", err)
	}

	err = k8s.LabelNodes(ctx, clientset, labels)
	if err != nil {
		return fmt.Errorf("label nodes: %w", err)
	}

	return nil
}

// Kubeconfig returns the raw kubeconfig k3d holds for the cluster.
func (e *Engine) Kubeconfig(ctx context.Context, name string) ([]byte, error) {
	output, err := e.captureCommand(
		ctx,
		kubeconfigcommand.NewCmdKubeconfigGet(),
		[]string{name},
	)
	if err != nil {
		return nil, fmt.Errorf("kubeconfig get: %w", err)
	}

	return []byte(output), nil
}

// Version reports the k3d version string.
func (e *Engine) Version() string {
	return k3dversion.GetVersion()
}

// captureCommand runs a k3d Cobra command capturing everything it writes,
// whether through Cobra's writers or directly to os.Stdout.
func (e *Engine) captureCommand(
	ctx context.Context,
	cmd *cobra.Command,
	args []string,
) (string, error) {
	// Silence logrus while capturing so log lines do not pollute parsed output.
	originalLogOutput := logrus.StandardLogger().Out

	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(originalLogOutput)

	stdoutMutex.Lock()

	originalStdout := os.Stdout

	pipeReader, pipeWriter, err := os.Pipe()
	if err != nil {
		stdoutMutex.Unlock()

		return "", fmt.Errorf("create stdout pipe: %w", err)
	}

	os.Stdout = pipeWriter

	captureRunner := runner.NewCobraCommandRunner(io.Discard, io.Discard)
	res, runErr := captureRunner.Run(ctx, cmd, args)

	// Close the write end before reading and restore stdout while still
	// holding the lock.
	_ = pipeWriter.Close()
	os.Stdout = originalStdout

	stdoutMutex.Unlock()

	piped, copyErr := io.ReadAll(pipeReader)
	_ = pipeReader.Close()

	if copyErr != nil {
		logrus.WithError(copyErr).Debug("failed to drain stdout pipe")
	}

	if runErr != nil {
		return "", runErr
	}

	output := strings.TrimSpace(res.Stdout)
	if output == "" {
		output = strings.TrimSpace(string(piped))
	}

	return output, nil
}

// parseClusterNames parses JSON list output and extracts cluster names.
func parseClusterNames(output string) ([]string, error) {
	if output == "" {
		return nil, nil
	}

	var entries []struct {
		Name string `json:"name"`
	}

	decodeErr := json.Unmarshal([]byte(output), &entries)
	if decodeErr != nil {
		return nil, fmt.Errorf("parse cluster list output: %w", decodeErr)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Name != "" {
			names = append(names, entry.Name)
		}
	}

	return names, nil
}
