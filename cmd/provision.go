package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dockerclient "github.com/kdev-sh/kdev/pkg/client/docker"
	"github.com/kdev-sh/kdev/pkg/notify"
	"github.com/kdev-sh/kdev/pkg/ports"
	"github.com/kdev-sh/kdev/pkg/provision"
)

// NewProvisionCmd creates the provision command.
func NewProvisionCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "provision",
		Short:        "Provision the cluster for this repository and switch to it",
		Long:         `Provision the cluster derived from the current repository and developer identity, then make it the active context.`,
		SilenceUsage: true,
	}

	cmd.Flags().Bool("force", false, "Destroy and recreate an existing cluster")
	cmd.Flags().Bool("share", false, "Use one cluster per repository, shared across developers")
	cmd.Flags().String("tag", "", "k3s node image tag to use for the cluster")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		share, _ := cmd.Flags().GetBool("share")
		tag, _ := cmd.Flags().GetString("tag")

		return HandleProvisionRunE(cmd, deps, force, share, tag)
	}

	return cmd
}

// HandleProvisionRunE runs Provisioner then ContextSwitcher.
// Exported for testing purposes.
func HandleProvisionRunE(
	cmd *cobra.Command,
	deps Deps,
	force, share bool,
	tag string,
) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	ident, err := deps.Resolver.Resolve(workDir, share)
	if err != nil {
		return err
	}

	// Preflight: refuse to start without a reachable container engine.
	apiClient, err := dockerclient.GetDockerClient()
	if err != nil {
		return err
	}

	err = dockerclient.CheckEngineRunning(ctx, apiClient)
	if err != nil {
		return err
	}

	deps.Config.K3sImageTag = tag

	notify.WriteMessage(notify.Message{
		Type:    notify.TitleType,
		Content: "Provisioning cluster '%s'...",
		Args:    []any{ident.ClusterName()},
		Writer:  out,
	})

	provisioner := provision.NewProvisioner(provision.Options{
		Engine:    deps.Engine,
		Registry:  deps.Registry,
		Allocator: ports.NewAllocator(nil),
		Config:    deps.Config,
		Fs:        deps.Fs,
		Out:       out,
	})

	record, err := provisioner.Provision(ctx, ident, force)
	if err != nil {
		return err
	}

	kubeconfigPath, err := deps.Switcher.Activate(ctx, record.Name)
	if err != nil {
		return err
	}

	notify.WriteMessage(notify.Message{
		Type:    notify.SuccessType,
		Content: "cluster '%s' is active",
		Args:    []any{record.Name},
		Writer:  out,
	})
	notify.WriteMessage(notify.Message{
		Type:    notify.InfoType,
		Content: "export KUBECONFIG=%s",
		Args:    []any{kubeconfigPath},
		Writer:  out,
	})

	return nil
}
