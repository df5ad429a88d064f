// Package cmd wires the kdev command line surface.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root command with version info and all subcommands.
func NewRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kdev",
		Short: "kdev manages per-developer local Kubernetes clusters",
		Long: "kdev provisions one ephemeral local Kubernetes cluster per " +
			"(repository, developer) pair and switches between them.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = fmt.Sprintf("%s (Built on %s from Git SHA %s)", version, date, commit)

	vpr := viper.New()
	vpr.SetEnvPrefix("KDEV")
	vpr.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vpr.AutomaticEnv()

	cmd.PersistentFlags().String(
		"config-root", "", "Configuration root directory (default: <user config dir>/kdev)",
	)
	cmd.PersistentFlags().Int(
		"base-lb-port", 0, "Base host port for cluster load balancers (default: 8080)",
	)
	cmd.PersistentFlags().Int(
		"base-api-port", 0, "Base host port for cluster API servers (default: 6445)",
	)
	cmd.PersistentFlags().Duration(
		"timeout", 0, "Cluster readiness timeout (default: 60s)",
	)

	for _, flag := range []string{"config-root", "base-lb-port", "base-api-port", "timeout"} {
		_ = vpr.BindPFlag(flag, cmd.PersistentFlags().Lookup(flag))
	}

	cmd.AddCommand(
		NewProvisionCmd(vpr),
		NewListCmd(vpr),
		NewSwitchCmd(vpr),
		NewCurrentCmd(vpr),
		NewDeleteCmd(vpr),
		NewResourcesCmd(vpr),
		NewCleanupCmd(vpr),
	)

	return cmd
}

// Execute runs the root command.
func Execute(cmd *cobra.Command) error {
	err := cmd.Execute()
	if err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}

	return nil
}
