package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdev-sh/kdev/pkg/notify"
)

// NewCurrentCmd creates the current command.
func NewCurrentCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "current",
		Short:        "Show the active cluster",
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		return HandleCurrentRunE(cmd, deps)
	}

	return cmd
}

// HandleCurrentRunE prints the active cluster's record, or a "none active"
// message. Always exits zero.
// Exported for testing purposes.
func HandleCurrentRunE(cmd *cobra.Command, deps Deps) error {
	out := cmd.OutOrStdout()

	record := deps.Switcher.Active()
	if record == nil {
		notify.WriteMessage(notify.Message{
			Type:    notify.ActivityType,
			Content: "no cluster active",
			Writer:  out,
		})

		return nil
	}

	fmt.Fprintf(out, "name:        %s\n", record.Name)
	fmt.Fprintf(out, "repository:  %s\n", record.Repository)
	fmt.Fprintf(out, "developer:   %s <%s>\n", record.Developer, record.Email)
	fmt.Fprintf(out, "lb port:     %d\n", record.LoadBalancerPort)
	fmt.Fprintf(out, "api port:    %d\n", record.APIPort)
	fmt.Fprintf(out, "kubeconfig:  %s\n", record.KubeconfigPath)
	fmt.Fprintf(out, "created:     %s\n", record.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(out, "engine:      %s\n", record.EngineVersion)
	fmt.Fprintf(out, "shared:      %t\n", record.Shared)

	return nil
}
