package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdev-sh/kdev/pkg/notify"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cleanup",
		Short:        "Remove records for clusters that no longer exist",
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		return HandleCleanupRunE(cmd, deps)
	}

	return cmd
}

// HandleCleanupRunE reconciles the registry against the live inventory and
// prints the removed names.
// Exported for testing purposes.
func HandleCleanupRunE(cmd *cobra.Command, deps Deps) error {
	out := cmd.OutOrStdout()

	removed, err := deps.collector().Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		notify.WriteMessage(notify.Message{
			Type:    notify.ActivityType,
			Content: "nothing to clean up",
			Writer:  out,
		})

		return nil
	}

	for _, name := range removed {
		notify.WriteMessage(notify.Message{
			Type:    notify.SuccessType,
			Content: "removed orphan record '%s'",
			Args:    []any{name},
			Writer:  out,
		})
	}

	return nil
}
