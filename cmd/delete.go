package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdev-sh/kdev/pkg/notify"
)

// NewDeleteCmd creates the delete command.
func NewDeleteCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "delete <name>",
		Short:        "Destroy a cluster and remove its record",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		return HandleDeleteRunE(cmd, deps, args[0])
	}

	return cmd
}

// HandleDeleteRunE destroys the underlying cluster best-effort and removes
// its registry record and kubeconfig. Idempotent: deleting an unknown name
// succeeds.
// Exported for testing purposes.
func HandleDeleteRunE(cmd *cobra.Command, deps Deps, name string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	err := deps.Engine.Delete(ctx, name)
	if err != nil {
		// The cluster may already be gone; record removal proceeds either way.
		notify.WriteMessage(notify.Message{
			Type:    notify.WarningType,
			Content: "engine delete of '%s' failed: %v",
			Args:    []any{name, err},
			Writer:  out,
		})
	}

	err = deps.Registry.Delete(name)
	if err != nil {
		return err
	}

	_ = deps.Fs.Remove(deps.Config.KubeconfigPath(name))
	deps.Switcher.Deactivate(name)

	notify.WriteMessage(notify.Message{
		Type:    notify.SuccessType,
		Content: "cluster '%s' deleted",
		Args:    []any{name},
		Writer:  out,
	})

	return nil
}
