package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdev-sh/kdev/pkg/notify"
)

// NewSwitchCmd creates the switch command.
func NewSwitchCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "switch <name>",
		Short:        "Activate a previously provisioned cluster",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		return HandleSwitchRunE(cmd, deps, args[0])
	}

	return cmd
}

// HandleSwitchRunE activates the named cluster.
// Exported for testing purposes.
func HandleSwitchRunE(cmd *cobra.Command, deps Deps, name string) error {
	kubeconfigPath, err := deps.Switcher.Activate(cmd.Context(), name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	notify.WriteMessage(notify.Message{
		Type:    notify.SuccessType,
		Content: "cluster '%s' is active",
		Args:    []any{name},
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
