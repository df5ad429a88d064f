package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdev-sh/kdev/pkg/notify"
)

// NewListCmd creates the list command.
func NewListCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List registered clusters",
		Long:         `List all registry records with a marker for the active cluster.`,
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		return HandleListRunE(cmd, deps)
	}

	return cmd
}

// HandleListRunE prints all registry records. An empty registry is not an
// error.
// Exported for testing purposes.
func HandleListRunE(cmd *cobra.Command, deps Deps) error {
	out := cmd.OutOrStdout()

	records, err := deps.Registry.List()
	if err != nil {
		return err
	}

	if len(records) == 0 {
		notify.WriteMessage(notify.Message{
			Type:    notify.ActivityType,
			Content: "no clusters found",
			Writer:  out,
		})

		return nil
	}

	activeName := ""
	if active := deps.Switcher.Active(); active != nil {
		activeName = active.Name
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(writer, "  NAME\tREPOSITORY\tDEVELOPER\tLB\tAPI\tSHARED\tCREATED")

	for _, record := range records {
		marker := " "
		if record.Name == activeName {
			marker = "*"
		}

		fmt.Fprintf(
			writer,
			"%s %s\t%s\t%s\t%d\t%d\t%t\t%s\n",
			marker,
			record.Name,
			record.Repository,
			record.Developer,
			record.LoadBalancerPort,
			record.APIPort,
			record.Shared,
			record.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	return writer.Flush()
}
