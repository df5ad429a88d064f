package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kdev-sh/kdev/pkg/clustererr"
	"github.com/kdev-sh/kdev/pkg/k8s"
)

// NewResourcesCmd creates the resources command.
func NewResourcesCmd(vpr *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "resources [name]",
		Short:        "Show workloads running in a cluster",
		Long:         `Read-only inspection of the given (or active) cluster's workloads through the cluster's own API.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		deps, err := newDeps(vpr, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		return HandleResourcesRunE(cmd, deps, name)
	}

	return cmd
}

// HandleResourcesRunE lists pods and deployments of the named or active
// cluster.
// Exported for testing purposes.
func HandleResourcesRunE(cmd *cobra.Command, deps Deps, name string) error {
	if name == "" {
		active := deps.Switcher.Active()
		if active == nil {
			return &clustererr.NotFoundError{Name: "(active)", Known: deps.Registry.Names()}
		}

		name = active.Name
	}

	record, err := deps.Registry.Get(name)
	if err != nil {
		return err
	}

	raw, err := afero.ReadFile(deps.Fs, record.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("read kubeconfig for %q: %w", name, err)
	}

	clientset, err := k8s.NewClientset(raw)
	if err != nil {
		return err
	}

	return printWorkloads(cmd.Context(), cmd, clientset)
}

// printWorkloads renders deployments and pods across all namespaces.
func printWorkloads(
	ctx context.Context,
	cmd *cobra.Command,
	clientset kubernetes.Interface,
) error {
	out := cmd.OutOrStdout()

	deployments, err := clientset.AppsV1().
		Deployments(metav1.NamespaceAll).
		List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list deployments: %w", err)
	}

	pods, err := clientset.CoreV1().
		Pods(metav1.NamespaceAll).
		List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list pods: %w", err)
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(writer, "KIND\tNAMESPACE\tNAME\tSTATUS")

	for i := range deployments.Items {
		deployment := &deployments.Items[i]
		fmt.Fprintf(
			writer,
			"Deployment\t%s\t%s\t%d/%d\n",
			deployment.Namespace,
			deployment.Name,
			deployment.Status.ReadyReplicas,
			deployment.Status.Replicas,
		)
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		fmt.Fprintf(
			writer,
			"Pod\t%s\t%s\t%s\n",
			pod.Namespace,
			pod.Name,
			pod.Status.Phase,
		)
	}

	return writer.Flush()
}
