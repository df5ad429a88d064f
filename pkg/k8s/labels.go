package k8s

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// LabelNodes applies the labels to every node of the cluster via a strategic
// merge patch.
func LabelNodes(
	ctx context.Context,
	clientset kubernetes.Interface,
	labels map[string]string,
) error {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"labels": labels,
		},
	})
	if err != nil {
		return fmt.Errorf("encode label patch: %w", err)
	}

	for i := range nodes.Items {
		_, err = clientset.CoreV1().Nodes().Patch(
			ctx,
			nodes.Items[i].Name,
			types.StrategicMergePatchType,
			patch,
			metav1.PatchOptions{},
		)
		if err != nil {
			return fmt.Errorf("patch node %s: %w", nodes.Items[i].Name, err)
		}
	}

	return nil
}
