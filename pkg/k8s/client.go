package k8s

import (
	"fmt"
	"net/url"
	"strconv"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset builds a Kubernetes clientset from raw kubeconfig bytes.
func NewClientset(raw []byte) (*kubernetes.Clientset, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}

	return clientset, nil
}

// portFromServerURL parses the port out of an API server URL.
func portFromServerURL(server string) (int, error) {
	parsed, err := url.Parse(server)
	if err != nil {
		return 0, fmt.Errorf("parse server url: %w", err)
	}

	portStr := parsed.Port()
	if portStr == "" {
		return 0, fmt.Errorf("server url %q has no explicit port", server)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse server port: %w", err)
	}

	return port, nil
}
