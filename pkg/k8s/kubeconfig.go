package k8s

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// kubeconfigFileMode is the file mode for kubeconfig files.
	kubeconfigFileMode = 0o600

	kubeconfigDirMode = 0o755
)

// RewriteServer rewrites every cluster endpoint in the kubeconfig to
// localhost on the given API port so the file is usable from the host
// regardless of which loopback or internal hostname the engine emitted.
func RewriteServer(raw []byte, apiPort int) ([]byte, error) {
	cfg, err := clientcmd.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("parse kubeconfig: %w", err)
	}

	for _, cluster := range cfg.Clusters {
		cluster.Server = fmt.Sprintf("https://localhost:%d", apiPort)
	}

	rewritten, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("serialize kubeconfig: %w", err)
	}

	return rewritten, nil
}

// WriteFile writes a kubeconfig to path, creating parent directories.
func WriteFile(fsys afero.Fs, path string, data []byte) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	err := fsys.MkdirAll(filepath.Dir(path), kubeconfigDirMode)
	if err != nil {
		return fmt.Errorf("create kubeconfig directory: %w", err)
	}

	err = afero.WriteFile(fsys, path, data, kubeconfigFileMode)
	if err != nil {
		return fmt.Errorf("write kubeconfig %s: %w", path, err)
	}

	return nil
}

// APIServerPort extracts the host port of the first cluster endpoint in the
// kubeconfig. Used to rebuild a registry record from live engine metadata.
func APIServerPort(raw []byte) (int, error) {
	cfg, err := clientcmd.Load(raw)
	if err != nil {
		return 0, fmt.Errorf("parse kubeconfig: %w", err)
	}

	for _, cluster := range cfg.Clusters {
		port, portErr := portFromServerURL(cluster.Server)
		if portErr == nil {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no cluster endpoint with a port found in kubeconfig")
}
