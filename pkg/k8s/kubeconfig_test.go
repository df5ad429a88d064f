package k8s_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdev-sh/kdev/pkg/k8s"
)

const kubeconfigFixture = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://0.0.0.0:33921
  name: k3d-repo-ada
contexts:
- context:
    cluster: k3d-repo-ada
    user: admin
  name: k3d-repo-ada
current-context: k3d-repo-ada
users:
- name: admin
  user:
    token: abc
`

func TestRewriteServer(t *testing.T) {
	t.Parallel()

	rewritten, err := k8s.RewriteServer([]byte(kubeconfigFixture), 6488)
	require.NoError(t, err)

	content := string(rewritten)
	assert.Contains(t, content, "https://localhost:6488")
	assert.NotContains(t, content, "0.0.0.0")
}

func TestRewriteServer_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := k8s.RewriteServer([]byte("::definitely not yaml::"), 6488)
	require.Error(t, err)
}

func TestAPIServerPort(t *testing.T) {
	t.Parallel()

	port, err := k8s.APIServerPort([]byte(kubeconfigFixture))
	require.NoError(t, err)
	assert.Equal(t, 33921, port)
}

func TestAPIServerPort_NoPort(t *testing.T) {
	t.Parallel()

	noPort := `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://example.com
  name: remote
`

	_, err := k8s.APIServerPort([]byte(noPort))
	require.Error(t, err)
}

func TestWriteFile_CreatesParentDirectories(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()

	err := k8s.WriteFile(fsys, "/kdev/kubeconfigs/config-repo-ada", []byte("data"))
	require.NoError(t, err)

	data, err := afero.ReadFile(fsys, "/kdev/kubeconfigs/config-repo-ada")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
