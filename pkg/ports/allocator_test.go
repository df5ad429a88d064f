package ports_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdev-sh/kdev/pkg/clustererr"
	"github.com/kdev-sh/kdev/pkg/ports"
)

// fakeProber treats the ports in busy as occupied and can record every port
// it hands out as busy, simulating sequential allocation on one host.
type fakeProber struct {
	busy        map[int]bool
	claimOnFree bool
}

func (p *fakeProber) Free(port int) bool {
	if p.busy[port] {
		return false
	}

	if p.claimOnFree {
		p.busy[port] = true
	}

	return true
}

func TestOffset_IsDeterministicAndBounded(t *testing.T) {
	t.Parallel()

	names := []string{"repo", "repo-ada-lovelace-abc123", "x", ""}

	for _, name := range names {
		first := ports.Offset(name)
		assert.Equal(t, first, ports.Offset(name))
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 100)
	}
}

func TestAllocate_UsesDeterministicOffset(t *testing.T) {
	t.Parallel()

	allocator := ports.NewAllocator(&fakeProber{busy: map[int]bool{}})
	base := ports.BasePorts{LoadBalancer: 8080, API: 6445}

	assignment, err := allocator.Allocate("repo", base, 10)
	require.NoError(t, err)

	offset := ports.Offset("repo")
	assert.Equal(t, 8080+offset, assignment.LoadBalancerPort)
	assert.Equal(t, 6445+offset, assignment.APIPort)
}

func TestAllocate_ProbesPastOccupiedPorts(t *testing.T) {
	t.Parallel()

	offset := ports.Offset("repo")
	prober := &fakeProber{busy: map[int]bool{
		8080 + offset:     true,
		8080 + offset + 1: true,
		6445 + offset:     true,
	}}

	allocator := ports.NewAllocator(prober)

	assignment, err := allocator.Allocate(
		"repo",
		ports.BasePorts{LoadBalancer: 8080, API: 6445},
		10,
	)
	require.NoError(t, err)

	// The two ports probe independently; final values need not share an offset.
	assert.Equal(t, 8080+offset+2, assignment.LoadBalancerPort)
	assert.Equal(t, 6445+offset+1, assignment.APIPort)
}

func TestAllocate_ExhaustionIsTyped(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{busy: map[int]bool{}, claimOnFree: false}

	offset := ports.Offset("repo")
	for probe := range 5 {
		prober.busy[8080+offset+probe] = true
	}

	allocator := ports.NewAllocator(prober)

	_, err := allocator.Allocate("repo", ports.BasePorts{LoadBalancer: 8080, API: 6445}, 5)
	require.Error(t, err)

	var exhaustion *clustererr.PortExhaustionError

	require.ErrorAs(t, err, &exhaustion)
	assert.Equal(t, 5, exhaustion.Probes)
}

func TestAllocate_SequentialAssignmentsNeverOverlap(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{busy: map[int]bool{}, claimOnFree: true}
	allocator := ports.NewAllocator(prober)
	base := ports.BasePorts{LoadBalancer: 8080, API: 6445}

	names := []string{
		"repo-ada-lovelace-abc123",
		"repo-grace-hopper-def456",
		"other-ada-lovelace-abc123",
		"repo",
		"a", "b", "c", "d", "e", "f",
	}

	seen := map[int]string{}

	for _, name := range names {
		assignment, err := allocator.Allocate(name, base, 200)
		require.NoError(t, err)

		for _, port := range []int{assignment.LoadBalancerPort, assignment.APIPort} {
			previous, taken := seen[port]
			assert.False(t, taken, "port %d assigned to both %q and %q", port, previous, name)
			seen[port] = name
		}
	}
}

func TestTCPProber_DetectsBoundPort(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port

	prober := ports.TCPProber{}
	assert.False(t, prober.Free(port))

	require.NoError(t, listener.Close())
	assert.True(t, prober.Free(port))
}
