// Package ports derives deterministic host port pairs for clusters and
// resolves collisions with already-bound ports by linear probing.
//
// Allocation is best-effort collision avoidance, not a lock: the
// authoritative check happens when the engine binds the port. Callers treat
// a bind race at create time as retryable.
package ports

import (
	"hash/crc32"
	"net"
	"strconv"

	"github.com/kdev-sh/kdev/pkg/clustererr"
)

// offsetWindow bounds the deterministic spread to a small, human-inspectable
// range.
const offsetWindow = 100

// Assignment is the host port pair chosen for one cluster. It is embedded in
// the cluster's registry record and immutable for the cluster's lifetime.
type Assignment struct {
	LoadBalancerPort int
	APIPort          int
}

// BasePorts anchors port derivation.
type BasePorts struct {
	LoadBalancer int
	API          int
}

// Prober reports whether a host TCP port is free.
type Prober interface {
	Free(port int) bool
}

// TCPProber probes the host TCP stack by attempting a loopback listen.
type TCPProber struct{}

// Free attempts to bind the port on loopback and releases it immediately.
func (TCPProber) Free(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}

	_ = listener.Close()

	return true
}

// Offset computes the deterministic port offset for a cluster name.
func Offset(clusterName string) int {
	return int(crc32.ChecksumIEEE([]byte(clusterName)) % offsetWindow)
}

// Allocator derives port assignments, probing the host for collisions.
type Allocator struct {
	prober Prober
}

// NewAllocator constructs an allocator. A nil prober defaults to the real
// host TCP prober.
func NewAllocator(prober Prober) *Allocator {
	if prober == nil {
		prober = TCPProber{}
	}

	return &Allocator{prober: prober}
}

// Allocate derives the port pair for clusterName from base ports plus the
// deterministic offset, probing each port independently up to searchLimit
// attempts. The two final ports need not share the same offset.
func (a *Allocator) Allocate(
	clusterName string,
	base BasePorts,
	searchLimit int,
) (Assignment, error) {
	offset := Offset(clusterName)

	lbPort, err := a.firstFree(base.LoadBalancer+offset, searchLimit, -1)
	if err != nil {
		return Assignment{}, err
	}

	// The API port must not land on the load balancer port when the base
	// ranges overlap.
	apiPort, err := a.firstFree(base.API+offset, searchLimit, lbPort)
	if err != nil {
		return Assignment{}, err
	}

	return Assignment{LoadBalancerPort: lbPort, APIPort: apiPort}, nil
}

// firstFree probes ports from start upward, skipping the excluded port.
func (a *Allocator) firstFree(start, searchLimit, exclude int) (int, error) {
	for probe := range searchLimit {
		candidate := start + probe
		if candidate == exclude {
			continue
		}

		if a.prober.Free(candidate) {
			return candidate, nil
		}
	}

	return 0, &clustererr.PortExhaustionError{StartPort: start, Probes: searchLimit}
}
