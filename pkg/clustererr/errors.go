// Package clustererr provides the error taxonomy shared across the
// provisioning components.
//
// Fatal error classes are distinguished structurally (sentinel values and
// typed errors) so callers can branch with errors.Is / errors.As instead of
// matching message text.
package clustererr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingDeveloperName is returned when no developer display name is
// configured in the VCS user configuration. Identity cannot be established,
// so this aborts before any cluster mutation.
var ErrMissingDeveloperName = errors.New(
	"developer name is not configured: set user.name in your git configuration",
)

// PortExhaustionError is returned when no free port is found within the
// bounded probing window.
type PortExhaustionError struct {
	// StartPort is the first candidate port that was probed.
	StartPort int
	// Probes is the number of probes attempted before giving up.
	Probes int
}

func (e *PortExhaustionError) Error() string {
	return fmt.Sprintf(
		"no free port found in %d probes starting at %d",
		e.Probes, e.StartPort,
	)
}

// ProvisioningTimeoutError is returned when a created cluster did not reach a
// ready state within the configured deadline. The cluster may be left running;
// the operator is told to inspect or delete it rather than the tool silently
// destroying it.
type ProvisioningTimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *ProvisioningTimeoutError) Error() string {
	return fmt.Sprintf(
		"cluster %q did not become ready within %s: inspect it or run 'kdev delete %s'",
		e.Name, e.Timeout, e.Name,
	)
}

// EngineCreateError wraps the cluster engine's own diagnostic when a create
// call fails.
type EngineCreateError struct {
	Name string
	Err  error
}

func (e *EngineCreateError) Error() string {
	return fmt.Sprintf("engine failed to create cluster %q: %v", e.Name, e.Err)
}

func (e *EngineCreateError) Unwrap() error { return e.Err }

// NotFoundError is returned when a requested cluster name has no registry
// record. It carries the currently known names so callers can present them.
type NotFoundError struct {
	Name  string
	Known []string
}

func (e *NotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("no cluster named %q is registered (no clusters known)", e.Name)
	}

	return fmt.Sprintf(
		"no cluster named %q is registered (known clusters: %s)",
		e.Name, strings.Join(e.Known, ", "),
	)
}

// StaleRecordError is returned when a registry record exists but the
// underlying cluster no longer does. Recoverable via 'kdev cleanup' followed
// by 'kdev provision'.
type StaleRecordError struct {
	Name string
}

func (e *StaleRecordError) Error() string {
	return fmt.Sprintf(
		"cluster %q has a registry record but no longer exists: run 'kdev cleanup'",
		e.Name,
	)
}
