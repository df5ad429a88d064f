// Package client holds embedded clients for external tooling.
//
// Currently this is the Docker engine client used for the provisioning
// preflight. Embedding the client as a Go library keeps Docker as the only
// external runtime dependency.
package client
