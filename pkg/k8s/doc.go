// Package k8s provides the Kubernetes-facing helpers the provisioning flow
// needs: kubeconfig rewriting for host access, API readiness polling, and
// node labeling.
package k8s
