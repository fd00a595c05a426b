// Package sandbox ensures that the remote execution environment for a
// run exists and exposes a public preview endpoint.
//
// Both operations are create-or-reuse and keyed by name. A Provisioner
// never deletes or recreates a sandbox: an existing sandbox with the
// same name is validated and reused, and an incompatible one is an
// error. The sandbox is left running when the run ends.
//
// Backends adapt a concrete hosting system (the hosted control plane
// API, agent-sandbox on Kubernetes, an in-memory fake for tests) to the
// Backend interface. They report conditions through the sentinel errors
// in this package; the Provisioner turns everything into *api.Error
// values of kind provision.
package sandbox
