// Package driver is the scheduler's client for the cluster manager's control
// plane. Only task reconciliation is implemented: HTTPDriver posts a RECONCILE
// call to the manager's scheduler HTTP API, and RecordingDriver captures calls
// in memory for dry runs and tests.
package driver
