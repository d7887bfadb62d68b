// Package daemon wires the store, service clients, and HTTP surface into a
// single-instance background process.
package daemon
