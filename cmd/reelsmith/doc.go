// Command reelsmith is the CLI entry point: it runs the daemon and inspects
// projects over its HTTP API.
package main
