// Package api exposes the daemon's HTTP surface: project creation and
// inspection, stage triggers with live progress streams, targeted segment
// regeneration, and status introspection.
package api
