// Package logging configures slog for the daemon: a console handler for
// interactive use, a JSON handler for log files, and helpers that carry
// project/stage/request fields through context.
package logging
