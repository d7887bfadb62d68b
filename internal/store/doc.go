// Package store persists projects and their narration segments in SQLite and
// owns the project status state machine.
package store
