// Package services defines the shared error taxonomy and context annotations
// used by pipeline stages and external synthesis adapters.
package services
