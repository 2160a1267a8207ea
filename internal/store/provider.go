// Package store persists whole JSON collections. Collections are read
// wholesale at startup and rewritten wholesale on every mutation; there
// is no partial update.
package store

// Collection file names.
const (
	TargetsCollection = "targets.json"
	MacrosCollection  = "macros.json"
)

// Provider is the persistence collaborator consumed by the registries.
type Provider interface {
	// ReadCollection returns the raw bytes of a named collection.
	// A missing collection returns an error wrapping os.ErrNotExist.
	ReadCollection(name string) ([]byte, error)
	// WriteCollection atomically replaces a named collection.
	WriteCollection(name string, data []byte) error
}
