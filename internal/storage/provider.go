// Package storage defines the docs directory file-system abstraction.
package storage

// DocInfo is a lightweight description of one Markdown file under the
// docs root, as returned by List.
type DocInfo struct {
	Path     string // relative to the docs root
	Checksum string // hex SHA-256 of the file content
}

// Provider is the interface for docs directory file operations. The sync
// never writes: sources are owned by the repository, remote IDs are
// reported to the operator instead of being written back.
type Provider interface {
	// List walks the docs root and returns every .md file in walk order.
	List() ([]DocInfo, error)
	// Read returns the raw bytes of the file at path (relative to the
	// docs root). Used for documents and for image attachments alike.
	Read(path string) ([]byte, error)
	// Root returns the absolute docs root path.
	Root() string
}
