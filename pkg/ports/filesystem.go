package ports

// FileSystem reads project files and writes outputs: rendered frames,
// exported videos, edited projects and debug dumps.
type FileSystem interface {
	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces path with data, creating parent directories. Readers
	// see either the previous content or data, never a partial write.
	WriteFile(path string, data []byte) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error
}
