package storage

// MemoryBackend names the in-process store.
const MemoryBackend = "memory"

// NewStore returns the memory store for "" or "memory", and otherwise a
// SQLite store at the given database path. The store still needs Init.
func NewStore(location string) Store {
	switch location {
	case "", MemoryBackend:
		return NewMemoryStore()
	default:
		return NewSQLiteStore(location)
	}
}
