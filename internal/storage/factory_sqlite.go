//go:build sqlite

package storage

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

// DefaultStoreKind names the backend used when config does not pick one.
func DefaultStoreKind() string { return "sqlite" }
