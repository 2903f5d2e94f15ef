package storage

import (
	"path/filepath"
	"strings"
	"sync"
)

// DedupStore records which filenames and content hashes have been written
// during the running session. It is the single synchronization point that
// keeps two concurrent workers from materializing the same logical file.
type DedupStore struct {
	mu        sync.Mutex
	filenames map[string]bool
	hashes    map[string]bool
}

// NewDedupStore creates an empty session-scoped dedup store
func NewDedupStore() *DedupStore {
	return &DedupStore{
		filenames: make(map[string]bool),
		hashes:    make(map[string]bool),
	}
}

// normalizeFilename scopes a filename to its folder and lowercases it so
// "Tifa/a.JPG" and "tifa/A.jpg" count as the same entry.
func normalizeFilename(folder, filename string) string {
	return strings.ToLower(filepath.Join(folder, filename))
}

// TryReserve atomically checks the filename and hash against the session
// record. If neither was seen, both are recorded and true is returned; the
// caller owns the write. Otherwise false is returned and the caller skips
// the file as a duplicate. An empty hash reserves the filename only.
func (d *DedupStore) TryReserve(folder, filename, hash string) bool {
	key := normalizeFilename(folder, filename)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filenames[key] {
		return false
	}
	if hash != "" && d.hashes[hash] {
		return false
	}

	d.filenames[key] = true
	if hash != "" {
		d.hashes[hash] = true
	}
	return true
}

// Release drops a reservation after a failed write so a retry pass can
// attempt the same file again.
func (d *DedupStore) Release(folder, filename, hash string) {
	key := normalizeFilename(folder, filename)

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.filenames, key)
	if hash != "" {
		delete(d.hashes, hash)
	}
}

// TryReserveHash records a content hash once the bytes are known, for
// writes whose filename was reserved before the download started. Returns
// false when another worker already wrote identical content.
func (d *DedupStore) TryReserveHash(hash string) bool {
	if hash == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hashes[hash] {
		return false
	}
	d.hashes[hash] = true
	return true
}

// SeenFilename reports whether a filename is already recorded
func (d *DedupStore) SeenFilename(folder, filename string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filenames[normalizeFilename(folder, filename)]
}

// Counts returns the number of recorded filenames and hashes
func (d *DedupStore) Counts() (filenames, hashes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.filenames), len(d.hashes)
}
