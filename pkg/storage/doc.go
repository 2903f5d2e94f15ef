// Package storage handles the download directory layout and session-scoped
// deduplication.
//
// The Manager creates folders under the root download directory, resolves
// filename collisions with numeric suffixes, and writes files atomically via
// a temporary file and rename. It is backed by afero so tests run against an
// in-memory filesystem.
//
// The DedupStore records (folder-scoped filename, content hash) pairs for
// the running session. TryReserve is the single atomic gate: exactly one of
// any set of concurrent reservations for the same pair succeeds, and only
// that caller writes the file.
//
// Usage:
//
//	manager, err := storage.NewManager(afero.NewOsFs(), "downloads")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dedup := storage.NewDedupStore()
//	if dedup.TryReserve("Tifa", "art.jpg", hash) {
//	    _, err = manager.SaveFile(body, filepath.Join(folder, "art.jpg"))
//	}
package storage
