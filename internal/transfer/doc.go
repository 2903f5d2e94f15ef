// Package transfer moves individual files to disk. A download runs either
// as one streamed GET or, for large files on range-capable hosts, as
// concurrent byte-range chunks merged into a preallocated file; a failed
// chunk restarts the whole file single-stream instead of surfacing the
// chunk error. The package also owns the output naming pipeline
// (remove-words, sequential naming styles, forced overrides, collision
// suffixes) and the optional image recompression pass.
package transfer
