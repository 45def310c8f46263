// Package cachefile implements the disk overflow store for resource payloads.
//
// # Files
//
// A [File] is one append-biased backing file plus an in-memory catalog of the
// handles it holds. Its [State] is a bit-set:
//
//	Closed(0) | Created | Opened | Read | Write | Invalid
//
// [File.Open] lazily creates the backing file, reopens it and seeks to the
// position implied by the mode. A failure at any of these steps clears
// Created and raises Invalid. A failed stream operation gets one local
// recovery cycle (close, reopen in the last mode); a second failure raises
// Invalid, after which the file refuses every operation with [ErrInvalid]
// until its catalog is handed to a fresh file with [Recover].
//
// # Record Format
//
// Each record is framed by markers derived from fixed templates:
//
//	[[resgo:42:begin]]<payload bytes>[[resgo:42:end]]\n
//
// There is no header and no index block; the catalog lives only in memory.
// [Scan] and [ScanFile] walk the records linearly.
//
// # Placement
//
// A [Pool] spreads records over several files under a per-file size limit.
// It tries the last used file, then any file with room, then creates a new
// one. On a stream fault it recovers the file and retries once.
//
// Files and pools are not safe for concurrent use.
package cachefile
