// Package fs provides the filesystem abstraction used by cache files.
//
// The package defines two interfaces:
//
//   - [File]: an open file with read/write/seek capabilities
//   - [FileSystem]: open, remove, stat, truncate and mkdir
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects open, seek, read, write and close
//     failures for files whose name contains a pattern
//
// Production code uses fs.Default. Tests inject a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("cache-", fs.Fault{FailAfterBytes: 0})
//
// Filesystem operations take no context.Context: local file IO is not
// interruptible at the syscall level.
package fs
