package fs

import (
	"io"
	"os"
)

// File is an open cache file. Records are appended through Write after a
// Seek to the end and located through ReadAt.
type File interface {
	io.ReadWriteSeeker
	io.ReaderAt
	io.Closer
	Stat() (os.FileInfo, error)
}

// FileSystem is the subset of the os package a cache file touches.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	Truncate(name string, size int64) error
	Stat(name string) (os.FileInfo, error)
	Remove(name string) error
}

// LocalFS forwards to the os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (LocalFS) Truncate(name string, size int64) error {
	return os.Truncate(name, size)
}

func (LocalFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (LocalFS) Remove(name string) error {
	return os.Remove(name)
}

// Default is the file system cache files use unless configured otherwise.
var Default FileSystem = LocalFS{}

// Exists reports whether name can be stat'ed on fsys.
func Exists(fsys FileSystem, name string) bool {
	_, err := fsys.Stat(name)
	return err == nil
}
