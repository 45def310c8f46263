package cachefile

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Recover hands the catalog of the Invalid file src to the pristine file dst
// and destroys src. The bytes src wrote are salvaged into dst on a best-effort
// basis; reads verify framing and digests, so a failed salvage surfaces as
// ErrCorrupt on the affected records rather than here.
//
// Recover succeeds at most once per source.
func Recover(dst, src *File) error {
	if dst == nil || src == nil {
		return errors.New("cachefile: recover needs two files")
	}
	if src.spent {
		return ErrSpent
	}
	if !src.state.Has(Invalid) {
		return fmt.Errorf("%w: %s is %s", ErrNotRecoverable, src.path, src.state)
	}
	if dst.spent || dst.state != Closed || dst.owned || len(dst.catalog) > 0 {
		return fmt.Errorf("%w: %s", ErrNotPristine, dst.path)
	}

	dst.compression = src.compression
	if src.owned && src.end > 0 {
		if err := dst.Open(ModeWrite); err != nil {
			return err
		}
		if err := dst.salvage(src); err != nil && dst.logger != nil {
			dst.logger.Warn("cache salvage incomplete", "from", src.path, "to", dst.path, "error", err)
		}
	}

	dst.catalog, src.catalog = src.catalog, dst.catalog
	dst.size, src.size = src.size, 0

	if dst.logger != nil {
		dst.logger.Info("cache file recovered", "from", src.path, "to", dst.path,
			"records", len(dst.catalog), "size", dst.size)
	}

	if err := src.Destroy(); err != nil && dst.logger != nil {
		dst.logger.Warn("cache file removal failed", "path", src.path, "error", err)
	}
	return nil
}

// salvage copies the written prefix of src into the freshly created dst.
func (f *File) salvage(src *File) error {
	in, err := src.fsys.OpenFile(src.path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer in.Close()

	n, err := io.Copy(f.fh, io.LimitReader(in, src.end))
	f.end = n
	if err != nil {
		f.streamErr = err
		return err
	}
	return f.Close()
}
