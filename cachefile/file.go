package cachefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/hupe1980/resgo/internal/fs"
	"github.com/hupe1980/resgo/resource"
)

var (
	// ErrInvalid is returned by every operation on an Invalid file.
	ErrInvalid = errors.New("cache file is invalid")
	// ErrDuplicate is returned when a handle is registered twice.
	ErrDuplicate = errors.New("handle already cached")
	// ErrNotFound is returned when a handle is not in the catalog.
	ErrNotFound = errors.New("handle not cached")
	// ErrCorrupt is returned when a record's framing or digest does not match.
	ErrCorrupt = errors.New("corrupt cache record")
	// ErrSpent is returned by files whose catalog was handed off or destroyed.
	ErrSpent = errors.New("cache file was destroyed")
	// ErrNotRecoverable is returned by Recover for a source that is not Invalid.
	ErrNotRecoverable = errors.New("cache file is not invalid")
	// ErrNotPristine is returned by Recover for a destination already in use.
	ErrNotPristine = errors.New("cache file is not pristine")
)

// DefaultLimit is the default per-file size limit (250 MiB).
const DefaultLimit int64 = 250 << 20

// Entry describes one cataloged record.
type Entry struct {
	// Offset is the payload offset in the backing file, -1 if unknown.
	Offset int64
	// Size is the number of payload bytes.
	Size int64
	// Sum is the blake3 digest of the stored payload bytes.
	Sum [32]byte

	hasSum bool
}

// Option configures a File.
type Option func(*File)

// WithFS sets the filesystem used for the backing file.
func WithFS(fsys fs.FileSystem) Option {
	return func(f *File) {
		if fsys != nil {
			f.fsys = fsys
		}
	}
}

// WithLogger sets the logger for stream faults and recovery.
func WithLogger(l *slog.Logger) Option {
	return func(f *File) {
		f.logger = l
	}
}

// WithCompression sets the payload encoding for new records.
func WithCompression(c Compression) Option {
	return func(f *File) {
		f.compression = c
	}
}

// File is one backing file plus the catalog of records it holds.
type File struct {
	path        string
	limit       int64
	fsys        fs.FileSystem
	logger      *slog.Logger
	compression Compression

	state     State
	mode      Mode
	fh        fs.File
	streamErr error
	owned     bool // the backing file was created by this File
	spent     bool
	end       int64

	catalog map[resource.ID]Entry
	size    int64
}

// New returns a Closed file for path. Nothing touches the disk until the
// first Open. limit <= 0 selects DefaultLimit.
func New(path string, limit int64, opts ...Option) *File {
	if limit <= 0 {
		limit = DefaultLimit
	}
	f := &File{
		path:    path,
		limit:   limit,
		fsys:    fs.Default,
		catalog: make(map[resource.ID]Entry),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Limit returns the configured size limit.
func (f *File) Limit() int64 { return f.limit }

// State returns the current state bits.
func (f *File) State() State { return f.state }

// Mode returns the mode of the last successful Open.
func (f *File) Mode() Mode { return f.mode }

// Compression returns the payload encoding.
func (f *File) Compression() Compression { return f.compression }

// Size returns the sum of cataloged payload sizes.
func (f *File) Size() int64 { return f.size }

// FreeSize returns limit - size. Negative values signal an over-budget file.
func (f *File) FreeSize() int64 { return f.limit - f.size }

// Len returns the number of cataloged records.
func (f *File) Len() int { return len(f.catalog) }

// Empty reports whether the catalog is empty.
func (f *File) Empty() bool { return len(f.catalog) == 0 }

// Contains reports whether id is cataloged.
func (f *File) Contains(id resource.ID) bool {
	_, ok := f.catalog[id]
	return ok
}

// Lookup returns the catalog entry for id.
func (f *File) Lookup(id resource.ID) (Entry, bool) {
	e, ok := f.catalog[id]
	return e, ok
}

// Handles returns the cataloged handles in ascending order.
func (f *File) Handles() []resource.ID {
	ids := make([]resource.ID, 0, len(f.catalog))
	for id := range f.catalog {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Open creates the backing file on first use, (re)opens it and positions the
// stream for mode. On failure Created is cleared and Invalid raised.
func (f *File) Open(mode Mode) error {
	if err := f.usable(); err != nil {
		return err
	}
	if f.fh != nil {
		if f.mode == mode {
			return nil
		}
		_ = f.fh.Close()
		f.fh = nil
		f.state &^= Opened | Read | Write
	}

	if !f.state.Has(Created) {
		if err := f.create(); err != nil {
			return f.openFailed("create", err)
		}
	}

	fh, err := f.fsys.OpenFile(f.path, os.O_RDWR, 0)
	if err != nil {
		return f.openFailed("open", err)
	}

	whence := io.SeekStart
	if mode == ModeWrite {
		whence = io.SeekEnd
	}
	pos, err := fh.Seek(0, whence)
	if err != nil {
		_ = fh.Close()
		return f.openFailed("seek", err)
	}
	if mode == ModeWrite {
		f.end = pos
	}

	f.fh = fh
	f.mode = mode
	f.state = f.state&^(Read|Write) | Opened | mode.state()
	return nil
}

// Close closes the stream. If the last stream operation failed, Close runs
// one recovery cycle first and marks the file Invalid if that fails too.
func (f *File) Close() error {
	if f.fh == nil {
		return nil
	}
	if f.streamErr != nil {
		cause := f.streamErr
		if err := f.recoverStream(); err != nil {
			return fmt.Errorf("cachefile: recover %s after %v: %w", f.path, cause, err)
		}
	}
	err := f.fh.Close()
	f.fh = nil
	f.state &^= Opened | Read | Write
	if err != nil {
		f.markInvalid(err)
		return fmt.Errorf("cachefile: close %s: %w", f.path, err)
	}
	return nil
}

// Register catalogs size bytes for id without writing a record.
func (f *File) Register(id resource.ID, size int64) error {
	if err := f.usable(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("cachefile: negative size %d for %d", size, id)
	}
	if _, ok := f.catalog[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, id)
	}
	f.commit(id, Entry{Offset: -1, Size: size})
	return nil
}

// Unregister drops id from the catalog and returns its size. The record bytes
// stay in the file until the catalog runs empty, then the file is truncated.
func (f *File) Unregister(id resource.ID) (int64, bool) {
	if f.usable() != nil {
		return 0, false
	}
	e, ok := f.catalog[id]
	if !ok {
		return 0, false
	}
	delete(f.catalog, id)
	f.size -= e.Size
	if len(f.catalog) == 0 {
		f.compact()
	}
	return e.Size, true
}

// WriteRecord appends the record of id. fn writes the payload.
//
// A stream fault rolls the partial record back and retries once after a
// recovery cycle; a second fault marks the file Invalid. An error returned by
// fn itself rolls back without affecting the file state.
func (f *File) WriteRecord(id resource.ID, fn func(io.Writer) error) (int64, error) {
	if err := f.usable(); err != nil {
		return 0, err
	}
	if _, ok := f.catalog[id]; ok {
		return 0, fmt.Errorf("%w: %d", ErrDuplicate, id)
	}
	if err := f.Open(ModeWrite); err != nil {
		return 0, err
	}

	start := f.end
	e, err := f.appendRecord(id, fn)
	if err == nil {
		f.commit(id, e)
		return e.Size, nil
	}

	var se *streamError
	if !errors.As(err, &se) {
		if rerr := f.rollback(start); rerr != nil {
			return 0, rerr
		}
		return 0, err
	}

	f.streamErr = se.err
	if f.logger != nil {
		f.logger.Warn("cache write fault, retrying", "path", f.path, "id", uint32(id), "error", se.err)
	}
	if rerr := f.rollback(start); rerr != nil {
		return 0, rerr
	}

	e, err = f.appendRecord(id, fn)
	if err == nil {
		f.commit(id, e)
		return e.Size, nil
	}
	if errors.As(err, &se) {
		f.markInvalid(se.err)
		return 0, fmt.Errorf("cachefile: write %d to %s: %w: %w", id, f.path, ErrInvalid, se.err)
	}
	if rerr := f.rollback(start); rerr != nil {
		return 0, rerr
	}
	return 0, err
}

// ReadRecord locates the record of id, verifies it and hands the decoded
// payload to fn. The catalog is left unchanged.
func (f *File) ReadRecord(id resource.ID, fn func(io.Reader) error) error {
	if err := f.usable(); err != nil {
		return err
	}
	e, ok := f.catalog[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := f.Open(ModeRead); err != nil {
		return err
	}

	off, err := f.locate(id, e)
	if err != nil {
		return err
	}

	if e.hasSum {
		h := blake3.New()
		sr := &streamReader{r: io.NewSectionReader(f.fh, off, e.Size)}
		if _, err := io.Copy(h, sr); err != nil {
			f.streamErr = err
			return fmt.Errorf("cachefile: read %d from %s: %w", id, f.path, err)
		}
		if !bytes.Equal(h.Sum(nil), e.Sum[:]) {
			return fmt.Errorf("%w: digest mismatch for %d in %s", ErrCorrupt, id, f.path)
		}
	}

	sr := &streamReader{r: io.NewSectionReader(f.fh, off, e.Size)}
	dec, release, err := f.compression.decoder(sr)
	if err != nil {
		return err
	}
	defer release()

	ferr := fn(dec)
	if sr.err != nil {
		f.streamErr = sr.err
		return fmt.Errorf("cachefile: read %d from %s: %w", id, f.path, sr.err)
	}
	return ferr
}

// Destroy closes the stream and removes the backing file if this File created
// it. The File cannot be used afterwards.
func (f *File) Destroy() error {
	if f.fh != nil {
		_ = f.fh.Close()
		f.fh = nil
	}
	var err error
	if f.owned {
		if rerr := f.fsys.Remove(f.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("cachefile: remove %s: %w", f.path, rerr)
		}
		f.owned = false
	}
	f.state = Closed
	f.catalog = make(map[resource.ID]Entry)
	f.size = 0
	f.end = 0
	f.spent = true
	return err
}

// Invalidate marks the file Invalid. It is used when a caller detects a fault
// outside the file's own stream operations.
func (f *File) Invalidate(cause error) {
	if cause == nil {
		cause = ErrInvalid
	}
	f.markInvalid(cause)
}

// Stats is a snapshot of a file.
type Stats struct {
	Path    string
	State   State
	Records int
	Size    int64
	Limit   int64
	Free    int64
	Disk    int64
}

// Stats returns a snapshot of the file.
func (f *File) Stats() Stats {
	return Stats{
		Path:    f.path,
		State:   f.state,
		Records: len(f.catalog),
		Size:    f.size,
		Limit:   f.limit,
		Free:    f.FreeSize(),
		Disk:    f.end,
	}
}

func (f *File) usable() error {
	if f.spent {
		return ErrSpent
	}
	if f.state.Has(Invalid) {
		return ErrInvalid
	}
	return nil
}

func (f *File) create() error {
	if err := f.fsys.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	fh, err := f.fsys.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	f.owned = true
	f.end = 0
	if err := fh.Close(); err != nil {
		return err
	}
	f.state |= Created
	return nil
}

func (f *File) openFailed(step string, err error) error {
	f.state = f.state&^(Created|Opened|Read|Write) | Invalid
	if f.logger != nil {
		f.logger.Error("cache file open failed", "path", f.path, "step", step, "error", err)
	}
	return fmt.Errorf("cachefile: %s %s: %w", step, f.path, err)
}

func (f *File) markInvalid(err error) {
	if f.fh != nil {
		_ = f.fh.Close()
		f.fh = nil
	}
	f.state = f.state&^(Opened|Read|Write) | Invalid
	if f.logger != nil {
		f.logger.Error("cache file invalidated", "path", f.path, "records", len(f.catalog), "error", err)
	}
}

// recoverStream clears the stream error, closes and reopens in the last mode.
func (f *File) recoverStream() error {
	f.streamErr = nil
	mode := f.mode
	if f.fh != nil {
		_ = f.fh.Close()
		f.fh = nil
	}
	f.state &^= Opened | Read | Write
	return f.Open(mode)
}

// rollback drops everything after start and reopens for writing.
func (f *File) rollback(start int64) error {
	f.streamErr = nil
	if f.fh != nil {
		_ = f.fh.Close()
		f.fh = nil
	}
	f.state &^= Opened | Read | Write
	if err := f.fsys.Truncate(f.path, start); err != nil {
		f.markInvalid(err)
		return fmt.Errorf("cachefile: truncate %s: %w: %w", f.path, ErrInvalid, err)
	}
	f.end = start
	return f.Open(ModeWrite)
}

func (f *File) compact() {
	if !f.state.Has(Created) || f.end == 0 {
		return
	}
	if f.fh != nil {
		_ = f.fh.Close()
		f.fh = nil
		f.state &^= Opened | Read | Write
	}
	if err := f.fsys.Truncate(f.path, 0); err != nil {
		if f.logger != nil {
			f.logger.Warn("cache file compaction failed", "path", f.path, "error", err)
		}
		return
	}
	f.end = 0
}

func (f *File) commit(id resource.ID, e Entry) {
	f.catalog[id] = e
	f.size += e.Size
}

func (f *File) appendRecord(id resource.ID, fn func(io.Writer) error) (Entry, error) {
	start := f.end
	open := OpenMarker(id)
	if _, err := f.fh.Write(open); err != nil {
		return Entry{}, &streamError{err: err}
	}

	sink := &recordSink{w: f.fh, h: blake3.New()}
	enc, err := f.compression.encoder(sink)
	if err != nil {
		return Entry{}, err
	}
	ferr := fn(enc)
	cerr := enc.Close()
	if sink.err != nil {
		return Entry{}, &streamError{err: sink.err}
	}
	if ferr != nil {
		return Entry{}, ferr
	}
	if cerr != nil {
		return Entry{}, cerr
	}

	tail := append(CloseMarker(id), recordBreak...)
	if _, err := f.fh.Write(tail); err != nil {
		return Entry{}, &streamError{err: err}
	}

	f.end = start + int64(len(open)) + sink.n + int64(len(tail))
	e := Entry{Offset: start + int64(len(open)), Size: sink.n, hasSum: true}
	copy(e.Sum[:], sink.h.Sum(nil))
	return e, nil
}

// locate returns the payload offset of id, checking the cataloged offset
// first and falling back to a linear scan for the open marker.
func (f *File) locate(id resource.ID, e Entry) (int64, error) {
	open := OpenMarker(id)
	if e.Offset >= int64(len(open)) {
		ok, err := f.framed(id, e.Offset, e.Size)
		if err != nil {
			return 0, err
		}
		if ok {
			return e.Offset, nil
		}
	}

	info, err := f.fh.Stat()
	if err != nil {
		f.streamErr = err
		return 0, fmt.Errorf("cachefile: stat %s: %w", f.path, err)
	}
	found, err := findMarkers(f.fh, info.Size(), open)
	if err != nil {
		f.streamErr = err
		return 0, fmt.Errorf("cachefile: scan %s: %w", f.path, err)
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("%w: no record for %d in %s", ErrCorrupt, id, f.path)
	}
	// Unregistered records of id stay in the file until compaction, so the
	// newest framed match is the live one.
	for _, pos := range slices.Backward(found) {
		off := pos + int64(len(open))
		ok, err := f.framed(id, off, e.Size)
		if err != nil {
			return 0, err
		}
		if ok {
			e.Offset = off
			f.catalog[id] = e
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: broken framing for %d in %s", ErrCorrupt, id, f.path)
}

// framed reports whether the markers of id surround size bytes at off.
func (f *File) framed(id resource.ID, off, size int64) (bool, error) {
	open := OpenMarker(id)
	closing := CloseMarker(id)
	for _, m := range []struct {
		at   int64
		want []byte
	}{{off - int64(len(open)), open}, {off + size, closing}} {
		buf := make([]byte, len(m.want))
		n, err := f.fh.ReadAt(buf, m.at)
		if err != nil && !errors.Is(err, io.EOF) {
			f.streamErr = err
			return false, fmt.Errorf("cachefile: read %s: %w", f.path, err)
		}
		if !bytes.Equal(buf[:n], m.want) {
			return false, nil
		}
	}
	return true, nil
}

// findMarkers returns the offsets of every occurrence of marker in ascending
// order.
func findMarkers(r io.ReaderAt, size int64, marker []byte) ([]int64, error) {
	const chunk = 64 << 10
	var found []int64
	buf := make([]byte, chunk+len(marker)-1)
	for off := int64(0); off < size; off += chunk {
		n, err := r.ReadAt(buf[:min(int64(len(buf)), size-off)], off)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		// matches starting in the overlap are reported by the next chunk
		for i := 0; ; {
			j := bytes.Index(buf[i:n], marker)
			if j < 0 || i+j >= chunk {
				break
			}
			found = append(found, off+int64(i+j))
			i += j + 1
		}
	}
	return found, nil
}

type streamError struct{ err error }

func (e *streamError) Error() string { return e.err.Error() }
func (e *streamError) Unwrap() error { return e.err }

// recordSink counts and hashes payload bytes on their way to the file and
// remembers the first stream error.
type recordSink struct {
	w   io.Writer
	h   *blake3.Hasher
	n   int64
	err error
}

func (s *recordSink) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	s.n += int64(n)
	_, _ = s.h.Write(p[:n])
	if err != nil {
		s.err = err
	}
	return n, err
}

// streamReader remembers the first non-EOF read error.
type streamReader struct {
	r   io.Reader
	err error
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && s.err == nil {
		s.err = err
	}
	return n, err
}
