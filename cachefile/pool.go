package cachefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/resgo/internal/budget"
	"github.com/hupe1980/resgo/internal/fs"
	"github.com/hupe1980/resgo/resource"
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolFS sets the filesystem for every file of the pool.
func WithPoolFS(fsys fs.FileSystem) PoolOption {
	return func(p *Pool) {
		if fsys != nil {
			p.fsys = fsys
		}
	}
}

// WithPoolLogger sets the logger for the pool and its files.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithPoolCompression sets the payload encoding of new records.
func WithPoolCompression(c Compression) PoolOption {
	return func(p *Pool) {
		p.compression = c
	}
}

// WithBudget throttles record IO through c.
func WithBudget(c *budget.Controller) PoolOption {
	return func(p *Pool) {
		p.budget = c
	}
}

// Pool owns a set of cache files in one directory and places records
// across them.
type Pool struct {
	dir         string
	limit       int64
	fsys        fs.FileSystem
	logger      *slog.Logger
	compression Compression
	budget      *budget.Controller

	files   []*File
	last    *File
	where   map[resource.ID]*File
	members *roaring.Bitmap

	recoveries int
}

// NewPool returns an empty pool. Files are created lazily under dir, which
// defaults to the system temp directory.
func NewPool(dir string, limit int64, opts ...PoolOption) *Pool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	p := &Pool{
		dir:     dir,
		limit:   limit,
		fsys:    fs.Default,
		where:   make(map[resource.ID]*File),
		members: roaring.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dir == "" {
		p.dir = filepath.Join(os.TempDir(), "resgo")
	}
	return p
}

// Dir returns the directory new files are created in.
func (p *Pool) Dir() string { return p.dir }

// Limit returns the per-file size limit.
func (p *Pool) Limit() int64 { return p.limit }

// Store writes the record of id. estimate is the expected payload size used
// for placement.
func (p *Pool) Store(ctx context.Context, id resource.ID, estimate int64, fn func(io.Writer) error) error {
	if _, ok := p.where[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, id)
	}

	f := p.place(estimate)
	err := p.write(ctx, f, id, fn)
	if err != nil && f.State().Has(Invalid) {
		rf, rerr := p.recoverFile(f)
		if rerr != nil {
			return errors.Join(err, rerr)
		}
		f = rf
		err = p.write(ctx, f, id, fn)
	}
	if err != nil {
		return err
	}

	p.where[id] = f
	p.members.Add(uint32(id))
	p.last = f
	return nil
}

// Load hands the record of id to fn and drops it from the pool on success.
// A stream fault runs the file's recovery cycle and retries once.
func (p *Pool) Load(ctx context.Context, id resource.ID, fn func(io.Reader) error) error {
	f, ok := p.where[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	err := p.read(ctx, f, id, fn)
	if err != nil && (f.streamErr != nil || f.State().Has(Invalid)) {
		if cerr := f.Close(); cerr != nil && p.logger != nil {
			p.logger.Warn("cache read recovery failed", "path", f.Path(), "error", cerr)
		}
		if f.State().Has(Invalid) {
			rf, rerr := p.recoverFile(f)
			if rerr != nil {
				return errors.Join(err, rerr)
			}
			f = rf
		}
		err = p.read(ctx, f, id, fn)
	}
	if err != nil {
		return err
	}

	p.forget(f, id)
	return nil
}

// Drop discards the record of id without reading it.
func (p *Pool) Drop(id resource.ID) bool {
	f, ok := p.where[id]
	if !ok {
		return false
	}
	p.forget(f, id)
	return true
}

// Contains reports whether id has a record in the pool.
func (p *Pool) Contains(id resource.ID) bool {
	return p.members.Contains(uint32(id))
}

// Handles returns the cached handles in ascending order.
func (p *Pool) Handles() []resource.ID {
	ids := make([]resource.ID, 0, p.members.GetCardinality())
	it := p.members.Iterator()
	for it.HasNext() {
		ids = append(ids, resource.ID(it.Next()))
	}
	return ids
}

// Len returns the number of cached records.
func (p *Pool) Len() int { return int(p.members.GetCardinality()) }

// Size returns the cataloged bytes across all files.
func (p *Pool) Size() int64 {
	var n int64
	for _, f := range p.files {
		n += f.Size()
	}
	return n
}

// FileOf returns the file holding id.
func (p *Pool) FileOf(id resource.ID) (*File, bool) {
	f, ok := p.where[id]
	return f, ok
}

// Files returns per-file snapshots in creation order.
func (p *Pool) Files() []Stats {
	out := make([]Stats, 0, len(p.files))
	for _, f := range p.files {
		out = append(out, f.Stats())
	}
	return out
}

// PoolStats summarizes a pool.
type PoolStats struct {
	Files      int
	Records    int
	Size       int64
	Recoveries int
}

// Stats returns a summary of the pool.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Files:      len(p.files),
		Records:    p.Len(),
		Size:       p.Size(),
		Recoveries: p.recoveries,
	}
}

// Close destroys every file and removes their backing files.
func (p *Pool) Close() error {
	var errs []error
	for _, f := range p.files {
		if err := f.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	p.files = nil
	p.last = nil
	p.where = make(map[resource.ID]*File)
	p.members.Clear()
	return errors.Join(errs...)
}

// place picks the last used file if it fits, then any file that fits, then
// a new file. Empty files accept any record.
func (p *Pool) place(need int64) *File {
	fits := func(f *File) bool {
		return !f.State().Has(Invalid) && (f.Empty() || f.FreeSize() >= need)
	}
	if p.last != nil && fits(p.last) {
		return p.last
	}
	for _, f := range p.files {
		if fits(f) {
			return f
		}
	}
	f := p.newFile()
	p.files = append(p.files, f)
	return f
}

func (p *Pool) newFile() *File {
	path := filepath.Join(p.dir, fmt.Sprintf("resgo-cache-%s.bin", uuid.NewString()))
	return New(path, p.limit, WithFS(p.fsys), WithLogger(p.logger), WithCompression(p.compression))
}

// recoverFile replaces the Invalid file f by a fresh file holding its catalog.
func (p *Pool) recoverFile(f *File) (*File, error) {
	nf := p.newFile()
	if err := Recover(nf, f); err != nil {
		return nil, err
	}
	if i := slices.Index(p.files, f); i >= 0 {
		p.files[i] = nf
	} else {
		p.files = append(p.files, nf)
	}
	for _, id := range nf.Handles() {
		if p.where[id] == f {
			p.where[id] = nf
		}
	}
	if p.last == f {
		p.last = nf
	}
	p.recoveries++
	return nf, nil
}

func (p *Pool) write(ctx context.Context, f *File, id resource.ID, fn func(io.Writer) error) error {
	_, err := f.WriteRecord(id, func(w io.Writer) error {
		return fn(p.budget.Writer(ctx, w))
	})
	return err
}

func (p *Pool) read(ctx context.Context, f *File, id resource.ID, fn func(io.Reader) error) error {
	return f.ReadRecord(id, func(r io.Reader) error {
		return fn(p.budget.Reader(ctx, r))
	})
}

func (p *Pool) forget(f *File, id resource.ID) {
	f.Unregister(id)
	delete(p.where, id)
	p.members.Remove(uint32(id))
}
