package budget

import (
	"context"
	"io"
)

// Writer returns w throttled by the IO limit. Each Write waits for its bytes
// before forwarding them.
func (c *Controller) Writer(ctx context.Context, w io.Writer) io.Writer {
	if c == nil {
		return w
	}
	return throttledWriter{ctx: ctx, w: w, c: c}
}

// Reader returns r throttled by the IO limit. Bytes are charged after they
// were read, so the first read of a burst never stalls.
func (c *Controller) Reader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil {
		return r
	}
	return throttledReader{ctx: ctx, r: r, c: c}
}

type throttledWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

func (t throttledWriter) Write(p []byte) (int, error) {
	if err := t.c.AcquireIO(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

func (t throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 {
		return n, err
	}
	if werr := t.c.AcquireIO(t.ctx, n); err == nil {
		err = werr
	}
	return n, err
}
