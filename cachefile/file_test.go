package cachefile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/resgo/internal/fs"
	"github.com/hupe1980/resgo/resource"
)

func writeBytes(data []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}
}

func readAll(dst *[]byte) func(io.Reader) error {
	return func(r io.Reader) error {
		b, err := io.ReadAll(r)
		*dst = b
		return err
	}
}

func TestFile_LazyCreateAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "a.bin")
	f := New(path, 1024)

	assert.Equal(t, Closed, f.State())
	assert.False(t, fs.Exists(fs.Default, path))

	n, err := f.WriteRecord(7, writeBytes([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, int64(5), f.Size())
	assert.True(t, f.State().Has(Created|Opened|Write))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[[resgo:7:begin]]hello[[resgo:7:end]]\n", string(raw))

	var got []byte
	require.NoError(t, f.ReadRecord(7, readAll(&got)))
	assert.Equal(t, "hello", string(got))
	assert.True(t, f.State().Has(Opened|Read))
	assert.False(t, f.State().Has(Write))

	require.NoError(t, f.Close())
	assert.Equal(t, Created, f.State())

	require.NoError(t, f.Destroy())
	assert.False(t, fs.Exists(fs.Default, path))
}

func TestFile_SizeAccounting(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "a.bin"), 1024)

	require.NoError(t, f.Register(1, 100))
	require.NoError(t, f.Register(2, 50))
	assert.Equal(t, int64(150), f.Size())
	assert.Equal(t, int64(874), f.FreeSize())

	assert.ErrorIs(t, f.Register(1, 3), ErrDuplicate)
	assert.Equal(t, int64(150), f.Size())

	size, ok := f.Unregister(1)
	assert.True(t, ok)
	assert.Equal(t, int64(100), size)
	assert.Equal(t, int64(50), f.Size())

	_, ok = f.Unregister(1)
	assert.False(t, ok)

	require.NoError(t, f.Register(3, 2000))
	assert.Negative(t, f.FreeSize())
	assert.Equal(t, []resource.ID{2, 3}, f.Handles())
}

func TestFile_OpenFailureInvalidates(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		ffs := fs.NewFaultyFS(nil)
		ffs.AddRule("a.bin", fs.Fault{FailOpen: true, FailAfterBytes: -1})
		f := New(filepath.Join(t.TempDir(), "a.bin"), 1024, WithFS(ffs))

		require.Error(t, f.Open(ModeWrite))
		assert.Equal(t, Invalid, f.State())

		_, err := f.WriteRecord(1, writeBytes([]byte("x")))
		assert.ErrorIs(t, err, ErrInvalid)
		assert.ErrorIs(t, f.Register(1, 1), ErrInvalid)
	})

	t.Run("seek", func(t *testing.T) {
		ffs := fs.NewFaultyFS(nil)
		ffs.AddRule("a.bin", fs.Fault{FailSeek: true, FailAfterBytes: -1})
		path := filepath.Join(t.TempDir(), "a.bin")
		f := New(path, 1024, WithFS(ffs))

		err := f.Open(ModeRead)
		assert.ErrorIs(t, err, fs.ErrInjected)
		assert.True(t, f.State().Has(Invalid))
		assert.False(t, f.State().Has(Created))
		assert.True(t, fs.Exists(fs.Default, path))

		// the file was created by f, so destroying it still removes it
		require.NoError(t, f.Destroy())
		assert.False(t, fs.Exists(fs.Default, path))
	})
}

func TestFile_ResourceErrorRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	f := New(path, 1024)

	_, err := f.WriteRecord(1, writeBytes([]byte("first")))
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	before := info.Size()

	errBoom := errors.New("boom")
	_, err = f.WriteRecord(2, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, f.State().Has(Invalid))
	assert.False(t, f.Contains(2))

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before, info.Size())

	_, err = f.WriteRecord(2, writeBytes([]byte("second")))
	require.NoError(t, err)

	var got []byte
	require.NoError(t, f.ReadRecord(2, readAll(&got)))
	assert.Equal(t, "second", string(got))
}

func TestFile_WriteFaultEscalates(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	path := filepath.Join(t.TempDir(), "a.bin")
	f := New(path, 4096, WithFS(ffs))

	_, err := f.WriteRecord(1, writeBytes([]byte("kept")))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ffs.AddRule("a.bin", fs.Fault{FailAfterBytes: 30})
	_, err = f.WriteRecord(2, writeBytes(bytes.Repeat([]byte("x"), 100)))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.ErrorIs(t, err, ErrInvalid)

	assert.True(t, f.State().Has(Invalid))
	assert.True(t, f.State().Has(Created), "stream faults keep Created")
	assert.Equal(t, []resource.ID{1}, f.Handles())
	assert.Equal(t, int64(4), f.Size())
	// one open for creation, one for the first write, two for the faulty attempts
	assert.Equal(t, 4, ffs.Opens("a.bin"))
}

func TestFile_CloseRecoveryCycle(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		ffs := fs.NewFaultyFS(nil)
		f := New(filepath.Join(t.TempDir(), "a.bin"), 1024, WithFS(ffs))

		_, err := f.WriteRecord(1, writeBytes([]byte("payload")))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		ffs.AddRule("a.bin", fs.Fault{FailRead: true, FailAfterBytes: -1})
		var got []byte
		assert.ErrorIs(t, f.ReadRecord(1, readAll(&got)), fs.ErrInjected)
		assert.False(t, f.State().Has(Invalid))

		ffs.ClearRules()
		require.NoError(t, f.Close())
		assert.False(t, f.State().Has(Invalid))

		require.NoError(t, f.ReadRecord(1, readAll(&got)))
		assert.Equal(t, "payload", string(got))
	})

	t.Run("gives up", func(t *testing.T) {
		ffs := fs.NewFaultyFS(nil)
		f := New(filepath.Join(t.TempDir(), "a.bin"), 1024, WithFS(ffs))

		_, err := f.WriteRecord(1, writeBytes([]byte("payload")))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		ffs.AddRule("a.bin", fs.Fault{FailRead: true, FailAfterBytes: -1})
		require.Error(t, f.ReadRecord(1, func(io.Reader) error { return nil }))

		ffs.AddRule("a.bin", fs.Fault{FailOpen: true, FailAfterBytes: -1})
		require.Error(t, f.Close())
		assert.True(t, f.State().Has(Invalid))
		assert.Equal(t, 1, f.Len())
	})
}

func TestFile_DigestMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	f := New(path, 1024)

	_, err := f.WriteRecord(3, writeBytes([]byte("hello world")))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	e, ok := f.Lookup(3)
	require.True(t, ok)

	raw, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = raw.WriteAt([]byte("J"), e.Offset)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	err = f.ReadRecord(3, func(io.Reader) error { return nil })
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, f.State().Has(Invalid))
}

func TestFile_LocateFallsBackToScan(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "a.bin"), 1024)

	_, err := f.WriteRecord(1, writeBytes([]byte("one")))
	require.NoError(t, err)
	_, err = f.WriteRecord(2, writeBytes([]byte("two")))
	require.NoError(t, err)

	e := f.catalog[2]
	want := e.Offset
	e.Offset = -1
	f.catalog[2] = e

	var got []byte
	require.NoError(t, f.ReadRecord(2, readAll(&got)))
	assert.Equal(t, "two", string(got))

	e, _ = f.Lookup(2)
	assert.Equal(t, want, e.Offset)
}

func TestFile_LocatePrefersNewestRecord(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "a.bin"), 1024)

	_, err := f.WriteRecord(1, writeBytes([]byte("old")))
	require.NoError(t, err)
	_, err = f.WriteRecord(2, writeBytes([]byte("two")))
	require.NoError(t, err)
	_, ok := f.Unregister(1)
	require.True(t, ok)
	_, err = f.WriteRecord(1, writeBytes([]byte("new")))
	require.NoError(t, err)

	e, _ := f.Lookup(1)
	want := e.Offset
	e.Offset = -1
	f.catalog[1] = e

	var got []byte
	require.NoError(t, f.ReadRecord(1, readAll(&got)))
	assert.Equal(t, "new", string(got))

	e, _ = f.Lookup(1)
	assert.Equal(t, want, e.Offset)
}

func TestFile_RegisteredWithoutRecord(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "a.bin"), 1024)
	require.NoError(t, f.Register(9, 10))

	err := f.ReadRecord(9, func(io.Reader) error { return nil })
	assert.ErrorIs(t, err, ErrCorrupt)

	err = f.ReadRecord(10, func(io.Reader) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFile_Compression(t *testing.T) {
	payload := bytes.Repeat([]byte("resgo "), 1024)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			f := New(filepath.Join(t.TempDir(), "a.bin"), 1<<20, WithCompression(c))

			n, err := f.WriteRecord(1, writeBytes(payload))
			require.NoError(t, err)
			if c == CompressionNone {
				assert.Equal(t, int64(len(payload)), n)
			} else {
				assert.Less(t, n, int64(len(payload)))
			}

			var got []byte
			require.NoError(t, f.ReadRecord(1, readAll(&got)))
			assert.Equal(t, payload, got)

			require.NoError(t, ScanFile(f.Path(), func(r Record) error {
				raw, err := DecodePayload(c, r.Payload)
				require.NoError(t, err)
				assert.Equal(t, payload, raw)
				return nil
			}))
		})
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, " zstd ": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestFile_UnregisterCompacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	f := New(path, 1024)

	_, err := f.WriteRecord(1, writeBytes([]byte("one")))
	require.NoError(t, err)
	_, err = f.WriteRecord(2, writeBytes([]byte("two")))
	require.NoError(t, err)

	f.Unregister(1)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	f.Unregister(2)
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.True(t, f.Empty())

	_, err = f.WriteRecord(3, writeBytes([]byte("three")))
	require.NoError(t, err)
	var got []byte
	require.NoError(t, f.ReadRecord(3, readAll(&got)))
	assert.Equal(t, "three", string(got))
}

func TestFile_DestroyedFileRefuses(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "a.bin"), 1024)
	_, err := f.WriteRecord(1, writeBytes([]byte("x")))
	require.NoError(t, err)

	require.NoError(t, f.Destroy())
	assert.Equal(t, Closed, f.State())
	assert.ErrorIs(t, f.Open(ModeRead), ErrSpent)
	assert.True(t, f.Empty())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "created|opened|write", (Created | Opened | Write).String())
	assert.Equal(t, "invalid", Invalid.String())
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, "[[resgo:42:begin]]", string(OpenMarker(42)))
	assert.Equal(t, "[[resgo:42:end]]", string(CloseMarker(42)))
	assert.Equal(t, int64(len("[[resgo:42:begin]]")+len("[[resgo:42:end]]")+1), RecordOverhead(42))
}
