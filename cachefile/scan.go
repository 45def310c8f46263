package cachefile

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/hupe1980/resgo/internal/mmap"
	"github.com/hupe1980/resgo/resource"
)

// Record is one framed record found by Scan.
type Record struct {
	ID resource.ID
	// Offset is the payload offset within the scanned data.
	Offset int64
	// Payload aliases the scanned data and is only valid during the callback.
	Payload []byte
}

// Scan walks the framed records in data in file order. Bytes outside of
// records are skipped. Records whose payload was unregistered but not yet
// compacted are reported too.
func Scan(data []byte, fn func(Record) error) error {
	pos := 0
	for pos < len(data) {
		i := bytes.Index(data[pos:], openPrefix)
		if i < 0 {
			return nil
		}
		start := pos + i
		id, payload, ok := parseOpen(data[start:])
		if !ok {
			pos = start + 1
			continue
		}
		ps := start + payload
		closing := CloseMarker(id)
		end, ok := recordEnd(data, ps, closing)
		if !ok {
			return fmt.Errorf("%w: unterminated record %d at offset %d", ErrCorrupt, id, start)
		}
		if err := fn(Record{ID: id, Offset: int64(ps), Payload: data[ps:end]}); err != nil {
			return err
		}
		pos = end + len(closing)
		if bytes.HasPrefix(data[pos:], recordBreak) {
			pos += len(recordBreak)
		}
	}
	return nil
}

// ScanFile maps the file at path and scans it.
func ScanFile(path string, fn func(Record) error) error {
	m, err := mmap.Open(path)
	if err != nil {
		return err
	}
	defer m.Close()
	_ = m.Advise(mmap.Sequential)
	return Scan(m.Bytes(), fn)
}

// recordEnd returns the offset of the close marker ending the payload that
// starts at ps. Payloads may contain their own close marker, so a marker
// counts as the end only when a record break and then the end of data or the
// next record follow it. Without such a marker the first one followed by a
// record break wins, or else the first one.
func recordEnd(data []byte, ps int, closing []byte) (int, bool) {
	first, loose := -1, -1
	for i := ps; ; {
		j := bytes.Index(data[i:], closing)
		if j < 0 {
			break
		}
		at := i + j
		if first < 0 {
			first = at
		}
		if rest, ok := bytes.CutPrefix(data[at+len(closing):], recordBreak); ok {
			if len(rest) == 0 || bytes.HasPrefix(rest, openPrefix) {
				return at, true
			}
			if loose < 0 {
				loose = at
			}
		}
		i = at + 1
	}
	if loose >= 0 {
		return loose, true
	}
	return first, first >= 0
}

// parseOpen parses an open marker at the start of b and returns the handle
// and the marker length.
func parseOpen(b []byte) (resource.ID, int, bool) {
	rest := b[len(openPrefix):]
	rest = rest[:min(len(rest), 10+len(openSuffix))]
	end := bytes.Index(rest, openSuffix)
	if end <= 0 || end > 10 {
		return resource.InvalidID, 0, false
	}
	n, err := strconv.ParseUint(string(rest[:end]), 10, 32)
	if err != nil || n == 0 {
		return resource.InvalidID, 0, false
	}
	return resource.ID(n), len(openPrefix) + end + len(openSuffix), true
}
