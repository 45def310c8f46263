package cachefile

import (
	"bytes"
	"strconv"

	"github.com/hupe1980/resgo/resource"
)

const (
	// Placeholder is substituted by the decimal handle in marker templates.
	Placeholder = "{id}"

	// OpenTemplate frames the start of a record.
	OpenTemplate = "[[resgo:" + Placeholder + ":begin]]"

	// CloseTemplate frames the end of a record.
	CloseTemplate = "[[resgo:" + Placeholder + ":end]]"
)

var (
	openPrefix  = []byte("[[resgo:")
	openSuffix  = []byte(":begin]]")
	recordBreak = []byte("\n")
)

func expand(template string, id resource.ID) []byte {
	return bytes.Replace([]byte(template), []byte(Placeholder), []byte(strconv.FormatUint(uint64(id), 10)), 1)
}

// OpenMarker returns the marker that opens the record of id.
func OpenMarker(id resource.ID) []byte { return expand(OpenTemplate, id) }

// CloseMarker returns the marker that closes the record of id.
func CloseMarker(id resource.ID) []byte { return expand(CloseTemplate, id) }

// RecordOverhead returns the framing bytes added around a payload of id.
func RecordOverhead(id resource.ID) int64 {
	return int64(len(OpenMarker(id)) + len(CloseMarker(id)) + len(recordBreak))
}
