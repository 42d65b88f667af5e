package dataset

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// Encode writes records to w in the source file layout, so the output can
// be read back with Decode.
func Encode(w io.Writer, records []location.Record, src Source) (err error) {
	if src.Compressed {
		zw, zerr := gzip.NewWriterLevel(w, gzip.BestCompression)
		if zerr != nil {
			return fmt.Errorf("failed to create gzip writer: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}

	raw := make([]rawCity, len(records))
	for i, r := range records {
		raw[i] = fromRecord(r)
	}

	switch src.Format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(raw)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(raw)
	}
	return ErrUnknownFormat
}
