package dataset

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// FileFormat represents the encodings a dataset file can use
type FileFormat int

const (
	FormatUnknown FileFormat = iota
	FormatJSON               // JSON array of city objects
	FormatMsgpack            // msgpack array of the same objects
)

func (f FileFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgpack:
		return "msgpack"
	}
	return "unknown"
}

// FormatInfo contains metadata about a dataset file format
type FormatInfo struct {
	Format      FileFormat
	Description string
	Extensions  []string
}

var supportedFormats = map[FileFormat]FormatInfo{
	FormatJSON: {
		Format:      FormatJSON,
		Description: "JSON City List",
		Extensions:  []string{".json"},
	},
	FormatMsgpack: {
		Format:      FormatMsgpack,
		Description: "Msgpack City List",
		Extensions:  []string{".msgpack", ".mpk"},
	},
}

var gzipMagic = []byte{0x1f, 0x8b}

// Source describes how a dataset file is encoded.
type Source struct {
	Format     FileFormat
	Compressed bool
}

// DetectFormat works out the encoding of a dataset file from its name,
// falling back to sniffing the first bytes when the extension says nothing.
func DetectFormat(filename string) (Source, error) {
	name := strings.ToLower(filepath.Base(filename))
	src := Source{}
	if strings.HasSuffix(name, ".gz") {
		src.Compressed = true
		name = strings.TrimSuffix(name, ".gz")
	}

	ext := filepath.Ext(name)
	for _, info := range supportedFormats {
		for _, e := range info.Extensions {
			if ext == e {
				src.Format = info.Format
				return src, nil
			}
		}
	}

	f, err := os.Open(filename)
	if err != nil {
		return Source{}, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer f.Close()

	sniffed, err := Sniff(bufio.NewReader(f))
	if err != nil {
		return Source{}, fmt.Errorf("%w: %s", err, filename)
	}
	log.Debugf("Sniffed dataset %s as %s (compressed=%t)", filename, sniffed.Format, sniffed.Compressed)
	return sniffed, nil
}

// Sniff peeks at the head of r to tell JSON from msgpack. Compressed input
// only reports Compressed, since the payload cannot be peeked without
// inflating it; callers then assume JSON.
func Sniff(r *bufio.Reader) (Source, error) {
	head, err := r.Peek(2)
	if err != nil && err != io.EOF {
		return Source{}, err
	}
	if bytes.Equal(head, gzipMagic) {
		return Source{Format: FormatJSON, Compressed: true}, nil
	}

	for {
		b, err := r.Peek(1)
		if err != nil {
			return Source{}, ErrUnknownFormat
		}
		switch {
		case b[0] == ' ' || b[0] == '\t' || b[0] == '\r' || b[0] == '\n':
			if _, err := r.ReadByte(); err != nil {
				return Source{}, ErrUnknownFormat
			}
			continue
		case b[0] == '[':
			return Source{Format: FormatJSON}, nil
		case b[0]&0xf0 == 0x90 || b[0] == 0xdc || b[0] == 0xdd:
			// fixarray, array16, array32
			return Source{Format: FormatMsgpack}, nil
		}
		return Source{}, ErrUnknownFormat
	}
}

// FormatFor returns the format registered for a file extension.
func FormatFor(ext string) FileFormat {
	ext = strings.ToLower(ext)
	for _, info := range supportedFormats {
		for _, e := range info.Extensions {
			if e == ext {
				return info.Format
			}
		}
	}
	return FormatUnknown
}

// GetFormatInfo returns information about a specific format
func GetFormatInfo(format FileFormat) (FormatInfo, bool) {
	info, exists := supportedFormats[format]
	return info, exists
}
