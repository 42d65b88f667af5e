package dataset

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormatByExtension(t *testing.T) {
	tests := []struct {
		name string
		want Source
	}{
		{"cities.json", Source{Format: FormatJSON}},
		{"CITIES.JSON", Source{Format: FormatJSON}},
		{"cities.json.gz", Source{Format: FormatJSON, Compressed: true}},
		{"cities.msgpack", Source{Format: FormatMsgpack}},
		{"cities.mpk.gz", Source{Format: FormatMsgpack, Compressed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// extension matches never touch the file
			got, err := DetectFormat("/nonexistent/" + tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormatMissingFile(t *testing.T) {
	_, err := DetectFormat("/nonexistent/cities")
	assert.Error(t, err)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FileFormat
		gz    bool
		err   bool
	}{
		{"json", `[{"name":"x"}]`, FormatJSON, false, false},
		{"json with whitespace", "\r\n\t [", FormatJSON, false, false},
		{"fixarray", "\x92", FormatMsgpack, false, false},
		{"array16", "\xdc\x00\x20", FormatMsgpack, false, false},
		{"gzip", "\x1f\x8b\x08", FormatJSON, true, false},
		{"object", `{"a":1}`, FormatUnknown, false, true},
		{"empty", "", FormatUnknown, false, true},
		{"blank", "   ", FormatUnknown, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(bufio.NewReader(strings.NewReader(tt.input)))
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format)
			assert.Equal(t, tt.gz, got.Compressed)
		})
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor(".JSON"))
	assert.Equal(t, FormatMsgpack, FormatFor(".mpk"))
	assert.Equal(t, FormatUnknown, FormatFor(".bin"))

	info, ok := GetFormatInfo(FormatMsgpack)
	require.True(t, ok)
	assert.Contains(t, info.Extensions, ".msgpack")
	_, ok = GetFormatInfo(FormatUnknown)
	assert.False(t, ok)
	assert.Equal(t, "unknown", FormatUnknown.String())
}
