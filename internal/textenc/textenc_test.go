package textenc

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUTF8(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		label string
		want  string
	}{
		{name: "plain ascii", data: []byte("print('hi');"), want: "print('hi');"},
		{name: "utf-8 passthrough", data: []byte("var s = 'café';"), want: "var s = 'café';"},
		{name: "utf-8 bom stripped", data: append([]byte{0xEF, 0xBB, 0xBF}, "x = 1;"...), want: "x = 1;"},
		{name: "utf-16le bom", data: []byte{0xFF, 0xFE, 'o', 0, 'k', 0}, want: "ok"},
		{name: "utf-16be bom", data: []byte{0xFE, 0xFF, 0, 'o', 0, 'k'}, want: "ok"},
		{name: "latin-1 label", data: []byte{'c', 'a', 'f', 0xE9}, label: "iso-8859-1", want: "café"},
		{name: "utf-8 label", data: []byte("ok"), label: "UTF-8", want: "ok"},
		{name: "empty", data: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToUTF8(tt.data, tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToUTF8UnknownLabel(t *testing.T) {
	_, err := ToUTF8([]byte("x"), "no-such-charset")
	assert.ErrorIs(t, err, ErrUnknownCharset)
}

func TestToUTF8DetectsInvalidUTF8(t *testing.T) {
	data := []byte("le caf\xe9 est tr\xe8s bon, n'est-ce pas? oui, tr\xe8s tr\xe8s bon.")
	got, err := ToUTF8(data, "")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "bon")
}

func TestCharsetFromContentType(t *testing.T) {
	assert.Equal(t, "iso-8859-1", CharsetFromContentType("text/plain; charset=iso-8859-1"))
	assert.Equal(t, "utf-8", CharsetFromContentType(`application/json; charset="utf-8"`))
	assert.Equal(t, "", CharsetFromContentType("application/json"))
	assert.Equal(t, "", CharsetFromContentType(""))
	assert.Equal(t, "", CharsetFromContentType(";;;"))
}

func TestIsText(t *testing.T) {
	assert.True(t, IsText(nil))
	assert.True(t, IsText([]byte("function map(doc) { emit(doc._id, null); }\n")))
	assert.True(t, IsText([]byte(`{"a": 1}`)))
	assert.False(t, IsText([]byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.False(t, IsText([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D}))
}
