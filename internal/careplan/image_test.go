package careplan

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeImageDataURI(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(payload)

	img, err := DecodeImageDataURI(uri)

	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, payload, img.Data)
}

func TestDecodeImageDataURIDefaultsMIMEType(t *testing.T) {
	uri := "data:;base64," + base64.StdEncoding.EncodeToString([]byte("x"))

	img, err := DecodeImageDataURI(uri)

	assert.NoError(t, err)
	assert.Equal(t, "application/octet-stream", img.MIMEType)
}

func TestDecodeImageDataURIRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"no prefix", "image/png;base64,aGVsbG8="},
		{"no separator", "data:image/png;base64"},
		{"not base64 encoding", "data:image/png;utf8,hello"},
		{"invalid base64", "data:image/png;base64,!!!not-base64!!!"},
		{"empty data", "data:image/png;base64,"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := DecodeImageDataURI(tc.in)
			assert.Nil(t, img)
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}
