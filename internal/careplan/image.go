package careplan

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/medimitra/careplan-service/internal/genai"
)

var ErrInvalidImage = errors.New("invalid prescription image payload")

// DecodeImageDataURI parses a self-describing inline image of the form
// data:<mimetype>;base64,<encoded_data> as produced by the upload client.
func DecodeImageDataURI(s string) (*genai.Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data URI prefix", ErrInvalidImage)
	}

	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidImage)
	}

	mimeType, found := strings.CutSuffix(meta, ";base64")
	if !found {
		return nil, fmt.Errorf("%w: only base64 encoding is supported", ErrInvalidImage)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrInvalidImage)
	}

	return &genai.Image{MIMEType: mimeType, Data: data}, nil
}
