package interfaces

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageContentValidateAcceptsSupportedMimeTypes(t *testing.T) {
	for _, mime := range []string{"image/jpeg", "image/png", "image/webp", "image/gif"} {
		img := ImageContent{MimeType: mime, Data: []byte{0x01, 0x02, 0x03}}
		assert.NoError(t, img.Validate(), mime)
	}
}

func TestImageContentValidateRejectsUnsupportedMimeType(t *testing.T) {
	img := ImageContent{MimeType: "image/bmp", Data: []byte{0x01}}
	assert.Error(t, img.Validate())
}

func TestImageContentValidateRejectsEmptyData(t *testing.T) {
	img := ImageContent{MimeType: "image/png", Data: nil}
	assert.Error(t, img.Validate())
}

func TestImageContentValidateRejectsOversizedData(t *testing.T) {
	img := ImageContent{MimeType: "image/png", Data: bytes.Repeat([]byte{0x00}, MaxImageBytes+1)}
	assert.Error(t, img.Validate())
}
