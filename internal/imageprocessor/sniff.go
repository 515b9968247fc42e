package imageprocessor

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Sniff reports the detected media type of raw, without parameters, and
// whether it is an image type.
func Sniff(raw []byte) (string, bool) {
	mediaType := strings.Split(mimetype.Detect(raw).String(), ";")[0]
	return mediaType, strings.HasPrefix(mediaType, "image/")
}
