package transform

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
)

// encode writes img to w in the given decoded format ("jpeg"/"png"),
// matching media.ImageRescale's format-preserving re-encode step.
func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "png":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("transform: unsupported image format %q", format)
	}
}
