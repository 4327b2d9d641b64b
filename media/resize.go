package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// MaxImageWidth is the widest image the server uploads as is.
	MaxImageWidth = 1600
	jpegQuality   = 82
)

// Processed is an image ready for upload.
type Processed struct {
	Filename string
	Width    int
	Height   int
	Data     []byte
}

// Downsize decodes a GIF, PNG or JPEG image, scales it down to at most
// maxWidth pixels wide keeping the aspect ratio, and re-encodes it as
// JPEG. The returned filename keeps the original stem with a .jpg
// extension.
func Downsize(src io.Reader, originalName string, maxWidth int) (Processed, error) {
	if maxWidth <= 0 {
		maxWidth = MaxImageWidth
	}
	img, _, err := image.Decode(src)
	if err != nil {
		return Processed{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxWidth {
		newH := max(h*maxWidth/w, 1)
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = maxWidth, newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Processed{}, fmt.Errorf("encode jpeg: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	if stem == "" || stem == "." {
		stem = "image"
	}
	return Processed{Filename: stem + ".jpg", Width: w, Height: h, Data: buf.Bytes()}, nil
}
