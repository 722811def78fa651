package junksite

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxImageWidth = 1600
	jpegQuality   = 80
)

// processImage validates an uploaded post image. Images up to maxImageWidth
// are kept byte for byte; wider ones are scaled down and re-encoded, as PNG
// if they were PNG and as JPEG otherwise.
func processImage(src io.Reader) (*PostImage, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= maxImageWidth {
		return &PostImage{Data: data, ContentType: "image/" + format}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	newH := max(bounds.Dy()*maxImageWidth/bounds.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return &PostImage{Data: buf.Bytes(), ContentType: "image/png"}, nil
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &PostImage{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
}
