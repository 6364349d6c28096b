// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pixel holds the image conversions around the protocol: raw
// editor buffers to images, PNG files in and out of the shared
// directory, alpha handling, mask cropping, and layer alignment.
//
// Images are *image.NRGBA (straight alpha, as editors export them) and
// masks are *image.Gray where 0 is unselected and 255 fully selected.
package pixel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"

	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// AlphaMode selects what happens to transparency when an image is
// loaded for the pipeline.
type AlphaMode string

const (
	// AlphaKeep keeps the alpha channel.
	AlphaKeep AlphaMode = "keep"

	// AlphaWhite, AlphaBlack and AlphaGray composite the image over a
	// solid background and make it opaque.
	AlphaWhite AlphaMode = "white"
	AlphaBlack AlphaMode = "black"
	AlphaGray  AlphaMode = "gray"
)

// ParseAlphaMode validates a configured alpha mode. Empty means keep.
func ParseAlphaMode(text string) (AlphaMode, error) {
	switch mode := AlphaMode(text); mode {
	case "":
		return AlphaKeep, nil
	case AlphaKeep, AlphaWhite, AlphaBlack, AlphaGray:
		return mode, nil
	}
	return "", fmt.Errorf("unknown alpha mode %q (want keep, white, black or gray)", text)
}

func (m AlphaMode) background() (color.NRGBA, bool) {
	switch m {
	case AlphaWhite:
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}, true
	case AlphaBlack:
		return color.NRGBA{A: 255}, true
	case AlphaGray:
		return color.NRGBA{R: 128, G: 128, B: 128, A: 255}, true
	}
	return color.NRGBA{}, false
}

// FromBGRA converts an editor's 8-bit BGRA pixel buffer, row-major with
// no padding, into an image.
func FromBGRA(width, height int, pixels []byte) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("canvas buffer holds %d bytes, want %d for %dx%d BGRA", len(pixels), width*height*4, width, height)
	}
	result := image.NewNRGBA(image.Rect(0, 0, width, height))
	for offset := 0; offset < len(pixels); offset += 4 {
		result.Pix[offset+0] = pixels[offset+2]
		result.Pix[offset+1] = pixels[offset+1]
		result.Pix[offset+2] = pixels[offset+0]
		result.Pix[offset+3] = pixels[offset+3]
	}
	return result, nil
}

// ToBGRA is the inverse of FromBGRA.
func ToBGRA(source image.Image) (width, height int, pixels []byte) {
	normalized := imaging.Clone(source)
	width, height = normalized.Rect.Dx(), normalized.Rect.Dy()
	pixels = make([]byte, len(normalized.Pix))
	for offset := 0; offset < len(pixels); offset += 4 {
		pixels[offset+0] = normalized.Pix[offset+2]
		pixels[offset+1] = normalized.Pix[offset+1]
		pixels[offset+2] = normalized.Pix[offset+0]
		pixels[offset+3] = normalized.Pix[offset+3]
	}
	return width, height, pixels
}

// GrayFromBytes wraps an 8-bit selection buffer, row-major with no
// padding.
func GrayFromBytes(width, height int, data []byte) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid selection size %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("selection buffer holds %d bytes, want %d for %dx%d", len(data), width*height, width, height)
	}
	mask := image.NewGray(image.Rect(0, 0, width, height))
	copy(mask.Pix, data)
	return mask, nil
}

// ToGray converts any image to an 8-bit mask by luminance.
func ToGray(source image.Image) *image.Gray {
	if gray, ok := source.(*image.Gray); ok && gray.Rect.Min == (image.Point{}) {
		clone := image.NewGray(gray.Rect)
		copy(clone.Pix, gray.Pix)
		return clone
	}
	bounds := source.Bounds()
	mask := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			mask.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.GrayModel.Convert(source.At(x, y)).(color.Gray))
		}
	}
	return mask
}

// ApplyAlpha returns a copy of source with mode applied.
func ApplyAlpha(source image.Image, mode AlphaMode) *image.NRGBA {
	clone := imaging.Clone(source)
	fill, ok := mode.background()
	if !ok {
		return clone
	}
	background := imaging.New(clone.Rect.Dx(), clone.Rect.Dy(), fill)
	return imaging.Overlay(background, clone, image.Point{}, 1.0)
}

// CropToMask keeps the selected part of source: the mask is resized to
// the image with a Lanczos filter, binarized at 127, and every
// unselected pixel becomes fully transparent.
func CropToMask(source image.Image, mask image.Image) *image.NRGBA {
	result := imaging.Clone(source)
	width, height := result.Rect.Dx(), result.Rect.Dy()
	scaled := imaging.Resize(mask, width, height, imaging.Lanczos)
	for y := range height {
		for x := range width {
			// Resize yields NRGBA; the mask value is in every color
			// channel, R is enough.
			if scaled.Pix[y*scaled.Stride+x*4] <= 127 {
				result.Pix[y*result.Stride+x*4+3] = 0
			}
		}
	}
	return result
}

// AlignmentOffset positions a width×height layer inside a
// targetWidth×targetHeight document. Offsets are negative when the
// layer is larger than the document. Unknown alignments center.
func AlignmentOffset(targetWidth, targetHeight, width, height int, alignment wire.Alignment) image.Point {
	switch alignment {
	case wire.AlignTopLeft:
		return image.Point{}
	case wire.AlignTopRight:
		return image.Pt(targetWidth-width, 0)
	case wire.AlignBottomLeft:
		return image.Pt(0, targetHeight-height)
	case wire.AlignBottomRight:
		return image.Pt(targetWidth-width, targetHeight-height)
	}
	return image.Pt(floorDiv(targetWidth-width, 2), floorDiv(targetHeight-height, 2))
}

// floorDiv rounds toward negative infinity so oversized layers center
// the same way on both axes.
func floorDiv(a, b int) int {
	quotient := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		quotient--
	}
	return quotient
}

// IsEmpty reports whether mask is nil or selects nothing.
func IsEmpty(mask *image.Gray) bool {
	if mask == nil {
		return true
	}
	for _, value := range mask.Pix {
		if value != 0 {
			return false
		}
	}
	return true
}

// FinalMask picks the mask handed back to the pipeline: a fetched mask
// that selects something, otherwise the caller's input mask, otherwise
// an empty mask of size bounds.
func FinalMask(fetched, input *image.Gray, bounds image.Rectangle) *image.Gray {
	if !IsEmpty(fetched) {
		return fetched
	}
	if input != nil {
		return input
	}
	return image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
}

// EncodePNG writes img as PNG.
func EncodePNG(writer io.Writer, img image.Image) error {
	return imaging.Encode(writer, img, imaging.PNG)
}

// Load reads an image file and applies mode.
func Load(path string, mode AlphaMode) (*image.NRGBA, error) {
	source, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading image %s: %w", path, err)
	}
	return ApplyAlpha(source, mode), nil
}

// LoadMask reads a mask file and converts it to 8-bit gray.
func LoadMask(path string) (*image.Gray, error) {
	source, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading mask %s: %w", path, err)
	}
	return ToGray(source), nil
}

// WritePNG encodes img and writes it atomically as name inside
// directory. Returns the file's absolute path.
func WritePNG(directory *dropdir.Directory, name string, img image.Image) (string, error) {
	var buffer bytes.Buffer
	if err := EncodePNG(&buffer, img); err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := directory.WriteFile(name, buffer.Bytes()); err != nil {
		return "", err
	}
	return directory.Join(name), nil
}
