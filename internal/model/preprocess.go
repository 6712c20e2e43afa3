package model

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrInvalidTensor = errors.New("invalid input tensor")
)

// DecodeImage decodes a JPEG, PNG or GIF payload.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	return img, format, nil
}

// Preprocess resizes img to the model's square input and scales each RGB
// channel to [0,1], laid out as meta.Layout with a batch dimension of one.
func Preprocess(img image.Image, meta Metadata) []float32 {
	size := uint(meta.ImageSize)
	resized := resize.Resize(size, size, img, resize.Bilinear)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [3]float32{
				float32(r) / 65535.0,
				float32(g) / 65535.0,
				float32(b) / 65535.0,
			}

			pixelIndex := y*width + x
			for c, v := range rgb {
				if meta.Layout == LayoutNCHW {
					inputData[c*plane+pixelIndex] = v
				} else {
					inputData[pixelIndex*3+c] = v
				}
			}
		}
	}
	return inputData
}
