package browser

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/lenswire/lenswire/internal/models"
)

// CropRect maps percentage coordinates onto pixel bounds for an image of
// the given dimensions. Pixel values truncate toward zero.
func CropRect(width, height int, c models.CropSettings) image.Rectangle {
	return image.Rect(
		width*c.X1/100,
		height*c.Y1/100,
		width*c.X2/100,
		height*c.Y2/100,
	)
}

// CropFile crops the PNG at path in place using the configured percentage
// rectangle, computed from the image's actual dimensions.
func CropFile(path string, c models.CropSettings) error {
	if !c.Enabled {
		return nil
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode png: %w", err)
	}

	bounds := img.Bounds()
	rect := CropRect(bounds.Dx(), bounds.Dy(), c).Add(bounds.Min)

	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return fmt.Errorf("image type %T does not support cropping", img)
	}
	cropped := sub.SubImage(rect)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rewrite image: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, cropped); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
