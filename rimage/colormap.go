package rimage

import (
	"bufio"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ColorizeDepth renders the masked pixels of a depth map with a hue ramp in inverse depth:
// near is red, far is blue. Unmasked pixels are black.
func ColorizeDepth(depth *FloatMap, mask *image.Gray, minDepth, maxDepth float64) (*image.NRGBA, error) {
	if minDepth <= 0 || maxDepth <= minDepth {
		return nil, errors.Errorf("invalid depth range [%v, %v]", minDepth, maxDepth)
	}
	if mask.Bounds().Size() != depth.Bounds().Size() {
		return nil, errors.Errorf("mask size %v does not match depth size %v", mask.Bounds().Size(), depth.Bounds().Size())
	}
	out := image.NewNRGBA(depth.Bounds())
	invNear, invFar := 1/minDepth, 1/maxDepth
	for y := 0; y < depth.Height(); y++ {
		for x := 0; x < depth.Width(); x++ {
			if mask.Pix[y*mask.Stride+x] == 0 {
				out.SetNRGBA(x, y, color.NRGBA{A: 255})
				continue
			}
			d := float64(depth.At(x, y))
			t := 0.0
			if d > 0 {
				t = (invNear - 1/d) / (invNear - invFar)
			}
			t = min(max(t, 0), 1)
			r, g, b := colorful.Hsv(240*t, 1, 1).Clamped().RGB255()
			out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out, nil
}

// WriteImageToFile saves img to path; the encoding follows the extension. Besides the formats
// imaging knows, .ppm writes a binary portable pixmap.
func WriteImageToFile(img image.Image, path string) error {
	if strings.ToLower(filepath.Ext(path)) != ".ppm" {
		return errors.Wrapf(imaging.Save(img, path), "writing image to %q", path)
	}
	return errors.Wrapf(writePPM(img, path), "writing image to %q", path)
}

func writePPM(img image.Image, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ppm.Encode(w, toRGBA(img)); err != nil {
		return err
	}
	return w.Flush()
}

// toRGBA converts img for encoders that only accept the RGBA color model.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// ReadImageFromFile decodes any format WriteImageToFile produces.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	return img, errors.Wrapf(err, "reading image from %q", path)
}
