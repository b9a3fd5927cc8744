package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/emvs/utils"
)

// BorderPad selects how pixels outside the image are filled when padding for a convolution.
type BorderPad int

const (
	// BorderConstant pads with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate repeats the edge pixel: aaa|abcd|ddd.
	BorderReplicate
	// BorderReflect mirrors around the edge pixel without repeating it: dcb|abcd|cba.
	BorderReflect
)

// Kernel is a convolution matrix; Content is indexed [row][column].
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// NewRowKernel returns a single row kernel holding weights.
func NewRowKernel(weights []float64) Kernel {
	return Kernel{[][]float64{append([]float64(nil), weights...)}, len(weights), 1}
}

// NewColumnKernel returns a single column kernel holding weights.
func NewColumnKernel(weights []float64) Kernel {
	content := make([][]float64, len(weights))
	for i, w := range weights {
		content[i] = []float64{w}
	}
	return Kernel{content, 1, len(weights)}
}

// Size returns the kernel dimensions.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel value at column x and row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

func (k *Kernel) validate(anchor image.Point) error {
	if k.Width < 1 || k.Height < 1 || len(k.Content) != k.Height {
		return errors.Errorf("kernel of size %dx%d has %d rows", k.Width, k.Height, len(k.Content))
	}
	for i, row := range k.Content {
		if len(row) != k.Width {
			return errors.Errorf("kernel row %d has %d values, expected %d", i, len(row), k.Width)
		}
	}
	if !anchor.In(image.Rect(0, 0, k.Width, k.Height)) {
		return errors.Errorf("anchor %v is outside the %dx%d kernel", anchor, k.Width, k.Height)
	}
	return nil
}

// borderIndex maps a possibly out of range index into [0, n). ok is false when the pixel is a
// constant pad.
func borderIndex(i, n int, border BorderPad) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch border {
	case BorderReplicate:
		return clampInt(i, 0, n-1), true
	case BorderReflect:
		if n == 1 {
			return 0, true
		}
		period := 2 * (n - 1)
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - i
		}
		return i, true
	default:
		return 0, false
	}
}

// PaddingGray returns img grown so that a kernel of kernelSize anchored at anchor can be applied at
// every original pixel. Original pixel (x, y) ends up at (x+anchor.X, y+anchor.Y).
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if !anchor.In(image.Rectangle{Max: kernelSize}) {
		return nil, errors.Errorf("anchor %v is outside a kernel of size %v", anchor, kernelSize)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("cannot pad an empty image")
	}
	padded := image.NewGray(image.Rect(0, 0, w+kernelSize.X-1, h+kernelSize.Y-1))
	for y := 0; y < padded.Rect.Dy(); y++ {
		sy, okY := borderIndex(y-anchor.Y, h, border)
		if !okY {
			continue
		}
		for x := 0; x < padded.Rect.Dx(); x++ {
			sx, okX := borderIndex(x-anchor.X, w, border)
			if !okX {
				continue
			}
			padded.Pix[y*padded.Stride+x] = img.Pix[sy*img.Stride+sx]
		}
	}
	return padded, nil
}

// PaddingFloat64 is PaddingGray for a matrix indexed (row, column).
func PaddingFloat64(m *mat.Dense, kernelSize, anchor image.Point, border BorderPad) (*mat.Dense, error) {
	if !anchor.In(image.Rectangle{Max: kernelSize}) {
		return nil, errors.Errorf("anchor %v is outside a kernel of size %v", anchor, kernelSize)
	}
	h, w := m.Dims()
	padded := mat.NewDense(h+kernelSize.Y-1, w+kernelSize.X-1, nil)
	ph, pw := padded.Dims()
	for y := 0; y < ph; y++ {
		sy, okY := borderIndex(y-anchor.Y, h, border)
		if !okY {
			continue
		}
		for x := 0; x < pw; x++ {
			sx, okX := borderIndex(x-anchor.X, w, border)
			if !okX {
				continue
			}
			padded.Set(y, x, m.At(sy, sx))
		}
	}
	return padded, nil
}

// ConvolveGray applies kernel to a grayscale image. The anchor is the kernel cell that lines up with
// the output pixel. Results are rounded and saturated to 8 bits.
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if img.Bounds().Empty() {
		if err := kernel.validate(anchor); err != nil {
			return nil, err
		}
		return image.NewGray(image.Rect(0, 0, 0, 0)), nil
	}
	res, err := ConvolveGrayFloat64(grayToDense(img), kernel, anchor, border)
	if err != nil {
		return nil, err
	}
	return denseToGray(res), nil
}

// ConvolveGrayFloat64 applies kernel to a matrix indexed (row, column). There is no clamping.
func ConvolveGrayFloat64(m *mat.Dense, kernel *Kernel, anchor image.Point, border BorderPad) (*mat.Dense, error) {
	if err := kernel.validate(anchor); err != nil {
		return nil, err
	}
	kernelSize := kernel.Size()
	padded, err := PaddingFloat64(m, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		sum := 0.0
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				sum += padded.At(y+ky, x+kx) * kernel.At(kx, ky)
			}
		}
		result.Set(y, x, sum)
	})
	return result, nil
}

func grayToDense(img *image.Gray) *mat.Dense {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			data[y*w+x] = float64(v)
		}
	}
	return mat.NewDense(h, w, data)
}

func denseToGray(m *mat.Dense) *image.Gray {
	h, w := m.Dims()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = saturateUint8(m.At(y, x))
		}
	}
	return out
}
