package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// Fixed binomial kernels for the small odd sizes; larger sizes are sampled from a Gaussian.
var smallGaussianKernels = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// GaussianKernelSigma is the standard deviation implied by a kernel size when none is given.
func GaussianKernelSigma(size int) float64 {
	return 0.3*(float64(size-1)*0.5-1) + 0.8
}

// GaussianKernel1D returns a normalized 1D Gaussian kernel of odd length size.
func GaussianKernel1D(size int) ([]float64, error) {
	if size < 1 || size%2 == 0 {
		return nil, errors.Errorf("gaussian kernel size must be odd and positive, got %d", size)
	}
	if k, ok := smallGaussianKernels[size]; ok {
		return append([]float64(nil), k...), nil
	}
	gaussian := GaussianFunction1D(GaussianKernelSigma(size))
	kernel := make([]float64, size)
	sum := 0.0
	for i, dx := range makeRangeArray(size) {
		kernel[i] = gaussian(float64(dx))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel, nil
}

// GaussianFunction1D takes in a sigma and returns a gaussian function useful for weighing averages or blurring.
func GaussianFunction1D(sigma float64) func(p float64) float64 {
	if sigma <= 0. {
		return func(p float64) float64 {
			return 1.
		}
	}
	return func(p float64) float64 {
		return math.Exp(-0.5*p*p/(sigma*sigma)) / (sigma * math.Sqrt(2.*math.Pi))
	}
}

// makeRangeArray returns the offsets of an odd length kernel centred on 0, e.g. 5 -> {-2, -1, 0, 1, 2}.
func makeRangeArray(length int) []int {
	span := (length - 1) / 2
	rangeArray := make([]int, length)
	for i := range rangeArray {
		rangeArray[i] = i - span
	}
	return rangeArray
}

// GaussianBlurGray blurs an 8-bit image with a separable Gaussian of odd size, replicating edge pixels.
// The result is rounded back to 8 bits.
func GaussianBlurGray(src *image.Gray, size int) (*image.Gray, error) {
	weights, err := GaussianKernel1D(size)
	if err != nil {
		return nil, err
	}
	if src.Bounds().Empty() {
		return image.NewGray(image.Rect(0, 0, 0, 0)), nil
	}
	row, col := NewRowKernel(weights), NewColumnKernel(weights)
	// both passes stay in float64 so only the final value is rounded
	horizontal, err := ConvolveGrayFloat64(grayToDense(src), &row, image.Point{size / 2, 0}, BorderReplicate)
	if err != nil {
		return nil, err
	}
	blurred, err := ConvolveGrayFloat64(horizontal, &col, image.Point{0, size / 2}, BorderReplicate)
	if err != nil {
		return nil, err
	}
	return denseToGray(blurred), nil
}

// AdaptiveThreshold returns a binary (0/1) mask of the pixels brighter than their Gaussian
// weighted neighbourhood mean by more than c. blockSize is the odd neighbourhood width.
func AdaptiveThreshold(src *image.Gray, blockSize int, c float64) (*image.Gray, error) {
	if blockSize < 3 || blockSize%2 == 0 {
		return nil, errors.Errorf("adaptive threshold block size must be odd and >= 3, got %d", blockSize)
	}
	mean, err := GaussianBlurGray(src, blockSize)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cutoff := int(math.Floor(c))
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if int(src.Pix[y*src.Stride+x])-int(mean.Pix[y*mean.Stride+x]) > cutoff {
				mask.Pix[y*mask.Stride+x] = 1
			}
		}
	}
	return mask, nil
}

// RemoveMaskBoundary zeroes a band of the given thickness along every edge of the mask.
func RemoveMaskBoundary(mask *image.Gray, border int) {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		if y < border || y >= h-border {
			for x := range row {
				row[x] = 0
			}
			continue
		}
		for x := 0; x < border && x < w; x++ {
			row[x] = 0
		}
		for x := w - border; x < w; x++ {
			if x >= 0 {
				row[x] = 0
			}
		}
	}
}

// CountMask returns the number of non-zero mask pixels.
func CountMask(mask *image.Gray) int {
	bounds := mask.Bounds()
	count := 0
	for y := 0; y < bounds.Dy(); y++ {
		for _, v := range mask.Pix[y*mask.Stride : y*mask.Stride+bounds.Dx()] {
			if v != 0 {
				count++
			}
		}
	}
	return count
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
