package rimage

import (
	"context"
	"image"
	"image/color"
	"slices"

	"github.com/pkg/errors"

	"go.viam.com/emvs/utils"
)

// MaskedMedianFilter replaces every masked pixel of src with the lower median of the masked pixels
// inside the size x size window centred on it. Unmasked pixels neither contribute nor receive a
// value; they are 0 in the output. Rows are filtered in parallel into a fresh image.
func MaskedMedianFilter(src *image.Gray16, mask *image.Gray, size int) (*image.Gray16, error) {
	if size < 1 || size%2 == 0 {
		return nil, errors.Errorf("median filter size must be odd and positive, got %d", size)
	}
	bounds := src.Bounds()
	if mask.Bounds().Size() != bounds.Size() {
		return nil, errors.Errorf("mask size %v does not match image size %v", mask.Bounds().Size(), bounds.Size())
	}
	w, h := bounds.Dx(), bounds.Dy()
	half := size / 2
	out := image.NewGray16(image.Rect(0, 0, w, h))
	masked := func(x, y int) bool {
		return mask.Pix[y*mask.Stride+x] != 0
	}
	value := func(x, y int) uint16 {
		i := y*src.Stride + x*2
		return uint16(src.Pix[i])<<8 | uint16(src.Pix[i+1])
	}

	err := utils.GroupWorkParallel(context.Background(), h, nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			window := make([]uint16, 0, size*size)
			return func(_, y int) {
				y0, y1 := max(y-half, 0), min(y+half, h-1)
				for x := 0; x < w; x++ {
					if !masked(x, y) {
						continue
					}
					x0, x1 := max(x-half, 0), min(x+half, w-1)
					window = window[:0]
					for wy := y0; wy <= y1; wy++ {
						for wx := x0; wx <= x1; wx++ {
							if masked(wx, wy) {
								window = append(window, value(wx, wy))
							}
						}
					}
					slices.Sort(window)
					out.SetGray16(x, y, color.Gray16{Y: window[(len(window)-1)/2]})
				}
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}
