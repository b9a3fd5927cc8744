package mapper

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/emvs/rimage"
)

// DepthMapOptions control how a depth map is extracted from the DSI.
type DepthMapOptions struct {
	// AdaptiveThresholdKernelSize is the odd Gaussian window of the confidence threshold.
	AdaptiveThresholdKernelSize int
	// AdaptiveThresholdC is how far above its local mean a normalized confidence must be.
	AdaptiveThresholdC float64
	// MedianFilterSize is the odd window of the masked median filter.
	MedianFilterSize int
	// BorderSize is the band removed along the image edges; at least half the threshold window.
	BorderSize int
}

// DefaultDepthMapOptions returns the usual extraction settings.
func DefaultDepthMapOptions() DepthMapOptions {
	return DepthMapOptions{
		AdaptiveThresholdKernelSize: 5,
		AdaptiveThresholdC:          5,
		MedianFilterSize:            15,
	}
}

// DepthMap is a semi-dense depth estimate in the reference view. Only pixels with a non-zero Mask
// carry a meaningful depth.
type DepthMap struct {
	Depth      *rimage.FloatMap
	Confidence *rimage.FloatMap
	Mask       *image.Gray
	Indices    *image.Gray16
}

// ValidPixels returns the number of masked pixels.
func (dm *DepthMap) ValidPixels() int {
	return rimage.CountMask(dm.Mask)
}

// DepthMapFromDSI picks for every reference pixel the depth plane with the most votes, keeps the
// pixels whose vote count stands out locally, smooths their plane indices with a masked median
// and converts them to metric depth. An empty mask is a valid result.
func (m *Mapper) DepthMapFromDSI(opts DepthMapOptions) (*DepthMap, error) {
	confidence, indices := m.grid.CollapseMaxZSlice()

	mask, err := rimage.AdaptiveThreshold(rimage.NormalizeToGray(confidence),
		opts.AdaptiveThresholdKernelSize, opts.AdaptiveThresholdC)
	if err != nil {
		return nil, errors.Wrap(err, "thresholding confidence")
	}
	filtered, err := rimage.MaskedMedianFilter(indices, mask, opts.MedianFilterSize)
	if err != nil {
		return nil, errors.Wrap(err, "filtering depth indices")
	}
	rimage.RemoveMaskBoundary(mask, max(opts.BorderSize, opts.AdaptiveThresholdKernelSize/2, 1))

	w, h, _ := m.grid.Dims()
	depth := rimage.NewFloatMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			depth.Set(x, y, float32(m.depths.CellIndexToDepth(float64(filtered.Gray16At(x, y).Y))))
		}
	}
	dm := &DepthMap{Depth: depth, Confidence: confidence, Mask: mask, Indices: filtered}
	m.logger.Debugw("extracted depth map", "valid_pixels", dm.ValidPixels())
	return dm, nil
}
