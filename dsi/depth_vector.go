// Package dsi contains the disparity space image: the set of depth hypotheses and the voxel grid
// that accumulates ray votes across them.
package dsi

import (
	"fmt"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
)

// ErrInvalidDepthRange is returned when a depth vector cannot be built from the given range.
var ErrInvalidDepthRange = errors.New("invalid depth range")

// SpacingKind selects how depth hypotheses are distributed between the range bounds.
type SpacingKind string

const (
	// InverseSpacing samples uniformly in inverse depth, denser close to the camera.
	InverseSpacing = SpacingKind("inverse")
	// LinearSpacing samples uniformly in depth.
	LinearSpacing = SpacingKind("linear")
)

// DepthVector maps slice indices of a DSI to metric depths and back.
type DepthVector struct {
	kind     SpacingKind
	minDepth float64
	maxDepth float64
	count    int
	// step in the spacing domain (depth or inverse depth) between consecutive hypotheses.
	step   float64
	values []float64
}

// NewDepthVector returns count strictly increasing depths spanning [minDepth, maxDepth].
// An empty kind means InverseSpacing.
func NewDepthVector(kind SpacingKind, minDepth, maxDepth float64, count int) (*DepthVector, error) {
	if kind == "" {
		kind = InverseSpacing
	}
	if kind != InverseSpacing && kind != LinearSpacing {
		return nil, errors.Wrapf(ErrInvalidDepthRange, "unknown spacing %q", kind)
	}
	if !(minDepth > 0) || math.IsInf(minDepth, 0) {
		return nil, errors.Wrapf(ErrInvalidDepthRange, "min depth must be positive, got %v", minDepth)
	}
	if !(maxDepth > minDepth) || math.IsInf(maxDepth, 0) {
		return nil, errors.Wrapf(ErrInvalidDepthRange, "max depth %v must exceed min depth %v", maxDepth, minDepth)
	}
	if count < 1 {
		return nil, errors.Wrapf(ErrInvalidDepthRange, "need at least one depth plane, got %d", count)
	}

	dv := &DepthVector{kind: kind, minDepth: minDepth, maxDepth: maxDepth, count: count}
	if count > 1 {
		if kind == InverseSpacing {
			dv.step = (1/minDepth - 1/maxDepth) / float64(count-1)
		} else {
			dv.step = (maxDepth - minDepth) / float64(count-1)
		}
	}
	dv.values = make([]float64, count)
	for i := range dv.values {
		dv.values[i] = dv.CellIndexToDepth(float64(i))
	}
	dv.values[count-1] = dv.valueOfLast()
	return dv, nil
}

func (dv *DepthVector) valueOfLast() float64 {
	if dv.count == 1 {
		return dv.minDepth
	}
	return dv.maxDepth
}

// Kind returns the spacing law.
func (dv *DepthVector) Kind() SpacingKind {
	return dv.kind
}

// Size returns the number of hypotheses.
func (dv *DepthVector) Size() int {
	return dv.count
}

// MinDepth is the first (baseline) depth.
func (dv *DepthVector) MinDepth() float64 {
	return dv.minDepth
}

// MaxDepth is the last depth.
func (dv *DepthVector) MaxDepth() float64 {
	return dv.values[dv.count-1]
}

// ValueAt returns the depth of slice i. It panics if i is out of range.
func (dv *DepthVector) ValueAt(i int) float64 {
	return dv.values[i]
}

// Values returns a copy of every depth, in increasing order.
func (dv *DepthVector) Values() []float64 {
	return append([]float64(nil), dv.values...)
}

// CellIndexToDepth converts a possibly fractional slice index into a depth using the spacing law.
func (dv *DepthVector) CellIndexToDepth(idx float64) float64 {
	if dv.count == 1 {
		return dv.minDepth
	}
	if dv.kind == InverseSpacing {
		return 1 / (1/dv.minDepth - idx*dv.step)
	}
	return dv.minDepth + idx*dv.step
}

// IndexFromValue returns the slice whose depth is nearest to d in the spacing domain,
// clamped to [0, Size()-1].
func (dv *DepthVector) IndexFromValue(d float64) int {
	if dv.count == 1 || math.IsNaN(d) {
		return 0
	}
	var idx float64
	if dv.kind == InverseSpacing {
		if d <= 0 {
			return 0
		}
		idx = (1/dv.minDepth - 1/d) / dv.step
	} else {
		idx = (d - dv.minDepth) / dv.step
	}
	i := math.Round(idx)
	switch {
	case i <= 0:
		return 0
	case i >= float64(dv.count-1):
		return dv.count - 1
	default:
		return int(i)
	}
}

// String prints a table of the depth planes with their depth and inverse depth.
func (dv *DepthVector) String() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%d %s planes in [%g, %g]", dv.count, dv.kind, dv.minDepth, dv.maxDepth))
	t.AppendHeader(table.Row{"#", "Depth", "Inverse depth"})
	for i := 0; i < dv.count; i++ {
		d := dv.ValueAt(i)
		t.AppendRow(table.Row{i, fmt.Sprintf("%.4f", d), fmt.Sprintf("%.4f", 1/d)})
	}
	return t.Render()
}
