package pointcloud

import (
	"github.com/golang/geo/r3"

	"go.viam.com/emvs/spatialmath"
)

// PointAndIntensity is a single stored point.
type PointAndIntensity struct {
	P         r3.Vector
	Intensity float64
}

// BasicPointCloud is the basic implementation of the PointCloud interface backed by a slice.
type BasicPointCloud struct {
	points []PointAndIntensity
	meta   MetaData
}

// New returns an empty BasicPointCloud.
func New() *BasicPointCloud {
	return NewBasicPointCloud(0)
}

// NewBasicPointCloud returns an empty, preallocated BasicPointCloud.
func NewBasicPointCloud(size int) *BasicPointCloud {
	return &BasicPointCloud{
		points: make([]PointAndIntensity, 0, size),
		meta:   NewMetaData(),
	}
}

// Size returns the number of points.
func (cloud *BasicPointCloud) Size() int {
	return len(cloud.points)
}

// MetaData returns the cloud's bounds.
func (cloud *BasicPointCloud) MetaData() MetaData {
	return cloud.meta
}

// Push appends a point.
func (cloud *BasicPointCloud) Push(p r3.Vector, intensity float64) {
	cloud.points = append(cloud.points, PointAndIntensity{P: p, Intensity: intensity})
	cloud.meta.Merge(p, intensity)
}

// Clear removes every point, keeping the allocation.
func (cloud *BasicPointCloud) Clear() {
	cloud.points = cloud.points[:0]
	cloud.meta = NewMetaData()
}

// Swap exchanges the contents of two clouds.
func (cloud *BasicPointCloud) Swap(other *BasicPointCloud) {
	cloud.points, other.points = other.points, cloud.points
	cloud.meta, other.meta = other.meta, cloud.meta
}

// At returns the i-th point in insertion order.
func (cloud *BasicPointCloud) At(i int) PointAndIntensity {
	return cloud.points[i]
}

// Iterate visits the points in insertion order, optionally restricted to one of numBatches
// contiguous batches.
func (cloud *BasicPointCloud) Iterate(numBatches, myBatch int, fn func(p r3.Vector, intensity float64) bool) {
	lowerBound := 0
	upperBound := len(cloud.points)
	if numBatches > 0 {
		batchSize := (len(cloud.points) + numBatches - 1) / numBatches
		lowerBound = min(myBatch*batchSize, len(cloud.points))
		upperBound = min(lowerBound+batchSize, len(cloud.points))
	}
	for _, pi := range cloud.points[lowerBound:upperBound] {
		if !fn(pi.P, pi.Intensity) {
			return
		}
	}
}

// Transform returns a new cloud with every point of cloud mapped through pose.
func Transform(cloud PointCloud, pose spatialmath.Pose) *BasicPointCloud {
	out := NewBasicPointCloud(cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, intensity float64) bool {
		out.Push(pose.Transform(p), intensity)
		return true
	})
	return out
}
