// Package pointcloud defines a point cloud of back-projected depth pixels and provides an
// implementation for one, along with outlier filtering and PCD export.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	MinIntensity, MaxIntensity float64

	inited bool // just to prevent someone creating the wrong way
}

// NewMetaData returns meta data for an empty cloud.
func NewMetaData() MetaData {
	return MetaData{
		MinX:         math.MaxFloat64,
		MinY:         math.MaxFloat64,
		MinZ:         math.MaxFloat64,
		MaxX:         -math.MaxFloat64,
		MaxY:         -math.MaxFloat64,
		MaxZ:         -math.MaxFloat64,
		MinIntensity: math.MaxFloat64,
		MaxIntensity: -math.MaxFloat64,
		inited:       true,
	}
}

// Merge extends the bounds to include the given point.
func (meta *MetaData) Merge(v r3.Vector, intensity float64) {
	if !meta.inited {
		*meta = NewMetaData()
	}
	meta.MinX, meta.MaxX = math.Min(meta.MinX, v.X), math.Max(meta.MaxX, v.X)
	meta.MinY, meta.MaxY = math.Min(meta.MinY, v.Y), math.Max(meta.MaxY, v.Y)
	meta.MinZ, meta.MaxZ = math.Min(meta.MinZ, v.Z), math.Max(meta.MaxZ, v.Z)
	meta.MinIntensity = math.Min(meta.MinIntensity, intensity)
	meta.MaxIntensity = math.Max(meta.MaxIntensity, intensity)
}

// Center returns the centre of the bounding box.
func (meta *MetaData) Center() r3.Vector {
	return r3.Vector{
		X: (meta.MaxX + meta.MinX) / 2,
		Y: (meta.MaxY + meta.MinY) / 2,
		Z: (meta.MaxZ + meta.MinZ) / 2,
	}
}

// PointCloud is a general purpose container of points, each carrying an intensity. Points are kept
// in insertion order and duplicates are allowed.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns meta data
	MetaData() MetaData

	// Push appends a point to the cloud.
	Push(p r3.Vector, intensity float64)

	// Clear removes every point.
	Clear()

	// Iterate iterates over all points in the cloud and calls the given
	// function for each point. If the supplied function returns false,
	// iteration will stop after the function returns.
	// numBatches lets you divide up he work. 0 means don't divide
	// myBatch is used iff numBatches > 0 and is which batch you want
	Iterate(numBatches, myBatch int, fn func(p r3.Vector, intensity float64) bool)
}

// CloudCentroid returns the mean position of the points; the zero vector for an empty cloud.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.Size() == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	pc.Iterate(0, 0, func(p r3.Vector, _ float64) bool {
		sum = sum.Add(p)
		return true
	})
	return sum.Mul(1 / float64(pc.Size()))
}
