package pointcloud

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/emvs/spatialmath"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()
	test.That(t, pc.Size(), test.ShouldEqual, 0)

	pc.Push(r3.Vector{X: 1, Y: -2, Z: 3}, 0.5)
	pc.Push(r3.Vector{X: -1, Y: 4, Z: 2}, 0.25)
	pc.Push(r3.Vector{X: -1, Y: 4, Z: 2}, 0.25)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	test.That(t, pc.At(1).P, test.ShouldResemble, r3.Vector{X: -1, Y: 4, Z: 2})

	meta := pc.MetaData()
	test.That(t, meta.MinX, test.ShouldEqual, -1.0)
	test.That(t, meta.MaxY, test.ShouldEqual, 4.0)
	test.That(t, meta.MinZ, test.ShouldEqual, 2.0)
	test.That(t, meta.MaxIntensity, test.ShouldEqual, 0.5)
	test.That(t, meta.Center(), test.ShouldResemble, r3.Vector{X: 0, Y: 1, Z: 2.5})

	count := 0
	pc.Iterate(0, 0, func(p r3.Vector, intensity float64) bool {
		count++
		return count < 2
	})
	test.That(t, count, test.ShouldEqual, 2)

	other := NewBasicPointCloud(1)
	other.Push(r3.Vector{Z: 9}, 1)
	pc.Swap(other)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
	test.That(t, other.Size(), test.ShouldEqual, 3)
	test.That(t, pc.MetaData().MaxZ, test.ShouldEqual, 9.0)

	other.Clear()
	test.That(t, other.Size(), test.ShouldEqual, 0)
	test.That(t, other.MetaData().MaxX, test.ShouldEqual, -math.MaxFloat64)
}

func TestIterateBatches(t *testing.T) {
	pc := New()
	for i := 0; i < 10; i++ {
		pc.Push(r3.Vector{X: float64(i)}, 0)
	}
	seen := make([]int, 10)
	for batch := 0; batch < 3; batch++ {
		pc.Iterate(3, batch, func(p r3.Vector, _ float64) bool {
			seen[int(p.X)]++
			return true
		})
	}
	for _, n := range seen {
		test.That(t, n, test.ShouldEqual, 1)
	}
}

func TestTransformAndCentroid(t *testing.T) {
	pc := New()
	pc.Push(r3.Vector{X: 1}, 1)
	pc.Push(r3.Vector{X: 3}, 1)
	test.That(t, CloudCentroid(pc), test.ShouldResemble, r3.Vector{X: 2})

	pose := spatialmath.NewPose(mgl64.Rotate3DZ(math.Pi/2), r3.Vector{Z: 1})
	moved := Transform(pc, pose)
	test.That(t, moved.Size(), test.ShouldEqual, 2)
	c := CloudCentroid(moved)
	test.That(t, c.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, c.Y, test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, c.Z, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, CloudCentroid(New()), test.ShouldResemble, r3.Vector{})
}

func TestRadiusOutlierRemoval(t *testing.T) {
	pc := New()
	// A tight cluster of five points.
	for i := 0; i < 5; i++ {
		pc.Push(r3.Vector{X: 0.01 * float64(i), Y: 0, Z: 2}, 0.5)
	}
	// A pair far from everything.
	pc.Push(r3.Vector{X: 5, Z: 2}, 0.5)
	pc.Push(r3.Vector{X: 5.01, Z: 2}, 0.5)
	// A loner.
	pc.Push(r3.Vector{X: -5, Z: 2}, 0.5)

	test.That(t, RadiusOutlierRemoval(pc, 0, 3).Size(), test.ShouldEqual, 8)
	test.That(t, RadiusOutlierRemoval(pc, 0.1, 0).Size(), test.ShouldEqual, 8)
	test.That(t, RadiusOutlierRemoval(pc, 0.1, 1).Size(), test.ShouldEqual, 7)
	test.That(t, RadiusOutlierRemoval(pc, 0.1, 2).Size(), test.ShouldEqual, 5)
	test.That(t, RadiusOutlierRemoval(pc, 0.1, 4).Size(), test.ShouldEqual, 5)
	test.That(t, RadiusOutlierRemoval(pc, 0.1, 5).Size(), test.ShouldEqual, 0)
	test.That(t, RadiusOutlierRemoval(New(), 0.1, 1).Size(), test.ShouldEqual, 0)

	// Surviving points keep their order and the input is untouched.
	kept := RadiusOutlierRemoval(pc, 0.1, 2)
	test.That(t, kept.At(0).P, test.ShouldResemble, r3.Vector{Z: 2})
	test.That(t, pc.Size(), test.ShouldEqual, 8)

	prev := pc.Size()
	for minNeighbors := 1; minNeighbors < 8; minNeighbors++ {
		n := RadiusOutlierRemoval(pc, 0.03, minNeighbors).Size()
		test.That(t, n, test.ShouldBeLessThanOrEqualTo, prev)
		prev = n
	}
}

func TestPCDRoundTrip(t *testing.T) {
	pc := New()
	pc.Push(r3.Vector{X: 0.5, Y: -0.25, Z: 2}, 0.5)
	pc.Push(r3.Vector{X: 1, Y: 2, Z: 4}, 0.25)
	viewpoint := spatialmath.NewPose(mgl64.Rotate3DX(math.Pi/2), r3.Vector{X: 1, Y: 2, Z: 3})

	for _, pcdType := range []PCDType{PCDAscii, PCDBinary, PCDCompressed} {
		var buf bytes.Buffer
		test.That(t, ToPCD(pc, viewpoint, &buf, pcdType), test.ShouldBeNil)
		test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z intensity\n")

		back, vp, err := ReadPCD(&buf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Size(), test.ShouldEqual, 2)
		test.That(t, back.At(1).P, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 4})
		test.That(t, back.At(0).Intensity, test.ShouldEqual, 0.5)
		test.That(t, spatialmath.PoseAlmostEqual(vp, viewpoint, 1e-5), test.ShouldBeTrue)
	}

	var buf bytes.Buffer
	test.That(t, ToPCD(New(), viewpoint, &buf, PCDCompressed), test.ShouldBeNil)
	empty, _, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Size(), test.ShouldEqual, 0)

	// A flat grid compresses well and keeps its column layout.
	grid := New()
	for i := 0; i < 500; i++ {
		grid.Push(r3.Vector{X: float64(i % 25), Y: float64(i / 25), Z: 2}, 0.5)
	}
	buf.Reset()
	test.That(t, ToPCD(grid, viewpoint, &buf, PCDCompressed), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldBeLessThan, 16*grid.Size())
	back, _, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, grid.Size())
	test.That(t, back.At(137).P, test.ShouldResemble, grid.At(137).P)
	test.That(t, back.At(499).Intensity, test.ShouldEqual, 0.5)

	path := filepath.Join(t.TempDir(), "cloud.pcd")
	test.That(t, WriteToPCDFile(pc, spatialmath.NewZeroPose(), path, PCDBinary), test.ShouldBeNil)
	back, _, err = ReadPCDFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 2)
}

func TestReadPCDErrors(t *testing.T) {
	_, _, err := ReadPCD(bytes.NewBufferString("VERSION .7\nFIELDS x y z rgb\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported pcd fields")

	_, err = ParsePCDType("zip")
	test.That(t, err, test.ShouldNotBeNil)
}
