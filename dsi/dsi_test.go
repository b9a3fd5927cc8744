package dsi

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestDepthVectorErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		min, max float64
		count    int
	}{
		{"zero min", 0, 5, 10},
		{"negative min", -1, 5, 10},
		{"inverted", 5, 1, 10},
		{"equal", 2, 2, 10},
		{"no planes", 1, 5, 0},
		{"nan", math.NaN(), 5, 10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDepthVector(InverseSpacing, tc.min, tc.max, tc.count)
			test.That(t, errors.Is(err, ErrInvalidDepthRange), test.ShouldBeTrue)
			_, err = NewDepthVector(LinearSpacing, tc.min, tc.max, tc.count)
			test.That(t, errors.Is(err, ErrInvalidDepthRange), test.ShouldBeTrue)
		})
	}
	_, err := NewDepthVector("log", 1, 5, 10)
	test.That(t, errors.Is(err, ErrInvalidDepthRange), test.ShouldBeTrue)
}

func TestDepthVectorMonotonicRoundTrip(t *testing.T) {
	for _, kind := range []SpacingKind{InverseSpacing, LinearSpacing} {
		t.Run(string(kind), func(t *testing.T) {
			dv, err := NewDepthVector(kind, 0.5, 5, 100)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, dv.Size(), test.ShouldEqual, 100)
			test.That(t, dv.ValueAt(0), test.ShouldEqual, 0.5)
			test.That(t, dv.ValueAt(99), test.ShouldEqual, 5.0)
			for i := 0; i < dv.Size(); i++ {
				if i > 0 {
					test.That(t, dv.ValueAt(i), test.ShouldBeGreaterThan, dv.ValueAt(i-1))
				}
				test.That(t, dv.IndexFromValue(dv.ValueAt(i)), test.ShouldEqual, i)
				test.That(t, dv.CellIndexToDepth(float64(i)), test.ShouldAlmostEqual, dv.ValueAt(i), 1e-9)
			}
			test.That(t, dv.IndexFromValue(0.1), test.ShouldEqual, 0)
			test.That(t, dv.IndexFromValue(100), test.ShouldEqual, 99)
			test.That(t, dv.IndexFromValue(math.Inf(1)), test.ShouldEqual, 99)

			values := dv.Values()
			values[0] = 42
			test.That(t, dv.ValueAt(0), test.ShouldEqual, 0.5)
		})
	}
}

func TestDepthVectorInverseSpacing(t *testing.T) {
	dv, err := NewDepthVector("", 1, 4, 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dv.Kind(), test.ShouldEqual, InverseSpacing)
	// Equal steps in 1/z, so the 2/3 point in inverse depth is exactly z=2.
	test.That(t, dv.ValueAt(66), test.ShouldAlmostEqual, 2.0, 1e-12)
	test.That(t, dv.IndexFromValue(2), test.ShouldEqual, 66)
	test.That(t, dv.ValueAt(1)-dv.ValueAt(0), test.ShouldBeLessThan, dv.ValueAt(99)-dv.ValueAt(98))
}

func TestDepthVectorSinglePlane(t *testing.T) {
	dv, err := NewDepthVector(LinearSpacing, 2, 3, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dv.Values(), test.ShouldResemble, []float64{2})
	test.That(t, dv.IndexFromValue(2.9), test.ShouldEqual, 0)
	test.That(t, dv.CellIndexToDepth(0), test.ShouldEqual, 2.0)
	test.That(t, dv.String(), test.ShouldContainSubstring, "2.0000")
	test.That(t, dv.String(), test.ShouldContainSubstring, "0.5000")
}

func TestNewGrid3D(t *testing.T) {
	_, err := NewGrid3D(0, 3, 3)
	test.That(t, errors.Is(err, ErrInvalidDimensions), test.ShouldBeTrue)
	_, err = NewGrid3D(3, 3, -1)
	test.That(t, errors.Is(err, ErrInvalidDimensions), test.ShouldBeTrue)

	g, err := NewGrid3D(4, 3, 2)
	test.That(t, err, test.ShouldBeNil)
	w, h, d := g.Dims()
	test.That(t, []int{w, h, d}, test.ShouldResemble, []int{4, 3, 2})
	test.That(t, len(g.Slice(1)), test.ShouldEqual, 12)
}

func TestAccumulateAtConservesMass(t *testing.T) {
	g, err := NewGrid3D(10, 8, 2)
	test.That(t, err, test.ShouldBeNil)
	s := g.Slice(1)

	g.AccumulateAt(3.25, 4.5, s)
	test.That(t, g.SliceSum(1), test.ShouldAlmostEqual, 1.0, 1e-6)
	test.That(t, g.SliceSum(0), test.ShouldEqual, 0.0)
	test.That(t, g.At(3, 4, 1), test.ShouldAlmostEqual, 0.375, 1e-6)
	test.That(t, g.At(4, 4, 1), test.ShouldAlmostEqual, 0.125, 1e-6)
	test.That(t, g.At(3, 5, 1), test.ShouldAlmostEqual, 0.375, 1e-6)
	test.That(t, g.At(4, 5, 1), test.ShouldAlmostEqual, 0.125, 1e-6)

	g.AccumulateAt(9, 7, s)
	test.That(t, g.SliceSum(1), test.ShouldAlmostEqual, 2.0, 1e-6)
	test.That(t, g.At(9, 7, 1), test.ShouldAlmostEqual, 1.0, 1e-6)
}

func TestAccumulateAtBorders(t *testing.T) {
	g, err := NewGrid3D(10, 8, 1)
	test.That(t, err, test.ShouldBeNil)
	s := g.Slice(0)

	// Half the mass lands outside the right edge.
	g.AccumulateAt(9.5, 3, s)
	test.That(t, g.Sum(), test.ShouldAlmostEqual, 0.5, 1e-6)

	// Only the bottom-right corner is inside.
	g.Reset()
	g.AccumulateAt(-0.5, -0.5, s)
	test.That(t, g.Sum(), test.ShouldAlmostEqual, 0.25, 1e-6)
	test.That(t, g.At(0, 0, 0), test.ShouldAlmostEqual, 0.25, 1e-6)

	g.Reset()
	for _, p := range [][2]float32{
		{-1.5, 2}, {10, 2}, {2, 8}, {2, -3},
		{float32(math.NaN()), 2}, {2, float32(math.Inf(1))}, {float32(math.Inf(-1)), 1},
	} {
		g.AccumulateAt(p[0], p[1], s)
	}
	test.That(t, g.Sum(), test.ShouldEqual, 0.0)
}

func TestCollapseMaxZSlice(t *testing.T) {
	g, err := NewGrid3D(3, 2, 4)
	test.That(t, err, test.ShouldBeNil)
	g.Slice(2)[0] = 5
	g.Slice(3)[0] = 4
	// Tie between slices 1 and 3 goes to 1.
	g.Slice(1)[4] = 2
	g.Slice(3)[4] = 2
	g.Slice(0)[5] = 1

	conf, idx := g.CollapseMaxZSlice()
	test.That(t, conf.At(0, 0), test.ShouldEqual, float32(5))
	test.That(t, idx.Gray16At(0, 0).Y, test.ShouldEqual, 2)
	test.That(t, conf.At(1, 1), test.ShouldEqual, float32(2))
	test.That(t, idx.Gray16At(1, 1).Y, test.ShouldEqual, 1)
	test.That(t, idx.Gray16At(2, 1).Y, test.ShouldEqual, 0)
	// Empty pixels report slice 0 with zero confidence.
	test.That(t, conf.At(1, 0), test.ShouldEqual, float32(0))
	test.That(t, idx.Gray16At(1, 0).Y, test.ShouldEqual, 0)

	g.Reset()
	test.That(t, g.Sum(), test.ShouldEqual, 0.0)
}
