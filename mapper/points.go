package mapper

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/emvs/pointcloud"
	"go.viam.com/emvs/spatialmath"
)

// minPointDepth rejects back-projections that are not in front of the reference view.
const minPointDepth = 1e-6

// PointCloudOptions control point generation and outlier removal.
type PointCloudOptions struct {
	// RadiusSearch is the neighbourhood radius in metres.
	RadiusSearch float64
	// MinNumNeighbors is how many other points a point needs within the radius to be kept.
	MinNumNeighbors int
	// Variance is attached to every depth point's inverse depth.
	Variance float64
}

// DefaultPointCloudOptions returns the usual filtering settings.
func DefaultPointCloudOptions() PointCloudOptions {
	return PointCloudOptions{RadiusSearch: 0.05, MinNumNeighbors: 3, Variance: 0.1}
}

// DepthPoint is a depth estimate of one reference pixel.
type DepthPoint struct {
	Row, Col int
	Pixel    r2.Point
	InvDepth float64
	Variance float64
	// Position is in the reference frame.
	Position r3.Vector
	// Pose is T_w_rv when the point was made.
	Pose spatialmath.Pose
}

func (m *Mapper) checkDepthMap(dm *DepthMap) error {
	w, h, _ := m.grid.Dims()
	if dm == nil || dm.Depth == nil || dm.Mask == nil {
		return errors.New("incomplete depth map")
	}
	if dm.Depth.Width() != w || dm.Depth.Height() != h || dm.Mask.Bounds().Dx() != w || dm.Mask.Bounds().Dy() != h {
		return errors.Errorf("depth map size %v does not match the %dx%d reference view", dm.Depth.Bounds().Size(), w, h)
	}
	return nil
}

// backProject calls fn with every masked pixel in front of the reference view and its position in
// the reference frame.
func (m *Mapper) backProject(dm *DepthMap, fn func(x, y int, pix r2.Point, p r3.Vector)) {
	for y := 0; y < dm.Depth.Height(); y++ {
		for x := 0; x < dm.Depth.Width(); x++ {
			if dm.Mask.Pix[y*dm.Mask.Stride+x] == 0 {
				continue
			}
			pix := r2.Point{X: float64(x), Y: float64(y)}
			ray := m.virtual.LiftProjective(pix)
			p := ray.Mul(float64(dm.Depth.At(x, y)) / ray.Z)
			if !(p.Z > minPointDepth) {
				continue
			}
			fn(x, y, pix, p)
		}
	}
}

// DepthPoints returns a depth point for every valid pixel of dm.
func (m *Mapper) DepthPoints(dm *DepthMap, opts PointCloudOptions) ([]DepthPoint, error) {
	if err := m.checkDepthMap(dm); err != nil {
		return nil, err
	}
	var points []DepthPoint
	m.backProject(dm, func(x, y int, pix r2.Point, p r3.Vector) {
		points = append(points, DepthPoint{
			Row:      y,
			Col:      x,
			Pixel:    pix,
			InvDepth: 1 / p.Z,
			Variance: opts.Variance,
			Position: p,
			Pose:     m.tWorldRef,
		})
	})
	return points, nil
}

// PointCloud back-projects the valid pixels of dm into the reference frame, with inverse depth as
// intensity, and drops points with fewer than MinNumNeighbors others within RadiusSearch.
func (m *Mapper) PointCloud(dm *DepthMap, opts PointCloudOptions) (*pointcloud.BasicPointCloud, error) {
	if err := m.checkDepthMap(dm); err != nil {
		return nil, err
	}
	cloud := pointcloud.NewBasicPointCloud(dm.ValidPixels())
	m.backProject(dm, func(_, _ int, _ r2.Point, p r3.Vector) {
		cloud.Push(p, 1/p.Z)
	})
	before := cloud.Size()
	cloud.Swap(pointcloud.RadiusOutlierRemoval(cloud, opts.RadiusSearch, opts.MinNumNeighbors))
	m.logger.Debugw("built point cloud", "points", before, "kept", cloud.Size())
	return cloud, nil
}

// PointCloudInWorld is PointCloud expressed in the world frame through T_w_rv.
func (m *Mapper) PointCloudInWorld(dm *DepthMap, opts PointCloudOptions) (*pointcloud.BasicPointCloud, error) {
	cloud, err := m.PointCloud(dm, opts)
	if err != nil {
		return nil, err
	}
	return pointcloud.Transform(cloud, m.tWorldRef), nil
}
