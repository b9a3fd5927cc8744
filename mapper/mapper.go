// Package mapper builds a disparity space image from events seen by a moving camera and extracts
// semi-dense depth from it.
//
// A mapping session starts with InitializeDSI, which fixes the reference viewpoint every DSI
// coordinate is relative to. Each UpdateDSI call back-projects a batch of events through the
// depth hypotheses and adds its ray votes to the grid. DepthMapFromDSI then picks, per reference
// pixel, the depth plane where most rays meet.
package mapper

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/emvs/dsi"
	"go.viam.com/emvs/logging"
	"go.viam.com/emvs/rimage/transform"
	"go.viam.com/emvs/spatialmath"
	"go.viam.com/emvs/utils"
)

const (
	// DefaultPacketSize is the number of events sharing one pose.
	DefaultPacketSize = 1024
	// DefaultParallelMinEvents is the smallest batch for which voting runs in parallel.
	DefaultParallelMinEvents = 20000
)

// ShapeDSI describes the voxel grid: its resolution and the depth range it spans. A non-positive
// DimX or DimY takes the sensor resolution.
type ShapeDSI struct {
	DimX     int
	DimY     int
	DimZ     int
	MinDepth float64
	MaxDepth float64
	Spacing  dsi.SpacingKind
}

// Options tune how events are processed. Zero values take the defaults.
type Options struct {
	PacketSize        int
	ParallelMinEvents int
	// Workers bounds the goroutines used for voting; 0 means utils.ParallelFactor.
	Workers int
}

func (opts Options) withDefaults() Options {
	if opts.PacketSize <= 0 {
		opts.PacketSize = DefaultPacketSize
	}
	if opts.ParallelMinEvents <= 0 {
		opts.ParallelMinEvents = DefaultParallelMinEvents
	}
	if opts.Workers <= 0 {
		opts.Workers = utils.ParallelFactor
	}
	return opts
}

// Mapper owns the DSI of one mapping session. It is not safe for concurrent use.
type Mapper struct {
	camera  transform.Camera
	virtual *transform.PinholeCameraIntrinsics
	shape   ShapeDSI
	opts    Options
	logger  logging.Logger

	depths    *dsi.DepthVector
	grid      *dsi.Grid3D
	rectified []mgl32.Vec2

	tWorldRef spatialmath.Pose
}

// New validates the DSI shape against the camera and allocates the grid. The reference viewpoint
// starts at the identity until InitializeDSI is called.
func New(cam transform.Camera, shape ShapeDSI, opts Options, logger logging.Logger) (*Mapper, error) {
	if cam == nil {
		return nil, errors.New("mapper needs a camera")
	}
	if err := cam.Intrinsics().CheckValid(); err != nil {
		return nil, err
	}
	if shape.DimX <= 0 {
		shape.DimX = cam.ImageWidth()
	}
	if shape.DimY <= 0 {
		shape.DimY = cam.ImageHeight()
	}
	if shape.Spacing == "" {
		shape.Spacing = dsi.InverseSpacing
	}
	depths, err := dsi.NewDepthVector(shape.Spacing, shape.MinDepth, shape.MaxDepth, shape.DimZ)
	if err != nil {
		return nil, err
	}
	grid, err := dsi.NewGrid3D(shape.DimX, shape.DimY, shape.DimZ)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("mapper")
	}

	m := &Mapper{
		camera:    cam,
		virtual:   transform.NewVirtualCamera(cam.Intrinsics(), shape.DimX, shape.DimY),
		shape:     shape,
		opts:      opts.withDefaults(),
		logger:    logger,
		depths:    depths,
		grid:      grid,
		rectified: RectificationTable(cam),
		tWorldRef: spatialmath.NewZeroPose(),
	}
	m.logger.Debugw("mapper ready",
		"dsi", []int{shape.DimX, shape.DimY, shape.DimZ},
		"depth_range", []float64{depths.MinDepth(), depths.MaxDepth()},
		"spacing", shape.Spacing,
		"packet_size", m.opts.PacketSize)
	return m, nil
}

// RectificationTable returns the undistorted normalized image coordinates of every sensor pixel,
// indexed y*width+x.
func RectificationTable(cam transform.Camera) []mgl32.Vec2 {
	w, h := cam.ImageWidth(), cam.ImageHeight()
	table := make([]mgl32.Vec2, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ray := cam.LiftProjective(r2.Point{X: float64(x), Y: float64(y)})
			table[y*w+x] = mgl32.Vec2{float32(ray.X / ray.Z), float32(ray.Y / ray.Z)}
		}
	}
	return table
}

// InitializeDSI starts a mapping session at the reference viewpoint T_w_rv and clears the grid.
func (m *Mapper) InitializeDSI(tWorldRef spatialmath.Pose) {
	m.tWorldRef = tWorldRef
	m.grid.Reset()
}

// ResetDSI clears the votes but keeps the reference viewpoint. It must not race with UpdateDSI.
func (m *Mapper) ResetDSI() {
	m.grid.Reset()
}

// Grid returns the voxel grid.
func (m *Mapper) Grid() *dsi.Grid3D {
	return m.grid
}

// DepthVector returns the depth hypotheses.
func (m *Mapper) DepthVector() *dsi.DepthVector {
	return m.depths
}

// VirtualCamera returns the distortion free camera of the reference view.
func (m *Mapper) VirtualCamera() *transform.PinholeCameraIntrinsics {
	return m.virtual
}

// ReferencePose returns T_w_rv.
func (m *Mapper) ReferencePose() spatialmath.Pose {
	return m.tWorldRef
}

// PacketSize returns the number of events sharing a pose.
func (m *Mapper) PacketSize() int {
	return m.opts.PacketSize
}

// Shape returns the grid shape with defaults resolved.
func (m *Mapper) Shape() ShapeDSI {
	return m.shape
}
