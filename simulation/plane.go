// Package simulation generates synthetic event streams with known geometry.
package simulation

import (
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/emvs/events"
	"go.viam.com/emvs/rimage/transform"
	"go.viam.com/emvs/spatialmath"
	"go.viam.com/emvs/trajectory"
)

// PlaneScene is a camera sliding along its x axis in front of a fronto-parallel plane textured
// with vertical stripes. The world frame is the camera frame at the middle step, and every step
// moves the camera so the plane shifts by exactly one pixel; stripe edges therefore always project
// onto whole pixels.
type PlaneScene struct {
	Camera *transform.PinholeCameraIntrinsics
	// Depth of the plane in metres.
	Depth float64
	// Steps is the number of camera positions.
	Steps        int
	StepDuration time.Duration
	// EventsPerStep events are emitted at every position, cycling over the visible edge pixels.
	EventsPerStep int
	// Stripes is the number of stripe edges, placed at random reference columns.
	Stripes int
	// MinStripeGap is the smallest distance in pixels between two edges.
	MinStripeGap int
	Seed         int64
	Start        time.Time
}

// DefaultPlaneScene returns a 240x180 camera sliding 61 steps in front of a plane at depth.
func DefaultPlaneScene(depth float64) PlaneScene {
	return PlaneScene{
		Camera: &transform.PinholeCameraIntrinsics{
			Width: 240, Height: 180, Fx: 200, Fy: 200, Ppx: 120, Ppy: 90,
		},
		Depth:         depth,
		Steps:         61,
		StepDuration:  10 * time.Millisecond,
		EventsPerStep: 1024,
		Stripes:       10,
		MinStripeGap:  8,
		Seed:          1,
		Start:         time.Unix(1600000000, 0),
	}
}

// Scene is a generated event stream with its trajectory and ground truth.
type Scene struct {
	Events     []events.Event
	Trajectory *trajectory.Linear
	// Reference is T_w_rv for the middle camera position.
	Reference spatialmath.Pose
	// EdgeColumns are the reference view columns of the stripe edges.
	EdgeColumns []int
	Depth       float64
	// Baseline is the distance travelled by the camera in metres.
	Baseline float64
}

func (ps PlaneScene) validate() error {
	if err := ps.Camera.CheckValid(); err != nil {
		return err
	}
	switch {
	case !(ps.Depth > 0):
		return errors.Errorf("plane depth must be positive, got %v", ps.Depth)
	case ps.Steps < 2:
		return errors.Errorf("need at least two steps, got %d", ps.Steps)
	case ps.StepDuration <= 0:
		return errors.Errorf("step duration must be positive, got %v", ps.StepDuration)
	case ps.EventsPerStep < 1:
		return errors.Errorf("need at least one event per step, got %d", ps.EventsPerStep)
	case ps.Stripes < 1:
		return errors.Errorf("need at least one stripe, got %d", ps.Stripes)
	}
	return nil
}

// Generate builds the event stream. All events of a step share its timestamp and a trajectory
// sample is taken at every step, so packets that do not straddle steps see the exact pose.
func (ps PlaneScene) Generate() (*Scene, error) {
	if err := ps.validate(); err != nil {
		return nil, err
	}
	cam := ps.Camera
	edges, err := ps.edgeColumns()
	if err != nil {
		return nil, err
	}

	// one pixel of parallax on the plane per step
	stepLength := ps.Depth / cam.Fx
	mid := (ps.Steps - 1) / 2
	scene := &Scene{
		Events:      make([]events.Event, 0, ps.Steps*ps.EventsPerStep),
		Reference:   spatialmath.NewZeroPose(),
		EdgeColumns: edges,
		Depth:       ps.Depth,
		Baseline:    float64(ps.Steps-1) * stepLength,
	}
	samples := make([]trajectory.Sample, 0, ps.Steps)

	type edgePixel struct{ x, y, edge int }
	visible := make([]edgePixel, 0, len(edges)*cam.Height)
	emitted := 0
	for s := 0; s < ps.Steps; s++ {
		stamp := ps.Start.Add(time.Duration(s) * ps.StepDuration)
		center := r3.Vector{X: float64(s-mid) * stepLength}
		samples = append(samples, trajectory.Sample{Time: stamp, Pose: spatialmath.NewPoseFromPoint(center)})

		visible = visible[:0]
		for k, u := range edges {
			world := r3.Vector{X: (float64(u) - cam.Ppx) * ps.Depth / cam.Fx, Z: ps.Depth}
			x := int(math.Round(cam.Fx*(world.X-center.X)/world.Z + cam.Ppx))
			if x < 0 || x >= cam.Width {
				continue
			}
			for y := 0; y < cam.Height; y++ {
				visible = append(visible, edgePixel{x, y, k})
			}
		}
		if len(visible) == 0 {
			continue
		}
		for i := 0; i < ps.EventsPerStep; i++ {
			p := visible[emitted%len(visible)]
			emitted++
			scene.Events = append(scene.Events, events.Event{X: p.x, Y: p.y, Timestamp: stamp, Polarity: p.edge%2 == 0})
		}
	}

	scene.Trajectory, err = trajectory.NewLinear(samples, 0)
	if err != nil {
		return nil, err
	}
	return scene, nil
}

// edgeColumns draws distinct edge columns at least MinStripeGap apart, away from the image border.
func (ps PlaneScene) edgeColumns() ([]int, error) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(ps.Seed))
	gap := max(ps.MinStripeGap, 1)
	margin := gap
	lo, hi := margin, ps.Camera.Width-margin
	if hi-lo < (ps.Stripes-1)*gap+1 {
		return nil, errors.Errorf("%d stripes %d pixels apart do not fit in %d columns", ps.Stripes, gap, ps.Camera.Width)
	}
	edges := make([]int, 0, ps.Stripes)
	for attempts := 0; len(edges) < ps.Stripes; attempts++ {
		if attempts > 1000*ps.Stripes {
			return nil, errors.Errorf("could not place %d stripes %d pixels apart", ps.Stripes, gap)
		}
		u := lo + rng.Intn(hi-lo)
		if slices.ContainsFunc(edges, func(e int) bool { return abs(e-u) < gap }) {
			continue
		}
		edges = append(edges, u)
	}
	slices.Sort(edges)
	return edges, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
