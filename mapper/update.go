package mapper

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"go.viam.com/emvs/events"
	"go.viam.com/emvs/spatialmath"
	"go.viam.com/emvs/trajectory"
	"go.viam.com/emvs/utils"
)

// ErrNotEnoughEvents is returned by UpdateDSI for a batch smaller than one packet.
var ErrNotEnoughEvents = errors.New("not enough events for one packet")

const (
	// events re-projected per inner batch when voting
	voteBatchSize = 128
	// below this the re-projection denominator is treated as zero
	minDenominator = 1e-9
	// below this the z0 plane homography is treated as singular
	minHomographyDet = 1e-12
)

// WarpedEvents are events of whole packets transferred onto the reference view through the plane
// at the first hypothesis depth. Locations holds PacketSize entries per packet, in packet order;
// Centers holds the optical centre of the camera of each packet in the reference frame.
type WarpedEvents struct {
	Locations  []mgl32.Vec2
	Centers    []mgl32.Vec3
	PacketSize int
}

// Packets returns the number of packets.
func (w WarpedEvents) Packets() int {
	return len(w.Centers)
}

// Packet returns the warped locations of packet i.
func (w WarpedEvents) Packet(i int) []mgl32.Vec2 {
	return w.Locations[i*w.PacketSize : (i+1)*w.PacketSize]
}

// UpdateDSI adds the ray votes of evs to the grid. Events are taken in packets that share the pose
// at their middle event; a packet without a pose is retried one event later. Trailing events that
// do not fill a packet are ignored. A batch smaller than one packet leaves the grid untouched and
// returns ErrNotEnoughEvents.
func (m *Mapper) UpdateDSI(evs []events.Event, traj trajectory.Trajectory) error {
	if len(evs) < m.opts.PacketSize {
		m.logger.Warnw("event batch smaller than a packet", "events", len(evs), "packet_size", m.opts.PacketSize)
		return errors.Wrapf(ErrNotEnoughEvents, "got %d events, packet size is %d", len(evs), m.opts.PacketSize)
	}
	warped := m.WarpEvents(evs, traj)
	m.logger.Debugw("warped events", "virtual_views", warped.Packets(), "events", len(evs))
	return m.FillVoxelGrid(warped)
}

// WarpEvents transfers every packet of evs with a resolvable pose onto the z0 plane of the
// reference view. Events outside the sensor get a NaN location so they cast no vote.
func (m *Mapper) WarpEvents(evs []events.Event, traj trajectory.Trajectory) WarpedEvents {
	ps := m.opts.PacketSize
	warped := WarpedEvents{
		Locations:  make([]mgl32.Vec2, 0, len(evs)-len(evs)%ps),
		Centers:    make([]mgl32.Vec3, 0, len(evs)/ps),
		PacketSize: ps,
	}
	tRefWorld := spatialmath.PoseInverse(m.tWorldRef)
	kVirtual := m.virtual.CameraMatrix()
	z0 := m.depths.ValueAt(0)
	width, height := m.camera.ImageWidth(), m.camera.ImageHeight()
	nan := float32(math.NaN())

	for cur := 0; cur+ps <= len(evs); {
		packet, stamp := events.Packet(evs, cur, ps)
		tWorldEv, ok := traj.PoseAt(stamp)
		if !ok {
			cur++
			continue
		}
		tEvRef := spatialmath.PoseInverse(spatialmath.Compose(tRefWorld, tWorldEv))
		rot := tEvRef.Rotation()
		t := tEvRef.Point()
		tv := mgl64.Vec3{t.X, t.Y, t.Z}

		// (z0 R + t e3ᵀ) maps a reference pixel ray scaled to the z0 plane into the event camera.
		hInv := rot.Mul(z0)
		hInv.SetCol(2, hInv.Col(2).Add(tv))
		if math.Abs(hInv.Det()) < minHomographyDet {
			m.logger.Debugw("skipping packet with singular homography", "at", stamp)
			cur += ps
			continue
		}
		h64 := kVirtual.Mul3(hInv.Inv())
		var h mgl32.Mat3
		for i, v := range h64 {
			h[i] = float32(v)
		}

		c := rot.Transpose().Mul3x1(tv).Mul(-1)
		warped.Centers = append(warped.Centers, mgl32.Vec3{float32(c[0]), float32(c[1]), float32(c[2])})

		for _, e := range packet {
			if e.X < 0 || e.Y < 0 || e.X >= width || e.Y >= height {
				warped.Locations = append(warped.Locations, mgl32.Vec2{nan, nan})
				continue
			}
			r := m.rectified[e.Y*width+e.X]
			p := h.Mul3x1(mgl32.Vec3{r[0], r[1], 1})
			warped.Locations = append(warped.Locations, mgl32.Vec2{p[0] / p[2], p[1] / p[2]})
		}
		cur += ps
	}
	return warped
}

// FillVoxelGrid re-projects warped events from the z0 plane onto every depth plane and votes them
// into the matching grid slice. Planes are split among workers for large batches; each worker only
// writes its own slices so the result does not depend on the worker count.
func (m *Mapper) FillVoxelGrid(warped WarpedEvents) error {
	if warped.Packets() == 0 {
		return nil
	}
	if warped.PacketSize != m.opts.PacketSize || len(warped.Locations) != warped.Packets()*warped.PacketSize {
		return errors.Errorf("warped events hold %d locations for %d packets of %d",
			len(warped.Locations), warped.Packets(), warped.PacketSize)
	}
	planes := m.depths.Size()
	if len(warped.Locations) < m.opts.ParallelMinEvents || m.opts.Workers == 1 {
		for z := 0; z < planes; z++ {
			m.fillPlane(z, warped)
		}
		return nil
	}
	return utils.GroupWorkParallelN(context.Background(), m.opts.Workers, planes, nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(_, z int) {
				m.fillPlane(z, warped)
			}, nil
		})
}

func (m *Mapper) fillPlane(plane int, warped WarpedEvents) {
	slice := m.grid.Slice(plane)
	z0 := float32(m.depths.ValueAt(0))
	zi := float32(m.depths.ValueAt(plane))
	fx, fy := float32(m.virtual.Fx), float32(m.virtual.Fy)
	cx, cy := float32(m.virtual.Ppx), float32(m.virtual.Ppy)

	var xs, ys [voteBatchSize]float32
	for p, c := range warped.Centers {
		a := z0 * (zi - c[2])
		bx := (z0 - zi) * (c[0]*fx + c[2]*cx)
		by := (z0 - zi) * (c[1]*fy + c[2]*cy)
		d := zi * (z0 - c[2])
		if math.Abs(float64(d)) < minDenominator {
			continue
		}
		for locs := warped.Packet(p); len(locs) > 0; {
			n := min(voteBatchSize, len(locs))
			for i, l := range locs[:n] {
				xs[i] = (l[0]*a + bx) / d
				ys[i] = (l[1]*a + by) / d
			}
			for i := 0; i < n; i++ {
				m.grid.AccumulateAt(xs[i], ys[i], slice)
			}
			locs = locs[n:]
		}
	}
}
