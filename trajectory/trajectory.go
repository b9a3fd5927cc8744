// Package trajectory provides camera poses over time.
package trajectory

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/emvs/spatialmath"
)

// A Trajectory yields the camera to world transform T_w_c at a point in time. Not having a pose for
// a time is a normal outcome and is reported with ok == false.
type Trajectory interface {
	PoseAt(t time.Time) (pose spatialmath.Pose, ok bool)
}

// Sample is a pose observed at a time.
type Sample struct {
	Time time.Time
	Pose spatialmath.Pose
}

// Linear interpolates between time ordered samples. Queries outside the sampled interval, or
// between samples further apart than the max gap, have no pose.
type Linear struct {
	samples []Sample
	maxGap  time.Duration
}

// NewLinear returns a trajectory over samples, which must be strictly increasing in time and rigid.
// A non-positive maxGap allows any gap.
func NewLinear(samples []Sample, maxGap time.Duration) (*Linear, error) {
	if len(samples) == 0 {
		return nil, errors.New("trajectory needs at least one sample")
	}
	for i, s := range samples {
		if !spatialmath.IsRigid(s.Pose, 1e-6) {
			return nil, errors.Errorf("sample %d at %v is not a rigid transform", i, s.Time)
		}
		if i > 0 && !s.Time.After(samples[i-1].Time) {
			return nil, errors.Errorf("sample %d at %v is not after sample %d at %v", i, s.Time, i-1, samples[i-1].Time)
		}
	}
	return &Linear{samples: append([]Sample(nil), samples...), maxGap: maxGap}, nil
}

// Len returns the number of samples.
func (l *Linear) Len() int {
	return len(l.samples)
}

// Start and End bound the interval with poses.
func (l *Linear) Start() time.Time {
	return l.samples[0].Time
}

// End returns the time of the last sample.
func (l *Linear) End() time.Time {
	return l.samples[len(l.samples)-1].Time
}

// PoseAt interpolates the pose at t.
func (l *Linear) PoseAt(t time.Time) (spatialmath.Pose, bool) {
	// first sample not before t
	i := sort.Search(len(l.samples), func(i int) bool {
		return !l.samples[i].Time.Before(t)
	})
	switch {
	case i == len(l.samples):
		return spatialmath.Pose{}, false
	case l.samples[i].Time.Equal(t):
		return l.samples[i].Pose, true
	case i == 0:
		return spatialmath.Pose{}, false
	}
	prev, next := l.samples[i-1], l.samples[i]
	gap := next.Time.Sub(prev.Time)
	if l.maxGap > 0 && gap > l.maxGap {
		return spatialmath.Pose{}, false
	}
	by := float64(t.Sub(prev.Time)) / float64(gap)
	return spatialmath.Interpolate(prev.Pose, next.Pose, by), true
}
