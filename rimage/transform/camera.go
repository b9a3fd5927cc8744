// Package transform holds the camera models the mapper projects through.
package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Camera is a projective camera that can lift a pixel to its viewing ray.
type Camera interface {
	// LiftProjective returns a ray (not necessarily normalized) through the given pixel.
	LiftProjective(p r2.Point) r3.Vector
	ImageWidth() int
	ImageHeight() int
	// Intrinsics returns the linear part of the camera model.
	Intrinsics() *PinholeCameraIntrinsics
}

// PinholeCameraModel is the model of a pinhole camera with an optional lens distortion.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`

	undistort Distorter
}

// NewPinholeCameraModel validates the intrinsics and prepares the inverse of the distortion model
// so LiftProjective can undo it.
func NewPinholeCameraModel(intrinsics *PinholeCameraIntrinsics, distortion Distorter) (*PinholeCameraModel, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	model := &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}
	if distortion == nil {
		return model, nil
	}
	if err := distortion.CheckValid(); err != nil {
		return nil, err
	}
	inv, ok := distortion.(invertibleDistorter)
	if !ok {
		return nil, errors.Errorf("distortion model %q cannot be inverted", distortion.ModelType())
	}
	model.undistort = inv.Inverse()
	return model, nil
}

// LiftProjective removes the lens distortion of pixel p and returns its ray (x, y, 1).
func (params *PinholeCameraModel) LiftProjective(p r2.Point) r3.Vector {
	ray := params.PinholeCameraIntrinsics.LiftProjective(p)
	if params.undistort == nil {
		return ray
	}
	ray.X, ray.Y = params.undistort.Transform(ray.X, ray.Y)
	return ray
}

// Project maps a 3D point in the camera frame to its distorted pixel. The second return is false
// for points behind the camera.
func (params *PinholeCameraModel) Project(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{X: -1, Y: -1}, false
	}
	x, y := pt.X/pt.Z, pt.Y/pt.Z
	if params.Distortion != nil {
		x, y = params.Distortion.Transform(x, y)
	}
	return r2.Point{X: x*params.Fx + params.Ppx, Y: y*params.Fy + params.Ppy}, true
}

// DistortionMap is a function that transforms the undistorted input points (u,v) to the distorted points (x,y)
// according to the model in PinholeCameraModel.Distortion.
func (params *PinholeCameraModel) DistortionMap() func(u, v float64) (float64, float64) {
	return func(u, v float64) (float64, float64) {
		if params.Distortion == nil {
			return u, v
		}
		x := (u - params.Ppx) / params.Fx
		y := (v - params.Ppy) / params.Fy
		x, y = params.Distortion.Transform(x, y)
		return x*params.Fx + params.Ppx, y*params.Fy + params.Ppy
	}
}
