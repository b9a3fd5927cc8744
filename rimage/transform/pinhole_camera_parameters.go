package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
// Without a distortion model it is also the virtual camera of a reference view.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px" yaml:"width_px"`
	Height int     `json:"height_px" yaml:"height_px"`
	Fx     float64 `json:"fx" yaml:"fx"`
	Fy     float64 `json:"fy" yaml:"fy"`
	Ppx    float64 `json:"ppx" yaml:"ppx"`
	Ppy    float64 `json:"ppy" yaml:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, intrinsics.CheckValid()
}

// NewVirtualCamera returns the distortion free camera of a reference view with the given resolution.
// Both focal lengths take the real camera's Fx and the principal point is the image centre.
func NewVirtualCamera(real *PinholeCameraIntrinsics, width, height int) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     real.Fx,
		Fy:     real.Fx,
		Ppx:    0.5 * float64(width),
		Ppy:    0.5 * float64(height),
	}
}

// ImageWidth returns the width of the image in pixels.
func (params *PinholeCameraIntrinsics) ImageWidth() int {
	return params.Width
}

// ImageHeight returns the height of the image in pixels.
func (params *PinholeCameraIntrinsics) ImageHeight() int {
	return params.Height
}

// Intrinsics returns itself so a bare pinhole satisfies Camera.
func (params *PinholeCameraIntrinsics) Intrinsics() *PinholeCameraIntrinsics {
	return params
}

// LiftProjective returns the ray (x, y, 1) through pixel p.
func (params *PinholeCameraIntrinsics) LiftProjective(p r2.Point) r3.Vector {
	return r3.Vector{X: (p.X - params.Ppx) / params.Fx, Y: (p.Y - params.Ppy) / params.Fy, Z: 1}
}

// PixelToPoint transforms a pixel with depth to a 3D point.
// The intrinsics parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return float64(0), float64(0), float64(0)
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point to sub-pixel coordinates in the image plane. The second return
// is false when the point is not in front of the camera.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (r2.Point, bool) {
	if z <= 0 {
		return r2.Point{X: -1, Y: -1}, false
	}
	return r2.Point{X: (x/z)*params.Fx + params.Ppx, Y: (y/z)*params.Fy + params.Ppy}, true
}

// CameraMatrix returns
//
//	[[fx 0 ppx],
//	 [0 fy ppy],
//	 [0 0  1]].
func (params *PinholeCameraIntrinsics) CameraMatrix() mgl64.Mat3 {
	return mgl64.Mat3FromRows(
		mgl64.Vec3{params.Fx, 0, params.Ppx},
		mgl64.Vec3{0, params.Fy, params.Ppy},
		mgl64.Vec3{0, 0, 1},
	)
}
