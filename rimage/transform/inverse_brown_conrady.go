package transform

// InverseBrownConrady applies the inverse of the Brown-Conrady distortion model.
// Given distorted points, it computes the corresponding undistorted points using
// an iterative Newton-Raphson method.
type InverseBrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// CheckValid checks if the fields for InverseBrownConrady have valid inputs.
func (ibc *InverseBrownConrady) CheckValid() error {
	if ibc == nil {
		return InvalidDistortionError("InverseBrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// NewInverseBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewInverseBrownConrady(inp []float64) (*InverseBrownConrady, error) {
	p, err := fillDistortionParameters(inp)
	if err != nil {
		return nil, err
	}
	return &InverseBrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

// Inverse returns the forward Brown-Conrady model.
func (ibc *InverseBrownConrady) Inverse() Distorter {
	return &BrownConrady{ibc.RadialK1, ibc.RadialK2, ibc.RadialK3, ibc.TangentialP1, ibc.TangentialP2}
}

// ModelType returns the type of distortion model.
func (ibc *InverseBrownConrady) ModelType() DistortionType {
	return InverseBrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (ibc *InverseBrownConrady) Parameters() []float64 {
	if ibc == nil {
		return []float64{}
	}
	return []float64{ibc.RadialK1, ibc.RadialK2, ibc.RadialK3, ibc.TangentialP1, ibc.TangentialP2}
}

// Transform maps distorted normalized coordinates (xd, yd) to undistorted ones by solving the
// forward BrownConrady model with Newton-Raphson, starting from the distorted point.
func (ibc *InverseBrownConrady) Transform(xd, yd float64) (float64, float64) {
	if ibc == nil {
		return xd, yd
	}
	const (
		maxIterations = 20
		tolerance     = 1e-10
	)
	k1, k2, k3 := ibc.RadialK1, ibc.RadialK2, ibc.RadialK3
	p1, p2 := ibc.TangentialP1, ibc.TangentialP2
	forward := BrownConrady{k1, k2, k3, p1, p2}

	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		xEst, yEst := forward.Transform(xu, yu)
		errX, errY := xEst-xd, yEst-yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		r2 := xu*xu + yu*yu
		radDist := 1.0 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
		dRad := 2.0 * (k1 + 2.0*k2*r2 + 3.0*k3*r2*r2)

		// Jacobian of the forward model.
		j00 := radDist + xu*xu*dRad + 2.0*p1*yu + 6.0*p2*xu
		j01 := xu*yu*dRad + 2.0*p1*xu + 2.0*p2*yu
		j10 := xu*yu*dRad + 2.0*p2*yu + 2.0*p1*xu
		j11 := radDist + yu*yu*dRad + 2.0*p2*xu + 6.0*p1*yu

		det := j00*j11 - j01*j10
		if det == 0 {
			break
		}
		xu -= (j11*errX - j01*errY) / det
		yu -= (-j10*errX + j00*errY) / det
	}
	return xu, yu
}
