// Package config reads and validates the settings of a mapping session.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/emvs/dsi"
	"go.viam.com/emvs/mapper"
	"go.viam.com/emvs/rimage/transform"
)

// DSIConfig describes the voxel grid.
type DSIConfig struct {
	MinDepth float64         `json:"min_depth" yaml:"min_depth"`
	MaxDepth float64         `json:"max_depth" yaml:"max_depth"`
	DimX     int             `json:"dim_x,omitempty" yaml:"dim_x,omitempty"`
	DimY     int             `json:"dim_y,omitempty" yaml:"dim_y,omitempty"`
	DimZ     int             `json:"dim_z" yaml:"dim_z"`
	Spacing  dsi.SpacingKind `json:"spacing,omitempty" yaml:"spacing,omitempty"`
}

// DepthMapConfig mirrors mapper.DepthMapOptions.
type DepthMapConfig struct {
	AdaptiveThresholdKernelSize int     `json:"adaptive_threshold_kernel_size" yaml:"adaptive_threshold_kernel_size"`
	AdaptiveThresholdC          float64 `json:"adaptive_threshold_c" yaml:"adaptive_threshold_c"`
	MedianFilterSize            int     `json:"median_filter_size" yaml:"median_filter_size"`
	BorderSize                  int     `json:"border_size,omitempty" yaml:"border_size,omitempty"`
}

// PointCloudConfig mirrors mapper.PointCloudOptions.
type PointCloudConfig struct {
	RadiusSearch    float64 `json:"radius_search" yaml:"radius_search"`
	MinNumNeighbors int     `json:"min_num_neighbors" yaml:"min_num_neighbors"`
	Variance        float64 `json:"variance" yaml:"variance"`
}

// DistortionConfig names a lens distortion model and its coefficients.
type DistortionConfig struct {
	Type       transform.DistortionType `json:"type" yaml:"type"`
	Parameters []float64                `json:"parameters" yaml:"parameters"`
}

// CameraConfig is the event camera's calibration.
type CameraConfig struct {
	transform.PinholeCameraIntrinsics `yaml:",inline"`
	Distortion                        *DistortionConfig `json:"distortion,omitempty" yaml:"distortion,omitempty"`
}

// Config is everything needed to run a mapping session.
type Config struct {
	DSI               DSIConfig        `json:"dsi" yaml:"dsi"`
	PacketSize        int              `json:"packet_size" yaml:"packet_size"`
	ParallelMinEvents int              `json:"parallel_min_events" yaml:"parallel_min_events"`
	DepthMap          DepthMapConfig   `json:"depth_map" yaml:"depth_map"`
	PointCloud        PointCloudConfig `json:"point_cloud" yaml:"point_cloud"`
	Camera            *CameraConfig    `json:"camera,omitempty" yaml:"camera,omitempty"`
}

// Default returns the usual settings with no camera.
func Default() *Config {
	dm := mapper.DefaultDepthMapOptions()
	pc := mapper.DefaultPointCloudOptions()
	return &Config{
		DSI: DSIConfig{
			MinDepth: 0.5,
			MaxDepth: 5.0,
			DimZ:     100,
			Spacing:  dsi.InverseSpacing,
		},
		PacketSize:        mapper.DefaultPacketSize,
		ParallelMinEvents: mapper.DefaultParallelMinEvents,
		DepthMap: DepthMapConfig{
			AdaptiveThresholdKernelSize: dm.AdaptiveThresholdKernelSize,
			AdaptiveThresholdC:          dm.AdaptiveThresholdC,
			MedianFilterSize:            dm.MedianFilterSize,
			BorderSize:                  dm.BorderSize,
		},
		PointCloud: PointCloudConfig{
			RadiusSearch:    pc.RadiusSearch,
			MinNumNeighbors: pc.MinNumNeighbors,
			Variance:        pc.Variance,
		},
	}
}

// Read decodes a YAML or JSON (by extension) file on top of the defaults and validates it.
func Read(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	conf := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, conf)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, conf)
	default:
		return nil, errors.Errorf("do not know how to read config %q", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing config %q", path)
	}
	if err := conf.Validate(filepath.Base(path)); err != nil {
		return nil, err
	}
	return conf, nil
}

// WriteYAML encodes the config as YAML.
func (conf *Config) WriteYAML() ([]byte, error) {
	return yaml.Marshal(conf)
}

// Validate reports every invalid field, prefixed with path.
func (conf *Config) Validate(path string) error {
	var err error
	fieldErr := func(field, format string, args ...interface{}) {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Wrap(errors.Errorf(format, args...), field)))
	}

	if conf.DSI.DimZ < 1 {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "dsi.dim_z"))
	}
	if !(conf.DSI.MinDepth > 0) {
		fieldErr("dsi.min_depth", "must be positive, got %v", conf.DSI.MinDepth)
	}
	if !(conf.DSI.MaxDepth > conf.DSI.MinDepth) {
		fieldErr("dsi.max_depth", "must exceed min_depth %v, got %v", conf.DSI.MinDepth, conf.DSI.MaxDepth)
	}
	if conf.DSI.DimX < 0 || conf.DSI.DimY < 0 {
		fieldErr("dsi", "dim_x and dim_y must not be negative, got %d and %d", conf.DSI.DimX, conf.DSI.DimY)
	}
	if conf.DSI.Spacing != "" && conf.DSI.Spacing != dsi.InverseSpacing && conf.DSI.Spacing != dsi.LinearSpacing {
		fieldErr("dsi.spacing", "unknown spacing %q", conf.DSI.Spacing)
	}
	if conf.PacketSize < 1 {
		fieldErr("packet_size", "must be positive, got %d", conf.PacketSize)
	}
	if conf.ParallelMinEvents < 0 {
		fieldErr("parallel_min_events", "must not be negative, got %d", conf.ParallelMinEvents)
	}
	if k := conf.DepthMap.AdaptiveThresholdKernelSize; k < 3 || k%2 == 0 {
		fieldErr("depth_map.adaptive_threshold_kernel_size", "must be odd and at least 3, got %d", k)
	}
	if k := conf.DepthMap.MedianFilterSize; k < 1 || k%2 == 0 {
		fieldErr("depth_map.median_filter_size", "must be odd and positive, got %d", k)
	}
	if conf.DepthMap.BorderSize < 0 {
		fieldErr("depth_map.border_size", "must not be negative, got %d", conf.DepthMap.BorderSize)
	}
	if conf.PointCloud.RadiusSearch < 0 {
		fieldErr("point_cloud.radius_search", "must not be negative, got %v", conf.PointCloud.RadiusSearch)
	}
	if conf.PointCloud.Variance < 0 {
		fieldErr("point_cloud.variance", "must not be negative, got %v", conf.PointCloud.Variance)
	}
	if conf.Camera != nil {
		if cerr := conf.Camera.CheckValid(); cerr != nil {
			err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Wrap(cerr, "camera")))
		}
		if d := conf.Camera.Distortion; d != nil {
			if d.Type == "" {
				err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "camera.distortion.type"))
			} else if _, derr := transform.NewDistorter(d.Type, d.Parameters); derr != nil {
				err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Wrap(derr, "camera.distortion")))
			}
		}
	}
	return err
}

// Shape returns the DSI shape for the mapper.
func (conf *Config) Shape() mapper.ShapeDSI {
	return mapper.ShapeDSI{
		DimX:     conf.DSI.DimX,
		DimY:     conf.DSI.DimY,
		DimZ:     conf.DSI.DimZ,
		MinDepth: conf.DSI.MinDepth,
		MaxDepth: conf.DSI.MaxDepth,
		Spacing:  conf.DSI.Spacing,
	}
}

// MapperOptions returns the event processing options.
func (conf *Config) MapperOptions() mapper.Options {
	return mapper.Options{PacketSize: conf.PacketSize, ParallelMinEvents: conf.ParallelMinEvents}
}

// DepthMapOptions returns the depth extraction options.
func (conf *Config) DepthMapOptions() mapper.DepthMapOptions {
	return mapper.DepthMapOptions{
		AdaptiveThresholdKernelSize: conf.DepthMap.AdaptiveThresholdKernelSize,
		AdaptiveThresholdC:          conf.DepthMap.AdaptiveThresholdC,
		MedianFilterSize:            conf.DepthMap.MedianFilterSize,
		BorderSize:                  conf.DepthMap.BorderSize,
	}
}

// PointCloudOptions returns the point generation options.
func (conf *Config) PointCloudOptions() mapper.PointCloudOptions {
	return mapper.PointCloudOptions{
		RadiusSearch:    conf.PointCloud.RadiusSearch,
		MinNumNeighbors: conf.PointCloud.MinNumNeighbors,
		Variance:        conf.PointCloud.Variance,
	}
}

// CameraModel builds the configured camera, or fallback when none is configured.
func (conf *Config) CameraModel(fallback *transform.PinholeCameraIntrinsics) (*transform.PinholeCameraModel, error) {
	if conf.Camera == nil {
		if fallback == nil {
			return nil, errors.New("no camera configured")
		}
		return transform.NewPinholeCameraModel(fallback, nil)
	}
	var distortion transform.Distorter
	if d := conf.Camera.Distortion; d != nil {
		var err error
		if distortion, err = transform.NewDistorter(d.Type, d.Parameters); err != nil {
			return nil, err
		}
	}
	intrinsics := conf.Camera.PinholeCameraIntrinsics
	return transform.NewPinholeCameraModel(&intrinsics, distortion)
}
