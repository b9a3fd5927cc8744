package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/emvs/dsi"
	"go.viam.com/emvs/rimage/transform"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestDefaultIsValid(t *testing.T) {
	conf := Default()
	test.That(t, conf.Validate("default"), test.ShouldBeNil)
	test.That(t, conf.DSI.DimZ, test.ShouldEqual, 100)
	test.That(t, conf.PacketSize, test.ShouldEqual, 1024)
	test.That(t, conf.DepthMap.AdaptiveThresholdKernelSize, test.ShouldEqual, 5)
	test.That(t, conf.DepthMap.MedianFilterSize, test.ShouldEqual, 15)
	test.That(t, conf.PointCloud.MinNumNeighbors, test.ShouldEqual, 3)
	test.That(t, conf.PointCloud.RadiusSearch, test.ShouldEqual, 0.05)

	_, err := conf.CameraModel(nil)
	test.That(t, err, test.ShouldNotBeNil)
	cam, err := conf.CameraModel(&transform.PinholeCameraIntrinsics{Width: 10, Height: 10, Fx: 5, Fy: 5, Ppx: 5, Ppy: 5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.ImageWidth(), test.ShouldEqual, 10)
}

func TestReadYAML(t *testing.T) {
	path := writeFile(t, "emvs.yaml", `
dsi:
  min_depth: 1
  max_depth: 4
  dim_z: 50
  spacing: linear
packet_size: 512
depth_map:
  median_filter_size: 7
camera:
  width_px: 240
  height_px: 180
  fx: 200
  fy: 201
  ppx: 120
  ppy: 90
  distortion:
    type: brown_conrady
    parameters: [0.1, -0.05, 0, 0.001, 0.002]
`)
	conf, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.DSI.Spacing, test.ShouldEqual, dsi.LinearSpacing)
	test.That(t, conf.DSI.DimZ, test.ShouldEqual, 50)
	test.That(t, conf.PacketSize, test.ShouldEqual, 512)
	// Unset fields keep their defaults.
	test.That(t, conf.DepthMap.AdaptiveThresholdKernelSize, test.ShouldEqual, 5)
	test.That(t, conf.DepthMapOptions().MedianFilterSize, test.ShouldEqual, 7)
	test.That(t, conf.MapperOptions().PacketSize, test.ShouldEqual, 512)
	test.That(t, conf.Shape().MaxDepth, test.ShouldEqual, 4.0)
	test.That(t, conf.PointCloudOptions().Variance, test.ShouldEqual, 0.1)

	cam, err := conf.CameraModel(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Fy, test.ShouldEqual, 201.0)
	test.That(t, cam.Distortion.ModelType(), test.ShouldEqual, transform.BrownConradyDistortionType)

	out, err := conf.WriteYAML()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldContainSubstring, "width_px: 240")
	test.That(t, string(out), test.ShouldContainSubstring, "packet_size: 512")
}

func TestReadJSON(t *testing.T) {
	path := writeFile(t, "emvs.json", `{"dsi": {"min_depth": 0.5, "max_depth": 2, "dim_z": 20},
		"camera": {"width_px": 64, "height_px": 48, "fx": 50, "fy": 50, "ppx": 32, "ppy": 24}}`)
	conf, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Camera.Width, test.ShouldEqual, 64)
	test.That(t, conf.DSI.Spacing, test.ShouldEqual, dsi.InverseSpacing)

	_, err = Read(writeFile(t, "emvs.toml", ""))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Read(writeFile(t, "bad.json", "{"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateCollectsEveryError(t *testing.T) {
	conf := Default()
	conf.DSI.MinDepth = 0
	conf.DSI.DimZ = 0
	conf.DSI.Spacing = "log"
	conf.PacketSize = 0
	conf.DepthMap.AdaptiveThresholdKernelSize = 4
	conf.DepthMap.MedianFilterSize = 0
	conf.Camera = &CameraConfig{
		PinholeCameraIntrinsics: transform.PinholeCameraIntrinsics{Width: 10, Height: 10, Fx: 0, Fy: 5},
		Distortion:              &DistortionConfig{Type: "fisheye"},
	}

	err := conf.Validate("emvs.yaml")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, len(multierr.Errors(err)), test.ShouldEqual, 8)
	test.That(t, err.Error(), test.ShouldContainSubstring, "emvs.yaml")
	test.That(t, err.Error(), test.ShouldContainSubstring, "dsi.dim_z")
	test.That(t, err.Error(), test.ShouldContainSubstring, "dsi.spacing")
	test.That(t, err.Error(), test.ShouldContainSubstring, "median_filter_size")
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera.distortion")

	path := writeFile(t, "bad.yaml", "dsi:\n  max_depth: 0.1\n")
	_, err = Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dsi.max_depth")
}
