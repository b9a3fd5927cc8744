package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/emvs/pointcloud"
	"go.viam.com/emvs/rimage"
)

func TestConfigCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	test.That(t, app.Run([]string{"emvs", "config", "--planes"}), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "dim_z: 100")
	test.That(t, out.String(), test.ShouldContainSubstring, "100 inverse planes")

	cfg := filepath.Join(t.TempDir(), "emvs.yaml")
	test.That(t, os.WriteFile(cfg, []byte("dsi:\n  dim_z: 0\n"), 0o600), test.ShouldBeNil)
	test.That(t, newApp().Run([]string{"emvs", "--config", cfg, "config"}), test.ShouldNotBeNil)
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "emvs.yaml")
	test.That(t, os.WriteFile(cfg, []byte("dsi:\n  min_depth: 1\n  max_depth: 4\n  dim_z: 100\n"), 0o600), test.ShouldBeNil)
	depthOut := filepath.Join(dir, "depth.png")
	pcdOut := filepath.Join(dir, "cloud.pcd")
	confOut := filepath.Join(dir, "confidence.ppm")

	err := newApp().Run([]string{
		"emvs", "-c", cfg, "simulate",
		"--depth", "2", "--depth-out", depthOut, "--confidence-out", confOut, "--pcd-out", pcdOut, "--pcd-format", "ascii", "--world",
	})
	test.That(t, err, test.ShouldBeNil)

	_, err = os.Stat(depthOut)
	test.That(t, err, test.ShouldBeNil)
	conf, err := rimage.ReadImageFromFile(confOut)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Bounds().Dx(), test.ShouldEqual, 240)
	cloud, _, err := pointcloud.ReadPCDFile(pcdOut)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldBeGreaterThan, 0)
	test.That(t, pointcloud.CloudCentroid(cloud).Z, test.ShouldAlmostEqual, 2, 0.1)

	err = newApp().Run([]string{"emvs", "simulate", "--pcd-format", "lzf"})
	test.That(t, err, test.ShouldNotBeNil)
}
