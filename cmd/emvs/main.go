// Package main is a command line front end that runs mapping sessions on synthetic scenes.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/emvs/config"
	"go.viam.com/emvs/dsi"
	"go.viam.com/emvs/logging"
	"go.viam.com/emvs/mapper"
	"go.viam.com/emvs/pointcloud"
	"go.viam.com/emvs/rimage"
	"go.viam.com/emvs/simulation"
	"go.viam.com/emvs/spatialmath"
)

const (
	flagConfig    = "config"
	flagDebug     = "debug"
	flagDepth     = "depth"
	flagSeed      = "seed"
	flagStripes   = "stripes"
	flagDepthOut  = "depth-out"
	flagConfOut   = "confidence-out"
	flagPCDOut    = "pcd-out"
	flagPCDFormat = "pcd-format"
	flagWorld     = "world"
	flagPlanes    = "planes"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var logger logging.Logger

	app := &cli.App{
		Name:  "emvs",
		Usage: "event-based multi-view stereo mapping",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (yaml or json)",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("emvs")
			} else {
				logger = logging.NewLogger("emvs")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "simulate",
				Usage: "map a textured plane seen by a sliding camera",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: flagDepth, Value: 2, Usage: "depth of the plane in metres"},
					&cli.Int64Flag{Name: flagSeed, Value: 1, Usage: "seed for the stripe layout"},
					&cli.IntFlag{Name: flagStripes, Value: 10, Usage: "number of stripe edges"},
					&cli.PathFlag{Name: flagDepthOut, Usage: "write the colourised depth map to `FILE`"},
					&cli.PathFlag{Name: flagConfOut, Usage: "write the normalized vote confidence to `FILE`"},
					&cli.PathFlag{Name: flagPCDOut, Usage: "write the point cloud to `FILE`"},
					&cli.StringFlag{Name: flagPCDFormat, Value: "binary", Usage: "pcd data format: ascii, binary or binary_compressed"},
					&cli.BoolFlag{Name: flagWorld, Usage: "express the point cloud in the world frame"},
				},
				Action: func(c *cli.Context) error {
					return simulateAction(c, logger)
				},
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: flagPlanes, Usage: "also print the depth planes of the DSI"},
				},
				Action: configAction,
			},
		},
	}
	return app
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path)
}

func configAction(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := conf.WriteYAML()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(c.App.Writer, string(out)); err != nil {
		return err
	}
	if !c.Bool(flagPlanes) {
		return nil
	}
	dv, err := dsi.NewDepthVector(conf.DSI.Spacing, conf.DSI.MinDepth, conf.DSI.MaxDepth, conf.DSI.DimZ)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, dv.String())
	return err
}

func simulateAction(c *cli.Context, logger logging.Logger) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	pcdType, err := pointcloud.ParsePCDType(c.String(flagPCDFormat))
	if err != nil {
		return err
	}

	sim := simulation.DefaultPlaneScene(c.Float64(flagDepth))
	sim.Seed = c.Int64(flagSeed)
	sim.Stripes = c.Int(flagStripes)
	// one packet per camera position
	sim.EventsPerStep = conf.PacketSize
	if conf.Camera != nil {
		intrinsics := conf.Camera.PinholeCameraIntrinsics
		sim.Camera = &intrinsics
		if conf.Camera.Distortion != nil {
			logger.Warn("the synthetic scene has no lens distortion; ignoring the configured model")
			conf.Camera.Distortion = nil
		}
	}
	scene, err := sim.Generate()
	if err != nil {
		return errors.Wrap(err, "generating scene")
	}
	logger.Infow("generated scene",
		"events", len(scene.Events), "depth", scene.Depth, "baseline", scene.Baseline, "edges", scene.EdgeColumns)

	cam, err := conf.CameraModel(sim.Camera)
	if err != nil {
		return err
	}
	m, err := mapper.New(cam, conf.Shape(), conf.MapperOptions(), logger.Sublogger("mapper"))
	if err != nil {
		return err
	}
	m.InitializeDSI(scene.Reference)
	if err := m.UpdateDSI(scene.Events, scene.Trajectory); err != nil {
		return err
	}
	dm, err := m.DepthMapFromDSI(conf.DepthMapOptions())
	if err != nil {
		return err
	}
	if err := reportDepthError(dm, scene.Depth, logger); err != nil {
		return err
	}

	var outputs errgroup.Group
	if out := c.Path(flagDepthOut); out != "" {
		outputs.Go(func() error {
			img, err := rimage.ColorizeDepth(dm.Depth, dm.Mask, m.DepthVector().MinDepth(), m.DepthVector().MaxDepth())
			if err != nil {
				return err
			}
			if err := rimage.WriteImageToFile(img, out); err != nil {
				return err
			}
			logger.Infow("wrote depth map", "path", out)
			return nil
		})
	}
	if out := c.Path(flagConfOut); out != "" {
		outputs.Go(func() error {
			if err := rimage.WriteImageToFile(rimage.NormalizeToGray(dm.Confidence), out); err != nil {
				return err
			}
			logger.Infow("wrote confidence map", "path", out)
			return nil
		})
	}
	if out := c.Path(flagPCDOut); out != "" {
		world := c.Bool(flagWorld)
		outputs.Go(func() error {
			var cloud *pointcloud.BasicPointCloud
			var err error
			// the viewpoint is the reference view expressed in the frame of the cloud
			viewpoint := spatialmath.NewZeroPose()
			if world {
				cloud, err = m.PointCloudInWorld(dm, conf.PointCloudOptions())
				viewpoint = m.ReferencePose()
			} else {
				cloud, err = m.PointCloud(dm, conf.PointCloudOptions())
			}
			if err != nil {
				return err
			}
			if err := pointcloud.WriteToPCDFile(cloud, viewpoint, out, pcdType); err != nil {
				return err
			}
			logger.Infow("wrote point cloud", "path", out, "points", cloud.Size())
			return nil
		})
	}
	return outputs.Wait()
}

// reportDepthError logs how far the masked depths are from the plane.
func reportDepthError(dm *mapper.DepthMap, truth float64, logger logging.Logger) error {
	var errs stats.Float64Data
	for y := 0; y < dm.Depth.Height(); y++ {
		for x := 0; x < dm.Depth.Width(); x++ {
			if dm.Mask.GrayAt(x, y).Y != 0 {
				errs = append(errs, math.Abs(float64(dm.Depth.At(x, y))-truth))
			}
		}
	}
	if len(errs) == 0 {
		logger.Warn("no pixel passed the confidence threshold")
		return nil
	}
	mean, err := errs.Mean()
	if err != nil {
		return err
	}
	median, err := errs.Median()
	if err != nil {
		return err
	}
	p90, err := errs.Percentile(90)
	if err != nil {
		return err
	}
	logger.Infow("depth error",
		"valid_pixels", len(errs),
		"mean", mean,
		"median", median,
		"p90", p90,
		"mean_relative", mean/truth)
	return nil
}
