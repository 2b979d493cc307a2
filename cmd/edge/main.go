package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainbot-robotics/brainbot/internal/camera"
	"github.com/brainbot-robotics/brainbot/internal/capability"
	"github.com/brainbot-robotics/brainbot/internal/capability/fake"
	"github.com/brainbot-robotics/brainbot/internal/config"
	"github.com/brainbot-robotics/brainbot/internal/edge"
	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/rpc"
)

func main() {
	var (
		configPath  string
		noCalibrate bool
	)

	root := &cobra.Command{
		Use:   "edge",
		Short: "brainbot edge control-loop process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOpts{configPath: configPath, noCalibrate: noCalibrate})
		},
	}

	root.Flags().StringVar(&configPath, "config", "edge.yaml", "path to edge config")
	root.Flags().BoolVar(&noCalibrate, "no-calibrate", false, "skip calibration on connect, overriding calibrate_on_start")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOpts struct {
	configPath  string
	noCalibrate bool
}

func run(opts runOpts) error {
	exitCode, err := runInner(opts)
	if exitCode != 0 {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode)
	}
	return nil
}

func runInner(opts runOpts) (int, error) {
	cfg, err := config.LoadEdgeConfig(opts.configPath)
	if err != nil {
		return 1, fmt.Errorf("load config: %w", err)
	}

	// No concrete hardware RobotController ships with this module (§1
	// non-goal): fake.Robot stands in here as the documented demo driver.
	// A real deployment supplies its own capability.RobotController and
	// wires it in place of this call.
	robot := fake.NewRobot(nil)

	calibrate := cfg.CalibrateOnStart && !opts.noCalibrate
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := robot.Connect(ctx, calibrate); err != nil {
		return 1, fmt.Errorf("connect robot: %w", err)
	}
	defer robot.Disconnect(context.Background())

	client, err := rpc.NewClient("tcp", fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port), cfg.Network.APIToken)
	if err != nil {
		return 1, fmt.Errorf("build rpc client: %w", err)
	}
	client.SendTimeout = cfg.Network.Timeout()
	client.RecvTimeout = cfg.Network.Timeout()
	defer client.Close()

	var publisher edge.CameraPublisher
	var stream *camera.Stream
	if len(cfg.Camera.Sources) > 0 {
		sources := make([]camera.Source, len(cfg.Camera.Sources))
		for i, src := range cfg.Camera.Sources {
			var interval time.Duration
			if src.FPS > 0 {
				interval = secondsPerFrame(src.FPS)
			}
			sources[i] = camera.Source{Name: src.Name, Path: src.Path, Quality: src.Quality, MinInterval: interval}
		}
		s, err := camera.NewStream(sources, cfg.Camera.Quality, 8)
		if err != nil {
			return 1, fmt.Errorf("build camera stream: %w", err)
		}
		stream = s
		publisher = s
	}

	loopCfg := edge.Config{
		RateHz:           cfg.LoopHz,
		MaxMissedActions: cfg.MaxMissedActions,
		FallbackAction:   cfg.FallbackAction,
		TargetHeight:     cfg.ObservationPreprocess.TargetHeight,
		TargetWidth:      cfg.ObservationPreprocess.TargetWidth,
	}
	if cfg.ActionFilter.Type == "median" {
		loopCfg.ActionFilter = edge.NewActionFilter(cfg.ActionFilter.WindowSize, cfg.ActionFilter.BlendAlpha)
	}

	loop := edge.NewLoop(robot, client, publisher, loopCfg)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- loop.Run(ctx) }()

	if stream != nil {
		addr := fmt.Sprintf("%s:%d", cfg.Camera.Host, cfg.Camera.Port)
		go func() {
			if err := stream.Run(ctx, addr); err != nil {
				logger.Warn("edge: camera stream exited", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("edge: signal received, shutting down", "signal", sig)
		cancel()
		<-runErrCh
		if sig == os.Interrupt {
			return 130, nil
		}
		return 0, nil

	case err := <-runErrCh:
		cancel()
		if err != nil {
			return 1, fmt.Errorf("edge loop: %w", err)
		}
		return 0, nil
	}
}

func secondsPerFrame(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / fps)
}

var _ capability.RobotController = (*fake.Robot)(nil)
