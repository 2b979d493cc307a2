package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainbot-robotics/brainbot/internal/capability/fake"
	"github.com/brainbot-robotics/brainbot/internal/capability/process"
	"github.com/brainbot-robotics/brainbot/internal/config"
	"github.com/brainbot-robotics/brainbot/internal/dispatcher"
	"github.com/brainbot-robotics/brainbot/internal/history"
	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/orchestrator"
	"github.com/brainbot-robotics/brainbot/internal/provider"
	"github.com/brainbot-robotics/brainbot/internal/rpc"
)

func main() {
	var (
		configPath     string
		modeDispatcher string
		socketNetwork  string
		socketAddress  string
		historyPath    string
	)

	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "brainbot orchestrator process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOpts{
				configPath:     configPath,
				modeDispatcher: modeDispatcher,
				socketNetwork:  socketNetwork,
				socketAddress:  socketAddress,
				historyPath:    historyPath,
			})
		},
	}

	root.Flags().StringVar(&configPath, "config", "orchestrator.yaml", "path to orchestrator config")
	root.Flags().StringVar(&modeDispatcher, "mode-dispatcher", "cli", "mode-dispatch channel: cli or socket")
	root.Flags().StringVar(&socketNetwork, "mode-dispatcher-network", "unix", "network for the socket mode dispatcher (unix or tcp)")
	root.Flags().StringVar(&socketAddress, "mode-dispatcher-address", "/tmp/brainbot-orchestrator.sock", "address for the socket mode dispatcher")
	root.Flags().StringVar(&historyPath, "history-db", "orchestrator-history.db", "path to the debugging-ledger sqlite database")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOpts struct {
	configPath     string
	modeDispatcher string
	socketNetwork  string
	socketAddress  string
	historyPath    string
}

// run executes runInner and, for a non-zero exit code, prints the error and
// exits the process with that code. runInner itself returns the exit code
// rather than calling os.Exit, so the wiring stays testable.
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
	cfg, err := config.LoadOrchestratorConfig(opts.configPath)
	if err != nil {
		return 1, fmt.Errorf("load config: %w", err)
	}

	hist, err := history.Open(opts.historyPath)
	if err != nil {
		return 1, fmt.Errorf("open history ledger: %w", err)
	}
	defer hist.Close()

	orch := orchestrator.New(cfg.DefaultMode)
	orch.SetHistory(hist)

	aiProvider, dataProvider, teleopKeys := registerProviders(orch, cfg, hist)

	srv, err := rpc.NewServer()
	if err != nil {
		return 1, fmt.Errorf("build rpc server: %w", err)
	}
	srv.Token = cfg.Network.APIToken
	orch.RegisterEndpoints(srv)

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port))
	if err != nil {
		return 1, fmt.Errorf("listen on %s:%d: %w", cfg.Network.Host, cfg.Network.Port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ctx, ln) }()

	dispCfg := dispatcher.Config{TeleopKeys: teleopKeys}
	if aiProvider != nil {
		dispCfg.AI = aiProvider
	}
	if dataProvider != nil {
		dispCfg.Data = dataProvider
	}
	disp := dispatcher.New(orch, dispCfg)
	go disp.Run(ctx)

	src, err := buildLineSource(opts)
	if err != nil {
		return 1, fmt.Errorf("build mode dispatcher: %w", err)
	}
	lineSourceErrCh := make(chan error, 1)
	go func() { lineSourceErrCh <- src.Run(ctx, disp.Submit) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("orchestrator: signal received, shutting down", "signal", sig)
		handle := orch.InitiateShutdown()
		status := handle.Wait(2 * time.Second)
		orch.RecordShutdownResult(status)
		orch.ShutdownActive(context.Background())
		cancel()
		if sig == os.Interrupt {
			return 130, nil
		}
		return 0, nil

	case err := <-serveErrCh:
		cancel()
		if err != nil {
			return 1, fmt.Errorf("rpc server: %w", err)
		}
		return 0, nil

	case err := <-lineSourceErrCh:
		cancel()
		if err != nil {
			return 1, fmt.Errorf("mode dispatcher line source: %w", err)
		}
		return 0, nil
	}
}

func buildLineSource(opts runOpts) (dispatcher.LineSource, error) {
	switch opts.modeDispatcher {
	case "cli":
		return dispatcher.NewCLISource(os.Stdin, os.Stdout), nil
	case "socket":
		return &dispatcher.SocketSource{Network: opts.socketNetwork, Address: opts.socketAddress}, nil
	default:
		return nil, fmt.Errorf("unrecognized --mode-dispatcher %q (want cli or socket)", opts.modeDispatcher)
	}
}

// registerProviders builds and registers the idle/ai/teleop/data providers
// named by cfg, returning the concrete AI/DataCollection instances (for
// dispatcher wiring) and the alias->provider-key map for teleop lookups.
// Concrete hardware teleoperators have no production implementation in this
// module (§1 non-goal); local teleops are registered against fake.Teleop as
// an explicit placeholder (see DESIGN.md).
func registerProviders(orch *orchestrator.Orchestrator, cfg *config.OrchestratorConfig, hist *history.Store) (*provider.AI, *provider.DataCollection, map[string]string) {
	orch.Register("idle", provider.NewIdle(nil))

	var aiProvider *provider.AI
	if cfg.AI.Host != "" {
		client, err := rpc.NewClient("tcp", fmt.Sprintf("%s:%d", cfg.AI.Host, cfg.AI.Port), cfg.AI.APIToken)
		if err != nil {
			logger.Error("orchestrator: failed to build AI client", "err", err)
		} else {
			client.SendTimeout = cfg.AI.Timeout()
			client.RecvTimeout = cfg.AI.Timeout()

			var obsAdapter provider.ObservationAdapterFunc
			var actAdapter provider.ActionAdapterFunc
			var opts []provider.AIOption
			if cfg.AI.ModalityConfigPath != "" {
				if doc, err := os.ReadFile(cfg.AI.ModalityConfigPath); err != nil {
					logger.Warn("orchestrator: failed to read modality config", "err", err)
				} else if modCfg, err := provider.ParseGR00TModalityConfig(string(doc)); err != nil {
					logger.Warn("orchestrator: failed to parse modality config", "err", err)
				} else {
					obsAdapter = provider.GR00TObservationAdapter(modCfg)
					actAdapter = provider.GR00TActionAdapter(modCfg)
					opts = append(opts, provider.WithFullObservation(true, true))
				}
			}
			opts = append(opts, provider.WithStartupTimeout(cfg.AI.StartupTimeout()))
			aiProvider = provider.NewAI(client, cfg.AI.InstructionKey, cfg.AI.ActionHorizon, obsAdapter, actAdapter, opts...)
			orch.Register("ai", aiProvider)
		}
	}

	supervisor := process.New(nil)
	teleopProviders := make(map[string]orchestrator.Provider, len(cfg.Teleops))
	teleopKeys := make(map[string]string, len(cfg.Teleops))
	for name, entry := range cfg.Teleops {
		key := "teleop:" + name
		var p orchestrator.Provider
		switch entry.Mode {
		case "remote":
			client, err := rpc.NewClient("tcp", fmt.Sprintf("%s:%d", entry.Host, entry.Port), entry.APIToken)
			if err != nil {
				logger.Error("orchestrator: failed to build remote teleop client", "teleop", name, "err", err)
				continue
			}
			client.SendTimeout = entry.Timeout()
			client.RecvTimeout = entry.Timeout()
			p = provider.NewRemoteTeleop(client, supervisor, name, nil)
		default:
			// No concrete hardware Teleoperator ships with this module
			// (§1 non-goal): fake.Teleop stands in as the local-mode
			// driver until a real one is wired in for a given deployment.
			p = provider.NewLocalTeleop(fake.NewTeleop(), nil, nil)
		}
		teleopProviders[key] = p
		teleopKeys[name] = key
		orch.Register(key, p)
	}

	var dataProvider *provider.DataCollection
	if cfg.Data.Robot != "" {
		teleop, ok := teleopProviders["teleop:"+cfg.Data.Teleop]
		if !ok {
			// No hardware teleop configured for data collection: fall back
			// to an idle teleop source so the episode pipeline still runs
			// end to end against fake.Sink for smoke-testing.
			teleop = provider.NewLocalTeleop(fake.NewTeleop(), nil, nil)
		}
		sink := fake.NewSink(nil)
		dataProvider = provider.NewDataCollection(teleop, sink, provider.DataCollectionConfig{
			NumEpisodes: cfg.Data.NumEpisodes,
			EpisodeSecs: cfg.Data.EpisodeSecs,
			ResetSecs:   cfg.Data.ResetSecs,
			TaskLabel:   cfg.Data.TaskLabel,
		})
		dataProvider.SetHistory(hist)
		orch.Register("data", dataProvider)
	}

	return aiProvider, dataProvider, teleopKeys
}
