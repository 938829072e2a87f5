// cmd/viewer/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/go-quadsim/pkg/audio"
	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/network"
	"github.com/opd-ai/go-quadsim/pkg/physics"
	"github.com/opd-ai/go-quadsim/pkg/render"
	engorender "github.com/opd-ai/go-quadsim/pkg/render/engo"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file (local mode)")
	renderer := flag.String("renderer", "terminal", "Renderer type: 'terminal' or 'engo'")
	remote := flag.String("remote", "", "Stream URL, e.g. ws://localhost:4680/ws; empty runs the simulation locally")
	format := flag.String("format", "msgpack", "Stream format: 'msgpack' or 'json' (remote mode)")
	withAudio := flag.Bool("audio", false, "Click on contacts")
	showCells := flag.Bool("cells", true, "Start with the quadtree overlay visible")
	logPath := flag.String("log", "", "Write logs to this file (terminal renderer logs nowhere by default)")
	width := flag.Int("width", 1024, "Window width (Engo only)")
	height := flag.Int("height", 768, "Window height (Engo only)")
	flag.Parse()

	logger, closeLog, err := newLogger(*renderer, *logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(options{
		configPath: *configPath,
		renderer:   *renderer,
		remote:     *remote,
		format:     *format,
		audio:      *withAudio,
		view:       render.View{ShowCells: *showCells},
		width:      *width,
		height:     *height,
	}, logger); err != nil {
		logger.Error(context.Background(), "Viewer failed", err)
		fmt.Fprintf(os.Stderr, "viewer: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

type options struct {
	configPath string
	renderer   string
	remote     string
	format     string
	audio      bool
	view       render.View
	width      int
	height     int
}

// newLogger keeps the terminal free for drawing: the terminal renderer logs
// to a file or nowhere, the engo renderer to stdout.
func newLogger(renderer, path string) (*logging.Logger, func(), error) {
	if path == "" {
		if renderer == "engo" {
			return logging.NewLogger(), func() {}, nil
		}
		return logging.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewLoggerWithWriter(f), func() { f.Close() }, nil
}

// frontend is what a renderer needs from either a local simulation or a
// remote stream
type frontend struct {
	source engorender.SnapshotSource
	modes  render.ModeSetter
	arena  physics.AABB
	// onView is told about overlay toggles; may be nil
	onView func(render.View)
}

func run(opts options, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sounds *audio.SoundManager
	if opts.audio {
		sounds = audio.NewSoundManager(audio.DefaultMinGap)
		if err := sounds.Initialize(); err != nil {
			logger.Warn(ctx, "Audio unavailable, continuing without sound", "error", err)
		}
		defer sounds.Cleanup()
	}

	var (
		fe  frontend
		err error
	)
	if opts.remote == "" {
		fe, err = startLocal(ctx, opts, logger, sounds)
	} else {
		fe, err = startRemote(ctx, opts, logger, sounds)
	}
	if err != nil {
		return err
	}

	switch opts.renderer {
	case "engo":
		scene := engorender.NewSimulationScene(fe.source, fe.modes, fe.arena, opts.view, logger)
		engorender.Run(engorender.RunOptions{
			Title:  "quadsim",
			Width:  opts.width,
			Height: opts.height,
		}, scene)
		return nil
	case "terminal", "":
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("init terminal: %w", err)
		}
		defer screen.Fini()
		return runTerminal(ctx, screen, fe, opts.view, logger)
	default:
		return fmt.Errorf("unknown renderer %q", opts.renderer)
	}
}

// startLocal runs the simulation in this process
func startLocal(ctx context.Context, opts options, logger *logging.Logger, sounds *audio.SoundManager) (frontend, error) {
	simConfig := config.DefaultConfig()
	if _, err := os.Stat(opts.configPath); err == nil {
		if simConfig, err = config.LoadConfig(opts.configPath); err != nil {
			return frontend{}, err
		}
	}
	if err := config.ApplyEnvironmentOverrides(simConfig); err != nil {
		return frontend{}, logging.WrapError(err, "apply environment overrides")
	}

	sim, err := engine.NewSimulation(simConfig, engine.WithLogger(logger))
	if err != nil {
		return frontend{}, err
	}
	if sounds != nil {
		sounds.Attach(sim.EventBus)
	}

	go func() {
		if err := sim.Run(ctx); err != nil {
			logger.Error(ctx, "Simulation stopped", err)
		}
	}()

	logger.Info(ctx, "Running local simulation",
		"particles", simConfig.Particles.Count,
		"mode", sim.Mode().String(),
		"seed", sim.Seed(),
	)
	return frontend{source: sim.Snapshot, modes: sim, arena: sim.Bounds()}, nil
}

// remoteModes forwards mode requests to the stream server
type remoteModes struct {
	client *network.StreamClient
}

func (r remoteModes) SetMode(m engine.Mode) error {
	return r.client.SetMode(m.String())
}

// startRemote connects to a stream server
func startRemote(ctx context.Context, opts options, logger *logging.Logger, sounds *audio.SoundManager) (frontend, error) {
	format, err := network.ParseFormat(opts.format)
	if err != nil {
		return frontend{}, err
	}

	client := network.NewStreamClient(nil, logger)
	if err := client.Connect(ctx, opts.remote, format); err != nil {
		return frontend{}, err
	}
	context.AfterFunc(ctx, func() { client.Close() })

	if err := client.Hello("viewer"); err != nil {
		return frontend{}, err
	}
	if err := client.ShowCells(opts.view.ShowCells); err != nil {
		return frontend{}, err
	}

	// the terminal and engo loops poll Latest; the channel feeds audio
	go func() {
		for snap := range client.Snapshots() {
			if sounds != nil {
				sounds.PlayContact(snap.Stats.Contacts)
			}
		}
		logger.Info(context.Background(), "Stream ended", "last_error", client.LastError())
	}()

	logger.Info(ctx, "Connected to stream",
		"url", opts.remote,
		"format", string(format),
		"viewer_id", client.ViewerID(),
	)

	def := config.DefaultConfig().Arena
	return frontend{
		source: client.Latest,
		modes:  remoteModes{client: client},
		arena:  physics.FromOrigin(0, 0, def.Width, def.Height),
		onView: func(v render.View) {
			if err := client.ShowCells(v.ShowCells); err != nil {
				logger.Warn(context.Background(), "Failed to update overlay", "error", err)
			}
		},
	}, nil
}
