package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"segment-timeline/internal/engine"
	"segment-timeline/internal/engine/ffengine"
	"segment-timeline/internal/platform/config"
	"segment-timeline/internal/platform/logger"
	"segment-timeline/internal/platform/metrics"
	"segment-timeline/internal/timeline"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const initializedMessage = "Video source initialized successfully"

type options struct {
	configPath    string
	envFile       string
	outputFile    string
	outputPointer string

	cfg config.Config

	// newEngine replaces the ffmpeg engine when set.
	newEngine func(cfg config.Config, log *slog.Logger) engine.Engine
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {
	opts.cfg = config.Default()

	cmd := &cobra.Command{
		Use:   "timeline [flags] REFERENCE [SEGMENT|DIR]...",
		Short: "Assemble recorded video segments into one playback timeline",
		Long: `Derives the output capabilities from the reference recording, validates every
segment against them, and starts playback of the earliest one.

A directory argument stands for the .mkv and .webm files it contains. When the
first argument is a directory, its lexically last recording is the reference.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment when present")
	f.StringVar(&opts.outputFile, "output-file", "", "JSON file describing the output; skips probing the reference")
	f.StringVar(&opts.outputPointer, "output-pointer", "", `JSON pointer to the output item inside --output-file, e.g. "/outputs/0"`)

	f.StringVarP(&opts.cfg.OutputName, "output-name", "o", opts.cfg.OutputName, "name of the output")
	f.StringVar(&opts.cfg.FFmpegPath, "ffmpeg", opts.cfg.FFmpegPath, "ffmpeg binary")
	f.StringVar(&opts.cfg.FFprobePath, "ffprobe", opts.cfg.FFprobePath, "ffprobe binary")
	f.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "debug, info, warn or error")
	f.StringVar(&opts.cfg.LogFormat, "log-format", opts.cfg.LogFormat, "json or text")
	f.StringVar(&opts.cfg.HTTPAddr, "http-addr", opts.cfg.HTTPAddr, "serve timeline inspection on this address until interrupted")
	f.StringVar(&opts.cfg.ManifestPath, "manifest", opts.cfg.ManifestPath, "write the built timeline as JSON to this file")
	f.StringVar(&opts.cfg.MetricsTextfile, "metrics-textfile", opts.cfg.MetricsTextfile, "write build metrics in Prometheus text format to this file")
	f.StringVar(&opts.cfg.Origin, "origin", opts.cfg.Origin, "begin timestamp source: zero, filename or matroska")
	f.StringVar(&opts.cfg.FilenamePattern, "filename-pattern", opts.cfg.FilenamePattern, "strftime pattern of recording names for --origin=filename")
	f.BoolVar(&opts.cfg.Rebase, "rebase", opts.cfg.Rebase, "move the earliest segment to zero")
	f.IntVar(&opts.cfg.SinkMaxBuffers, "sink-max-buffers", opts.cfg.SinkMaxBuffers, "frames queued per segment sink")
	f.DurationVar(&opts.cfg.StopGrace, "stop-grace", opts.cfg.StopGrace, "time a decoder gets to exit before it is killed")

	return cmd
}

// resolveConfig layers defaults, the YAML file, the environment and the flags
// set on the command line, in that order.
func resolveConfig(flags *pflag.FlagSet, opts *options) (config.Config, error) {
	if opts.envFile != "" {
		_ = config.Load(opts.envFile)
	}
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return cfg, err
	}
	config.ApplyEnv(&cfg)

	overrides := map[string]func(){
		"output-name":      func() { cfg.OutputName = opts.cfg.OutputName },
		"ffmpeg":           func() { cfg.FFmpegPath = opts.cfg.FFmpegPath },
		"ffprobe":          func() { cfg.FFprobePath = opts.cfg.FFprobePath },
		"log-level":        func() { cfg.LogLevel = opts.cfg.LogLevel },
		"log-format":       func() { cfg.LogFormat = opts.cfg.LogFormat },
		"http-addr":        func() { cfg.HTTPAddr = opts.cfg.HTTPAddr },
		"manifest":         func() { cfg.ManifestPath = opts.cfg.ManifestPath },
		"metrics-textfile": func() { cfg.MetricsTextfile = opts.cfg.MetricsTextfile },
		"origin":           func() { cfg.Origin = opts.cfg.Origin },
		"filename-pattern": func() { cfg.FilenamePattern = opts.cfg.FilenamePattern },
		"rebase":           func() { cfg.Rebase = opts.cfg.Rebase },
		"sink-max-buffers": func() { cfg.SinkMaxBuffers = opts.cfg.SinkMaxBuffers },
		"stop-grace":       func() { cfg.StopGrace = opts.cfg.StopGrace },
	}
	flags.Visit(func(fl *pflag.Flag) {
		if apply, ok := overrides[fl.Name]; ok {
			apply()
		}
	})
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	cfg, err := resolveConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	reference, paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	origin, err := timeline.OriginByName(cfg.Origin, cfg.FilenamePattern)
	if err != nil {
		return err
	}

	newEngine := opts.newEngine
	if newEngine == nil {
		newEngine = newFFEngine
	}
	eng := newEngine(cfg, log)
	met := metrics.New()
	builder := timeline.NewBuilder(eng, timeline.BuilderConfig{
		Origin:      origin,
		Rebase:      cfg.Rebase,
		SinkBuffers: cfg.SinkMaxBuffers,
	}, log, met)

	log.Info("building timeline",
		slog.String("output", cfg.OutputName),
		slog.String("reference", reference),
		slog.Int("segments", len(paths)),
		slog.String("origin", cfg.Origin))

	tl, err := build(builder, opts, cfg.OutputName, reference, paths)
	if err != nil {
		writeTextfile(log, met, cfg.MetricsTextfile)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), initializedMessage)

	repo := timeline.NewInMemoryRepository()
	svc := timeline.NewService(repo)
	if err := svc.Publish(tl); err != nil {
		log.Warn("publish timeline failed", slog.String("error", err.Error()))
	}
	if cfg.ManifestPath != "" {
		if err := timeline.WriteManifest(cfg.ManifestPath, tl.Snapshot()); err != nil {
			log.Error("write manifest failed", slog.String("error", err.Error()))
		}
	}
	writeTextfile(log, met, cfg.MetricsTextfile)

	if cfg.HTTPAddr != "" {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg.HTTPAddr, log, met, repo, svc); err != nil {
			tl.Close()
			return err
		}
	}

	builder.Controller().Stop(tl)
	if err := svc.Close(tl); err != nil {
		log.Warn("publish closed timeline failed", slog.String("error", err.Error()))
	}
	return nil
}

func newFFEngine(cfg config.Config, log *slog.Logger) engine.Engine {
	return ffengine.New(ffengine.Config{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		StopGrace:   cfg.StopGrace,
		Logger:      log,
	})
}

func build(b *timeline.Builder, opts *options, outputName, reference string, paths []string) (*timeline.Timeline, error) {
	if opts.outputFile == "" {
		return b.Build(reference, outputName, paths)
	}
	data, err := os.ReadFile(opts.outputFile)
	if err != nil {
		return nil, fmt.Errorf("read output file: %w", err)
	}
	out, err := timeline.ParseOutput(data, opts.outputPointer)
	if err != nil {
		return nil, err
	}
	if out.Descriptor.Name == "" {
		out.Descriptor.Name = outputName
	}
	return b.BuildWithDescriptor(out.Descriptor, paths)
}

func writeTextfile(log *slog.Logger, met *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := met.WriteTextfile(path); err != nil {
		log.Error("write metrics textfile failed", slog.String("error", err.Error()))
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
