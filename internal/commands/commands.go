package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/drewfead/berlinale/internal/berlinale"
	"github.com/drewfead/berlinale/internal/calendar"
	"github.com/drewfead/berlinale/internal/config"
	"github.com/drewfead/berlinale/internal/core"
)

var (
	profileFlag = &cli.BoolFlag{
		Name:  "profile",
		Usage: "Enable pprof profiling for this run",
		Value: false,
	}

	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Set the verbosity of the logger",
		Value: "info",
	}

	outputFormatFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Set the output format (json, ics)",
		Value:   "json",
	}

	configFlag = &cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Load scraper settings from a YAML file",
	}

	maxPagesFlag = &cli.IntFlag{
		Name:  "max-pages",
		Usage: "Stop after this many listing pages (0 for all)",
	}

	delayFlag = &cli.DurationFlag{
		Name:  "delay",
		Usage: "Pause between page fetches",
	}

	logFileFlag = &cli.PathFlag{
		Name:  "log-file",
		Usage: "Also write JSON logs to this file, rotated by size",
	}
)

func NewApp() *cli.App {
	return &cli.App{
		Name:            "berlinale",
		Usage:           "Downloads the Berlinale programme as a list of screenings",
		ArgsUsage:       "<output.json>",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			verbosityFlag,
			profileFlag,
			outputFormatFlag,
			configFlag,
			maxPagesFlag,
			delayFlag,
			logFileFlag,
		},
		Action: scrape,
	}
}

func scrape(c *cli.Context) error {
	if c.NArg() < 1 {
		if err := cli.ShowAppHelp(c); err != nil {
			return err
		}
		return cli.Exit("", 1)
	}
	format := c.String(outputFormatFlag.Name)
	if format != "json" && format != "ics" {
		return fmt.Errorf("unsupported output format %s", format)
	}

	cleanupSteps, err := setup(c)
	defer cleanup(c, cleanupSteps...)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := berlinale.New(cfg).Programme(c.Context)
	if err != nil {
		return err
	}
	zap.L().Info("scraped programme",
		zap.Int("pages", res.Pages),
		zap.Int("processed", res.Processed),
		zap.Ints("skipped", res.Skipped),
		zap.Int("movies", len(res.Movies)),
		zap.Int("screenings", len(res.Screenings)),
		zap.Duration("took", time.Since(started)),
	)

	return results(c, c.Args().First(), res.Screenings)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.Path(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(maxPagesFlag.Name) {
		cfg.MaxPages = c.Int(maxPagesFlag.Name)
	}
	if c.IsSet(delayFlag.Name) {
		cfg.Delay = c.Duration(delayFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setup(ctx *cli.Context) ([]func(), error) {
	var out []func()

	level, err := zap.ParseAtomicLevel(ctx.String(verbosityFlag.Name))
	if err != nil {
		return out, fmt.Errorf("failed to parse log level: %w", err)
	}
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = level
	logger, err := zapCfg.Build()
	if err != nil {
		return out, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if path := ctx.Path(logFileFlag.Name); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotating),
			level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
		out = append(out, func() {
			if err := rotating.Close(); err != nil {
				zap.L().Error("Failed to close log file", zap.Error(err))
			}
		})
	}

	restoreLogger := zap.ReplaceGlobals(logger.With(zap.String("run_id", uuid.NewString())))
	out = append(out, func() {
		_ = zap.L().Sync()
		restoreLogger()
	})

	undoMaxprocs, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		zap.L().Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		zap.L().Warn("Failed to set GOMAXPROCS", zap.Error(err))
	} else {
		out = append(out, undoMaxprocs)
	}

	if ctx.Bool(profileFlag.Name) {
		cpuProfile, err := os.Create("/tmp/cpu_profile.prof")
		if err != nil {
			return out, err
		}

		if err := pprof.StartCPUProfile(cpuProfile); err != nil {
			return out, err
		}

		out = append(out, func() {
			pprof.StopCPUProfile()
			cpuProfile.Close()
		})

		memProfile, err := os.Create("/tmp/memory_profile.prof")
		if err != nil {
			return out, err
		}

		out = append(out, func() {
			runtime.GC()
			if err := pprof.WriteHeapProfile(memProfile); err != nil {
				zap.L().Error("Failed to write heap profile", zap.Error(err))
			}
			memProfile.Close()
		})
	}

	return out, nil
}

// cleanup runs steps in reverse so the logger set up first is restored last.
func cleanup(ctx *cli.Context, steps ...func()) {
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

func results(ctx *cli.Context, path string, screenings []core.Screening) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	switch ctx.String(outputFormatFlag.Name) {
	case "json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(screenings)
	case "ics":
		return calendar.Write(f, screenings, time.Now())
	default:
		return fmt.Errorf("unsupported output format %s", ctx.String(outputFormatFlag.Name))
	}
}
