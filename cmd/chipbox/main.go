// Package main provides the chipbox player entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/chipbox/internal/app/session"
	"github.com/osa030/chipbox/internal/domain/playlist"
	"github.com/osa030/chipbox/internal/infra/audio"
	"github.com/osa030/chipbox/internal/infra/config"
	"github.com/osa030/chipbox/internal/infra/logger"
	"github.com/osa030/chipbox/internal/infra/mediactrl"
	"github.com/osa030/chipbox/internal/infra/wavdec"
)

var (
	app        = kingpin.New("chipbox", "chip music player")
	configPath = app.Flag("config", "Path to config file").Default("chipbox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
	driver     = app.Flag("driver", "Audio driver (oto, beep, wav, null)").String()

	playCmd   = app.Command("play", "Play files in order (default)").Default()
	playFiles = playCmd.Arg("files", "Files to play").Required().Strings()

	// list-controls command
	listControlsCmd = app.Command("list-controls", "List available media controls and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listControlsCmd.FullCommand() {
		printControls()
		return
	}

	if err := logger.Init(loggerConfig(nil)); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *driver != "" {
		cfg.Audio.Driver = *driver
		if err := cfg.Validate(); err != nil {
			zlog.Fatal().Msgf("Invalid driver: %v", err)
		}
	}
	if err := logger.Init(loggerConfig(cfg)); err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg, *playFiles); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// loggerConfig merges the config file settings with command-line flags.
func loggerConfig(cfg *config.Config) logger.Config {
	lc := logger.Config{Output: "stderr", Level: "info"}
	if cfg != nil {
		lc.Output = cfg.Log.Output
		lc.Level = cfg.Log.Level
		lc.RawTerminal = cfg.IsMediaControlEnabled("keyboard") && term.IsTerminal(int(os.Stdin.Fd()))
	}
	if *verbose {
		lc.Level = "debug"
	}
	if *logfile != "" {
		lc.Output = *logfile
	}
	return lc
}

// run executes the player. Using a separate function ensures defer
// statements are executed even when returning with an error.
func run(cfg *config.Config, files []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := audio.New(cfg.Audio.Driver, audio.Options{
		SampleRate:   int(cfg.Audio.SampleRate),
		BufferFrames: cfg.BufferFrames(),
		WavPath:      cfg.Audio.WavPath,
		Realtime:     true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create audio sink")
	}

	backends, err := mediactrl.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	pl := playlist.FromPaths("", files)
	sessionMgr := session.NewManager(cfg, pl, wavdec.NewLoader(), sink)
	defer sessionMgr.Close()

	started := mediactrl.StartAll(ctx, sessionMgr, backends)
	defer mediactrl.StopAll(started)

	zlog.Info().Msgf("Starting playback: tracks=%d driver=%s rate=%d", pl.Len(), cfg.Audio.Driver, cfg.Audio.SampleRate)
	if err := sessionMgr.Run(ctx); err != nil {
		return err
	}
	zlog.Info().Msg("Playback finished")
	return nil
}

// printControls prints the available media-control backends.
func printControls() {
	fmt.Println("Available Media Controls:")
	for _, typ := range mediactrl.Registered() {
		fmt.Printf("  %s\n", typ)
	}
}
