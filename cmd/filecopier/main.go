// Command filecopier watches a dated sub-folder of a base source directory
// and copies each file into a fixed destination directory once its write has
// settled. ESC opens a menu to switch the watched folder or quit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"filecopier"
)

const version = "2.0.0"

func main() {
	var configPath string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "filecopier",
		Short: "Watch a dated source folder and copy stabilized files to a destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, debug)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "parameters.json", "path to the JSON parameters file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log at debug level")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	logger, err := newLogger(debug)
	if err != nil {
		return err
	}

	fmt.Printf("\nFile Copier v%s\n", version)
	fmt.Println(strings.Repeat("=", 50))

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("configuration error")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console, err := NewConsole()
	if err != nil {
		return err
	}
	defer console.Close()

	monitor := filecopier.NewMonitor(cfg.BaseSourceDir, cfg.DestinationDir, console, console, logger)
	console.SetMenuHandler(monitor.RequestMenu)
	console.SetInterruptHandler(stop)

	logger.Info().Str("version", version).Msg("file copier started")

	if err := monitor.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("fatal error")
		console.ReportError("fatal error", err)
		return err
	}

	logger.Info().Msg("file copier stopped")
	return nil
}

// newLogger builds the shared logger writing to a rotated log file. The
// operator-facing duplicate of every copy outcome goes to the console through
// the styled reporter, not through here.
func newLogger(debug bool) (zerolog.Logger, error) {
	if err := os.MkdirAll("logs", 0755); err != nil {
		return zerolog.Logger{}, fmt.Errorf("creating logs directory: %w", err)
	}

	sink := &lumberjack.Logger{
		Filename:   filepath.Join("logs", "filecopier.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(sink).Level(level).With().Timestamp().Logger(), nil
}
