package main

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/diarization-splitter/internal/config"
	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
)

// backend opens sources and trims clips
type backend interface {
	Open(ctx context.Context, path string) (*media.Source, error)
	Trim(ctx context.Context, src *media.Source, start, end float64, outPath string) error
}

type backendFactory func(logger zerolog.Logger, opts media.Options) (backend, error)

func defaultBackend(logger zerolog.Logger, opts media.Options) (backend, error) {
	executor, err := media.New(logger, opts)
	if err != nil {
		return nil, err
	}
	return executor, nil
}

type commandContext struct {
	configPath string
	verbose    bool
	newBackend backendFactory
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

func (c *commandContext) logger(cmd *cobra.Command) zerolog.Logger {
	level := "error"
	if c.verbose {
		level = "debug"
	}
	return logging.Init(logging.Options{Level: level, Out: cmd.ErrOrStderr()})
}

func newRootCommand(newBackend backendFactory) *cobra.Command {
	ctx := &commandContext{newBackend: newBackend}

	rootCmd := &cobra.Command{
		Use:           "splitter",
		Short:         "Split a video into per-speaker clips from a diarization table",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", config.DefaultPath, "Configuration file path (ffmpeg settings)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log every segment")

	rootCmd.AddCommand(newSplitCommand(ctx))
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

func isTerminal(f any) bool {
	file, ok := f.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
