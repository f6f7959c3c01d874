package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/timmy/imgprompt/internal/app"
	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/logger"
	"github.com/timmy/imgprompt/internal/service"
)

// analyzer is the part of the pipeline the command needs.
type analyzer interface {
	Analyze(ctx context.Context, input service.AnalyzeInput) (*service.AnalyzeResult, error)
}

// buildFunc loads configuration and returns an analyzer plus its cleanup.
type buildFunc func(ctx context.Context, configPath string) (analyzer, func() error, error)

func buildFromConfig(ctx context.Context, configPath string) (analyzer, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.Analyze, a.Close, nil
}

func newRootCmd(build buildFunc) *cobra.Command {
	var (
		imageURL   string
		imageFile  string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "describe (--url URL | --file PATH)",
		Short: "Turn an image into a clean descriptive prompt",
		Long: `Runs one image through the same pipeline as POST /api/analyze and prints
the cleaned prompt. The provider key is read from GEMINI_API_KEY or the config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := service.AnalyzeInput{ImageURL: imageURL}
			if imageFile != "" {
				data, err := os.ReadFile(imageFile)
				if err != nil {
					return fmt.Errorf("read %s: %w", imageFile, err)
				}
				input.Upload = &domain.Upload{Filename: filepath.Base(imageFile), Data: data}
			}

			a, cleanup, err := build(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := a.Analyze(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("%s: %w", domain.Kind(err), err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Prompt)
			return nil
		},
	}

	cmd.Flags().StringVar(&imageURL, "url", "", "image URL to describe")
	cmd.Flags().StringVar(&imageFile, "file", "", "local image file to describe")
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "config file (default ./configs/config.yaml)")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	cmd.MarkFlagsOneRequired("url", "file")

	return cmd
}

func main() {
	logger.SetDefaultLogger(logger.New(&logger.Config{
		Level:       "warn",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "imgprompt-describe",
	}))

	cmd := newRootCmd(buildFromConfig)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
