package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdcards/internal"
	pkgconfig "github.com/starford/mdcards/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Flags override file values only when given.
	if root := cmd.Args().First(); root != "" {
		cfg.Scan.Root = root
	}
	if cmd.IsSet("output") {
		cfg.Output.Path = cmd.String("output")
	}
	if cmd.IsSet("model") {
		cfg.Model.Path = cmd.String("model")
	}
	if cmd.IsSet("include-filename") {
		cfg.Deck.IncludeFilename = cmd.Bool("include-filename")
	}
	if cmd.IsSet("deck-root") {
		cfg.Deck.RootName = cmd.String("deck-root")
	}
	if cmd.IsSet("markdown") {
		cfg.Markdown.Render = cmd.Bool("markdown")
	}
	if cmd.IsSet("missing-media") {
		cfg.Media.Missing = cmd.String("missing-media")
	}
	if cmd.IsSet("workers") {
		cfg.Scan.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("include") {
		cfg.Scan.Include = cmd.StringSlice("include")
	}
	if cmd.IsSet("exclude") {
		cfg.Scan.Exclude = cmd.StringSlice("exclude")
	}
	if cmd.IsSet("port") {
		cfg.Serve.HTTP.Port = int(cmd.Int("port"))
	}
	if cmd.Bool("verbose") {
		cfg.App.LogLevel = slog.LevelDebug
	}
	return cfg, nil
}

func run(mode internal.Mode) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithMode(mode),
		}

		if err := internal.Run(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", mode, err)
		}

		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:      "mdcards",
		Usage:     "Compile flashcards embedded in Markdown notes into an Anki package",
		ArgsUsage: "<notes-dir>",
		Action:    run(internal.ModeBuild),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Path of the .apkg file to write",
				DefaultText: internal.DefaultOutput,
			},
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "Note type definition (YAML)",
				DefaultText: "built-in Question/Answer model",
			},
			&cli.BoolFlag{
				Name:  "include-filename",
				Usage: "Add the file name as the last deck segment",
			},
			&cli.StringFlag{
				Name:        "deck-root",
				Usage:       "First segment of directory-derived deck names",
				DefaultText: "name of the notes directory",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug logging and one line per skipped card",
			},
			&cli.BoolFlag{
				Name:  "markdown",
				Usage: "Render text fields from Markdown to HTML",
			},
			&cli.StringFlag{
				Name:        "missing-media",
				Usage:       "What to do with cards referencing missing images: skip or keep",
				DefaultText: "skip",
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "Files processed concurrently",
				DefaultText: "number of CPUs",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only compile files matching these glob patterns",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip files matching these glob patterns",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "build",
				Usage:     "Compile the notes once and write the package",
				ArgsUsage: "<notes-dir>",
				Action:    run(internal.ModeBuild),
			},
			{
				Name:      "watch",
				Usage:     "Rebuild the package whenever a note or image changes",
				ArgsUsage: "<notes-dir>",
				Action:    run(internal.ModeWatch),
			},
			{
				Name:      "serve",
				Usage:     "Watch and serve a preview API with live build events",
				ArgsUsage: "<notes-dir>",
				Action:    run(internal.ModeServe),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:        "port",
						Usage:       "HTTP port",
						DefaultText: "8080",
					},
				},
			},
			{
				Name:      "mcp",
				Usage:     "Expose the compiled cards as MCP tools over stdio",
				ArgsUsage: "<notes-dir>",
				Action:    run(internal.ModeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
