package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/corville/confsync/internal"
	pkgconfig "github.com/corville/confsync/pkg/config"
)

// buildConfig assembles the run configuration: defaults, then the
// optional YAML file, then environment/flag overrides, validated last.
func buildConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	configPath := cmd.String("config")
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("base-url"); v != "" {
		cfg.Confluence.BaseURL = v
	}
	if v := cmd.String("user"); v != "" {
		cfg.Confluence.Username = v
	}
	if v := cmd.String("token"); v != "" {
		cfg.Confluence.APIToken = v
	}
	if v := cmd.String("space"); v != "" {
		cfg.Confluence.SpaceKey = v
	}
	if v := cmd.String("parent"); v != "" {
		cfg.Confluence.ParentID = v
	}
	if v := cmd.String("docs"); v != "" {
		cfg.Docs.Path = v
	}
	if v := cmd.String("journal"); v != "" {
		cfg.Journal.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Run(ctx,
		internal.WithConfig(cfg),
		internal.WithForce(cmd.Bool("force")),
	)
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Run(ctx,
		internal.WithConfig(cfg),
		internal.WithForce(cmd.Bool("force")),
		internal.WithWatch(true),
	)
}

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file (optional)",
			DefaultText: "confsync.yaml",
			Value:       "confsync.yaml",
			Sources:     cli.EnvVars("CONFSYNC_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Confluence base URL",
			Sources: cli.EnvVars("CONFLUENCE_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "user",
			Usage:   "Confluence user name",
			Sources: cli.EnvVars("CONFLUENCE_USER_NAME"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Confluence API token",
			Sources: cli.EnvVars("CONFLUENCE_API_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "space",
			Usage:   "Default space key for new pages",
			Sources: cli.EnvVars("CONFLUENCE_SPACE_KEY"),
		},
		&cli.StringFlag{
			Name:    "parent",
			Usage:   "Default parent page ID for new pages",
			Sources: cli.EnvVars("CONFLUENCE_PARENT_ID"),
		},
		&cli.StringFlag{
			Name:    "docs",
			Usage:   "Documentation directory to sync",
			Sources: cli.EnvVars("CONFSYNC_DOCS_DIR"),
		},
		&cli.StringFlag{
			Name:    "journal",
			Usage:   "Path to the sync journal database (enables incremental skips)",
			Sources: cli.EnvVars("CONFSYNC_JOURNAL"),
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Sync every document even when the journal says it is unchanged",
		},
	}

	cmd := &cli.Command{
		Name:  "confsync",
		Usage: "Sync Markdown documentation to Confluence pages",
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run one sync pass over the docs directory",
				Flags:  flags,
				Action: runSync,
			},
			{
				Name:   "watch",
				Usage:  "Sync once, then re-sync documents as they change",
				Flags:  flags,
				Action: runWatch,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("sync error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
