package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ntoes/internal"
	"github.com/starford/ntoes/internal/noteservice"
	"github.com/starford/ntoes/internal/syncer"
	pkgconfig "github.com/starford/ntoes/pkg/config"
)

// options loads the config file (defaults when it does not exist) and turns
// it into application options.
func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if found {
		opts = append(opts, internal.WithConfigPath(configPath))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

// oneShot wraps a command that needs the note service but no background work.
func oneShot(fn func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}
		return internal.Exec(ctx, func(ctx context.Context, svc *noteservice.Service) error {
			return fn(ctx, cmd, svc)
		}, opts...)
	}
}

func scan(ctx context.Context, _ *cli.Command, svc *noteservice.Service) error {
	view, err := svc.ShowTodo(ctx)
	if err != nil {
		return err
	}
	fmt.Print(view)
	return nil
}

func syncNow(ctx context.Context, _ *cli.Command, svc *noteservice.Service) error {
	res, err := svc.Sync(ctx)
	if err != nil {
		if f, ok := syncer.AsFailure(err); ok {
			fmt.Fprint(os.Stderr, f.Output)
		}
		return err
	}
	fmt.Printf("committed_local=%t committed_merge=%t conflicts=%t pushed=%t local_only=%t\n",
		res.CommittedLocal, res.CommittedMerge, res.Conflicts, res.Pushed, res.LocalOnly)
	for _, f := range res.ConflictFiles {
		fmt.Printf("conflict: %s\n", f)
	}
	return nil
}

func history(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
	limit := 20
	if arg := cmd.Args().First(); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("limit must be a number: %w", err)
		}
		limit = n
	}
	runs, err := svc.SyncHistory(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		if !r.OK {
			status = "failed at " + r.FailedOp
		}
		fmt.Printf("%s  %-16s local=%t merge=%t conflicts=%t pushed=%t\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), status,
			r.CommittedLocal, r.CommittedMerge, r.Conflicts, r.Pushed)
	}
	return nil
}

func newNote(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
	note, err := svc.CreateNote(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(note.Path)
	return nil
}

func noteDir(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: ntoes dir <title>")
	}
	dir, err := svc.NoteDir(cmd.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(dir)
	return nil
}

func toggle(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: ntoes toggle <path> <line>")
	}
	line, err := strconv.Atoi(cmd.Args().Get(1))
	if err != nil {
		return fmt.Errorf("line must be a number: %w", err)
	}
	res, err := svc.ToggleItem(ctx, cmd.Args().Get(0), line)
	if err != nil {
		return err
	}
	fmt.Println(res.Text)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "ntoes",
		Usage:  "Live TODO list and git sync for a tree of dated Markdown notes",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("NTOES_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and background scan/sync loops",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: mcp,
			},
			{
				Name:   "scan",
				Usage:  "Print the aggregated TODO view",
				Action: oneShot(scan),
			},
			{
				Name:   "sync",
				Usage:  "Run one git sync cycle",
				Action: oneShot(syncNow),
			},
			{
				Name:      "history",
				Usage:     "Show recent sync runs",
				ArgsUsage: "[limit]",
				Action:    oneShot(history),
			},
			{
				Name:      "new",
				Usage:     "Create a dated note (default title: today)",
				ArgsUsage: "[title]",
				Action:    oneShot(newNote),
			},
			{
				Name:      "dir",
				Usage:     "Print the directory a note title belongs in",
				ArgsUsage: "<title>",
				Action:    oneShot(noteDir),
			},
			{
				Name:      "toggle",
				Usage:     "Toggle the TODO marker on a 0-based line of a note",
				ArgsUsage: "<path> <line>",
				Action:    oneShot(toggle),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
