package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/daemon"
	apperrors "github.com/hallvik/pagepress/internal/errors"
	"github.com/hallvik/pagepress/internal/history"
	"github.com/hallvik/pagepress/internal/logfields"
	"github.com/hallvik/pagepress/internal/pipeline"
	"github.com/hallvik/pagepress/internal/version"
	"github.com/hallvik/pagepress/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pagepress.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`

	Build struct {
		Incremental bool `short:"i" help:"Update an existing checkout instead of a fresh clone"`
	} `cmd:"" help:"Render and verify the site without publishing"`

	Publish struct {
		Incremental bool `short:"i" help:"Update an existing checkout instead of a fresh clone"`
	} `cmd:"" help:"Run the full cycle: checkout, render, stamp, verify, publish"`

	Status struct {
		Limit int `short:"n" help:"Number of runs to show" default:"10"`
	} `cmd:"" help:"Show recent runs from the daemon's history"`

	Daemon struct{} `cmd:"" help:"Listen for push webhooks and publish continuously"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	reporter := apperrors.NewCLIErrorAdapter(CLI.Verbose, logger)

	var err error
	switch ctx.Command() {
	case "init":
		err = runInit(CLI.Config, CLI.Init.Force)
	case "build":
		err = runPipeline(CLI.Config, true, CLI.Build.Incremental)
	case "publish":
		err = runPipeline(CLI.Config, false, CLI.Publish.Incremental)
	case "status":
		err = runStatus(CLI.Config, CLI.Status.Limit)
	case "daemon":
		err = runDaemon(CLI.Config)
	case "version":
		fmt.Printf("pagepress %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}

	if err != nil {
		reporter.Report(err)
		os.Exit(reporter.ExitCodeFor(err))
	}
}

func runInit(configPath string, force bool) error {
	slog.Info("Writing example configuration", logfields.Path(configPath))
	return config.Init(configPath, force)
}

func runPipeline(configPath string, skipPublish, incremental bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		return err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to cleanup workspace", logfields.Error(err))
		}
	}()

	opts := []pipeline.Option{}
	if skipPublish {
		opts = append(opts, pipeline.WithSkipPublish())
	}
	if incremental {
		opts = append(opts, pipeline.WithIncrementalCheckout())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := pipeline.New(cfg, ws, opts...).Run(ctx, pipeline.Trigger{
		Branch: cfg.Source.Branch,
		Reason: "cli",
	})
	if err != nil {
		return err
	}

	for _, warn := range report.Warnings {
		slog.Warn("Run completed with warning", logfields.Error(warn))
	}
	return nil
}

func runStatus(configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Daemon == nil {
		return fmt.Errorf("no daemon section in configuration, no run history to show")
	}

	store, err := history.Open(cfg.Daemon.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-8s  %-8s  docs=%d pages=%d",
			run.FinishedAt.Format("2006-01-02 15:04:05"),
			run.Outcome, shortCommit(run.Commit), run.Documents, run.Pages)
		if run.Published {
			line += "  published"
		}
		if run.Error != "" {
			line += "  " + run.Error
		}
		fmt.Println(line)
	}
	return nil
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	if commit == "" {
		return "-"
	}
	return commit
}

func runDaemon(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
