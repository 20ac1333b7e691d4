package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"voltassist/internal/app"
	"voltassist/internal/config"
	"voltassist/internal/logging"
	"voltassist/internal/server"
	"voltassist/internal/service"
	"voltassist/internal/tui"
)

const usage = `Usage: voltassist [--config=config.yaml] [chat|serve|ingest]

  chat    terminal chat session (default)
  serve   HTTP API
  ingest  embed the corpus and write it to the vector store
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var reset bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/voltassist/config.yaml if not provided)")
	flag.BoolVar(&reset, "reset", false, "ingest: clear the vector store before writing")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	command := "chat"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// The terminal UI owns stdout and stderr.
	if command == "chat" && cfg.Log.File == "" {
		cfg.Log.File = "logs/voltassist.log"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "chat":
		err = runChat(ctx, cfg, logger)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "ingest":
		err = runIngest(ctx, cfg, logger, reset)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(command+" failed", zap.Error(err))
	}
}

func runChat(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	deps, err := app.Build(ctx, cfg, logger, app.Options{WithGenerator: true})
	if err != nil {
		return err
	}
	defer deps.Close()
	if err := deps.Warmup(ctx); err != nil {
		return err
	}
	if cfg.Corpus.Watch {
		if err := deps.WatchCorpus(ctx); err != nil {
			return err
		}
	}

	m := tui.New(deps.Assistant, tui.Config{
		Title:       cfg.Assistant.Name,
		Language:    cfg.Assistant.Language,
		Categories:  deps.Corpus.Categories(),
		TurnTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func runServe(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	deps, err := app.Build(ctx, cfg, logger, app.Options{WithGenerator: true})
	if err != nil {
		return err
	}
	defer deps.Close()
	if err := deps.Warmup(ctx); err != nil {
		return err
	}
	if cfg.Corpus.Watch {
		if err := deps.WatchCorpus(ctx); err != nil {
			return err
		}
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, deps.Assistant, logger.Named("http"))
	return srv.Run(ctx)
}

func runIngest(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, reset bool) error {
	deps, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer deps.Close()
	if deps.Ephemeral() {
		logger.Warn("the memory vector store is rebuilt on every start; ingest only checks the corpus")
	}

	n, err := deps.Assistant.Ingest(ctx, deps.Corpus.Records(), service.IngestOptions{Reset: reset})
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d records into the %s vector store.\n", n, cfg.VectorStore.Type)
	return nil
}
