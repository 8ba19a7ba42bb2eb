package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/aixgo-dev/codenav/internal/chat"
	"github.com/aixgo-dev/codenav/internal/dialogue"
	"github.com/aixgo-dev/codenav/internal/logging"
	"github.com/aixgo-dev/codenav/internal/nlp"
	"github.com/aixgo-dev/codenav/internal/observability"
	"github.com/aixgo-dev/codenav/internal/pathgen"
	"github.com/aixgo-dev/codenav/pkg/config"
	metrics "github.com/aixgo-dev/codenav/pkg/observability"
	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "codenav",
		Short: "A guided tutoring service for learning programming technologies",
		Long: `codenav walks a learner through choosing a technology, assessing their
level, generating a learning path and answering questions along the way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the dotenv file, when present, and the configuration.
func (o *rootOptions) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", o.envFile, err)
		}
	}
	return config.Load(o.configPath)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codenav %s\n", Version)
		},
	}
}

// app holds the wired components shared by serve and chat.
type app struct {
	logger          *zap.Logger
	store           *session.TieredStore
	chat            *chat.Service
	engine          *dialogue.Engine
	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := observability.Init(cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	metrics.InitMetrics()

	a := &app{logger: logger, shutdownTracing: shutdownTracing}

	a.store, err = session.Open(ctx, cfg.SessionStore(),
		session.WithLogger(logger),
		session.WithFallbackHook(metrics.RecordStoreFallback),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	lex, err := loadLexicon(cfg.LexiconPath)
	if err != nil {
		a.close()
		return nil, err
	}

	a.chat, err = chat.Open(cfg.Chat, chat.WithLogger(logger))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open chat service: %w", err)
	}

	paths, err := pathgen.NewGenerator()
	if err != nil {
		a.close()
		return nil, err
	}

	a.engine, err = dialogue.NewEngine(a.store, nlp.NewClassifier(lex), a.chat, paths,
		dialogue.WithLogger(logger),
		dialogue.WithChatTimeout(cfg.Chat.Timeout),
		dialogue.WithFeatured(lex.Featured()),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	logger.Info("codenav initialized",
		zap.String("version", Version),
		zap.Bool("redis", a.store.HasPrimary()),
		zap.String("default_provider", a.chat.DefaultProvider()),
		zap.Strings("providers", a.chat.Providers()),
	)
	return a, nil
}

func loadLexicon(path string) (*nlp.Lexicon, error) {
	if path == "" {
		return nlp.DefaultLexicon()
	}
	lex, err := nlp.LoadLexicon(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon %s: %w", path, err)
	}
	return lex, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close session store", zap.Error(err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
