// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/poiesic/ragline"
	"github.com/poiesic/ragline/chat"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/reembed"
	"github.com/poiesic/ragline/server"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func ownerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"u"},
		Usage:    "User id that owns the documents",
		Required: true,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragline",
		Usage: "Document question answering over your own files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "ragline.yaml",
				EnvVars: []string{"RAGLINE_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address, overrides server.addr",
					},
				},
			},
			{
				Name:      "upload",
				Usage:     "Store a file as a new document",
				ArgsUsage: "FILE",
				Action:    uploadCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:  "type",
						Usage: "Declared file type (defaults to the file extension)",
					},
					&cli.BoolFlag{
						Name:  "ingest",
						Usage: "Index the document right after uploading",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Extract, chunk and embed a stored document",
				ArgsUsage: "DOCUMENT_ID",
				Action:    ingestCommand,
			},
			{
				Name:      "search",
				Usage:     "Show the chunks most similar to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"k"},
						Usage:   "Number of results (defaults to search.top_k)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question and stream the answer",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "owner",
						Aliases: []string{"u"},
						Usage:   "User id; omit to ask anonymously",
					},
					&cli.Uint64Flag{
						Name:  "conversation",
						Usage: "Continue an existing conversation",
					},
					&cli.BoolFlag{
						Name:  "no-rag",
						Usage: "Answer without document retrieval",
					},
					&cli.Float64Flag{
						Name:  "temperature",
						Usage: "Sampling temperature, overrides chat.temperature",
					},
				},
			},
			{
				Name:   "recover",
				Usage:  "Mark documents stuck in processing as failed",
				Action: recoverCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Recompute embeddings of every processed document",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: reembed.DefaultConfig().RetryDelay,
					},
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Continue from the last checkpoint",
					},
				},
			},
		},
	}
}

// openEngine loads the configuration named by --config and opens an engine.
func openEngine(c *cli.Context) (*ragline.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if !c.IsSet("log-level") && cfg.LogLevel != "" {
		if err := installLogger(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	return ragline.Open(c.Context, cfg)
}

func serveCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv, err := server.New(engine)
	if err != nil {
		return err
	}
	return srv.Start(c.Context)
}

func uploadCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("file argument is required")
	}
	fileType := c.String("type")
	if fileType == "" {
		fileType = filepath.Ext(path)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	doc, err := engine.Pipeline().Register(c.Context, c.String("owner"), filepath.Base(path), fileType, path)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "document %d: %s (%d bytes)\n", doc.ID, doc.Filename, doc.Size)

	if !c.Bool("ingest") {
		return nil
	}
	return ingest(c, engine, doc.ID)
}

func ingestCommand(c *cli.Context) error {
	id, err := parseID(c.Args().First())
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	return ingest(c, engine, id)
}

func ingest(c *cli.Context, engine *ragline.Engine, id core.ID) error {
	result, err := engine.Pipeline().Ingest(c.Context, id)
	if err != nil {
		return fmt.Errorf("ingestion of document %d failed: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "document %d: %d chunks, %d embeddings, %d embedding failures\n",
		result.DocumentID, result.ChunksCreated, result.EmbeddingsCreated, result.EmbeddingsFailed)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("query argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	k := c.Int("limit")
	if k <= 0 {
		k = engine.Config().Search.TopK
	}
	results, err := engine.Searcher().Search(c.Context, query, c.String("owner"), k)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(c.App.Writer, "%d. [%s #%d] distance %.4f\n   %s\n",
			i+1, r.DocumentName, r.Chunk.Index, r.Distance, oneLine(r.Chunk.Content, 160))
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("question argument is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	req := chat.Request{
		UserID:         c.String("owner"),
		ConversationID: core.ID(c.Uint64("conversation")),
		Message:        question,
		UseRetrieval:   !c.Bool("no-rag"),
		Temperature:    engine.Config().Chat.Temperature,
	}
	if c.IsSet("temperature") {
		req.Temperature = c.Float64("temperature")
	}

	for ev := range engine.Chat().Chat(c.Context, req) {
		switch ev.Type {
		case chat.EventToken:
			fmt.Fprint(c.App.Writer, ev.Token)
		case chat.EventDone:
			fmt.Fprintln(c.App.Writer)
			if ev.ConversationID != 0 {
				fmt.Fprintf(c.App.ErrWriter, "conversation %d, message %d\n", ev.ConversationID, ev.MessageID)
			}
		case chat.EventError:
			fmt.Fprintln(c.App.Writer)
			return ev.Err
		}
	}
	return nil
}

func recoverCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	n, err := engine.RecoverStuck(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "recovered %d stuck documents\n", n)
	return nil
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Resume:         c.Bool("resume"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	reembedder, err := engine.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", engine.Provider().Embedder().ModelName())
	stats, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "reembedded %d chunks across %d documents\n", stats.Chunks, stats.Documents)
	return nil
}

func parseID(raw string) (core.ID, error) {
	var id uint64
	if _, err := fmt.Sscan(raw, &id); err != nil || id == 0 {
		return 0, fmt.Errorf("invalid document id %q", raw)
	}
	return core.ID(id), nil
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width]) + "..."
	}
	return s
}

func setupLogger(c *cli.Context) error {
	return installLogger(c.String("log-level"))
}

// installLogger sets the default slog logger to a text handler on stderr
// at the named level.
func installLogger(levelStr string) error {
	// Map string to slog.Level
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
