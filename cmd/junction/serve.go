package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/junction-api/junction/internal/api"
	"github.com/junction-api/junction/internal/config"
	"github.com/junction-api/junction/internal/hooks"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

var (
	servePort int
	serveDSN  string
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to run the server on (overrides configuration)")
	serveCmd.Flags().StringVar(&serveDSN, "dsn", "", "Postgres connection string; uses the in-memory store when empty")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the example JSON:API server",
	Long:  "Start an HTTP server exposing the sample resource graph over JSON:API",
	RunE: func(cmd *cobra.Command, args []string) error {
		options, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != 0 {
			options.Server.Port = servePort
		}

		logger, err := zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
		defer logger.Sync()

		graph, err := sampleGraph()
		if err != nil {
			return err
		}

		var service store.Service
		var runner store.TransactionRunner
		if serveDSN != "" {
			db, err := sql.Open("postgres", serveDSN)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			pg := store.NewPostgresStore(db, graph, options.DefaultPageSize)
			service, runner = pg, pg
		} else {
			mem := store.NewMemoryStore(graph)
			if err := seed(cmd.Context(), mem); err != nil {
				return err
			}
			service, runner = mem, mem
		}

		executor := hooks.NewExecutor(sampleHooks(logger))
		surface := api.New(graph, service, runner, executor, options, logger)

		addr := fmt.Sprintf("%s:%d", options.Server.Host, options.Server.Port)
		server := &http.Server{Addr: addr, Handler: surface.Handler()}

		// Handle Ctrl+C gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-sigChan
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()

		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

// sampleGraph declares the example resource graph the server exposes.
func sampleGraph() (*resource.Graph, error) {
	builder := resource.NewBuilder()

	builder.Resource("articles").
		Attr("title", resource.KindString).
		Attr("body", resource.KindString).
		Attr("viewCount", resource.KindInt).
		RestrictedAttr("internalNotes", resource.KindString, false, false).
		Attr("publishedAt", resource.KindTime).
		ToOne("author", "people").
		ToMany("comments", "comments").
		ToMany("tags", "tags")

	builder.Resource("people").
		Attr("name", resource.KindString).
		Attr("email", resource.KindString).
		Attr("verified", resource.KindBool).
		ToMany("articles", "articles")

	builder.Resource("comments").
		Attr("body", resource.KindString).
		Attr("createdAt", resource.KindTime).
		ToOne("author", "people").
		ToOne("article", "articles")

	builder.Resource("tags").
		Attr("name", resource.KindString)

	return builder.Build()
}

// sampleHooks wires a logging read hook so the hook path is visible when
// exploring the example server.
func sampleHooks(logger *zap.Logger) *hooks.Registry {
	registry := hooks.NewRegistry()
	registry.Register("articles", hooks.NewContainer().
		On(hooks.AfterRead, func(ctx context.Context, records []*store.Record, isDescendant bool) error {
			logger.Debug("articles read",
				zap.Int("count", len(records)),
				zap.Bool("descendant", isDescendant),
			)
			return nil
		}))
	return registry
}

// seed loads a small data set into the in-memory store.
func seed(ctx context.Context, mem *store.MemoryStore) error {
	records := []*store.Record{
		{
			Type: "people", ID: "1",
			Attributes: map[string]interface{}{"name": "Ada", "email": "ada@example.com", "verified": true},
		},
		{
			Type: "people", ID: "2",
			Attributes: map[string]interface{}{"name": "Grace", "email": "grace@example.com", "verified": false},
		},
		{
			Type: "tags", ID: "1",
			Attributes: map[string]interface{}{"name": "go"},
		},
		{
			Type: "articles", ID: "1",
			Attributes: map[string]interface{}{
				"title": "Hello JSON:API", "body": "...", "viewCount": 42,
				"publishedAt": time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			},
			ToOne:  map[string]*store.Identifier{"author": {Type: "people", ID: "1"}},
			ToMany: map[string][]*store.Identifier{"tags": {{Type: "tags", ID: "1"}}},
		},
		{
			Type: "comments", ID: "1",
			Attributes: map[string]interface{}{
				"body": "First!", "createdAt": time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
			},
			ToOne: map[string]*store.Identifier{
				"author":  {Type: "people", ID: "2"},
				"article": {Type: "articles", ID: "1"},
			},
		},
	}
	for _, record := range records {
		if _, err := mem.Create(ctx, record); err != nil {
			return err
		}
	}
	return mem.AddToRelationship(ctx,
		&store.Identifier{Type: "articles", ID: "1"}, "comments",
		[]*store.Identifier{{Type: "comments", ID: "1"}})
}
