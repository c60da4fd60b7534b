package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/paperflow/internal/model"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Drive webhook endpoint",
		Long: `Start an HTTP server that accepts Drive change notifications and
sorts new inbox documents as they arrive.

Push notifications carry no file ids, so every notification triggers an
inbox sweep; documents already being processed or already marked are
skipped. POST /webhook also accepts {"file_id": "..."} for direct
invocation.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Drive's sync handshake carries no change; ack and move on.
		if r.Header.Get("X-Goog-Resource-State") == "sync" {
			w.WriteHeader(http.StatusOK)
			return
		}

		var body struct {
			FileID string `json:"file_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		// Ack before processing; Drive retries notifications that take
		// too long to answer, and the in-flight guard already dedupes.
		w.WriteHeader(http.StatusOK)

		go func() {
			pctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			if body.FileID != "" {
				processOne(pctx, app, body.FileID)
				return
			}
			sweepInbox(pctx, app)
		}()
	})

	server := &http.Server{
		Addr:              app.settings.ServeAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("webhook server listening", "addr", server.Addr)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func processOne(ctx context.Context, app *app, id string) {
	outcome, err := app.engine.Process(ctx, id)
	if outcome.Status == model.StatusError {
		slog.Error("document processing failed", "id", id, "error", err)
	}
}

func sweepInbox(ctx context.Context, app *app) {
	docs, err := app.vault.ListInbox(ctx, 0)
	if err != nil {
		slog.Error("inbox sweep failed", "error", err)
		return
	}
	for _, doc := range docs {
		processOne(ctx, app, doc.ID)
	}
}
