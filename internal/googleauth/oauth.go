// Package googleauth runs the installed-app OAuth2 flow shared by every
// Google collaborator (Drive, Calendar, Tasks, Photos) and persists the
// refresh token between runs.
package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/tasks/v1"

	"github.com/Veraticus/paperflow/internal/config"
)

// photosAppendScope allows uploading media items created by this app.
// There is no generated Go client for the Photos Library API, so the scope
// constant lives here.
const photosAppendScope = "https://www.googleapis.com/auth/photoslibrary.appendonly"

// Scopes is everything the pipeline touches, requested in one consent.
var Scopes = []string{
	drive.DriveScope,
	calendar.CalendarEventsScope,
	tasks.TasksScope,
	photosAppendScope,
}

// AuthenticateInteractive performs the OAuth2 authorization-code flow,
// receiving the callback on a local listener.
func AuthenticateInteractive(ctx context.Context, cfg config.OAuthSettings) (*oauth2.Token, error) {
	oauthConfig := newOAuthConfig(cfg)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{Addr: ":8080", Handler: mux}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- fmt.Errorf("no authorization code received")
			_, _ = fmt.Fprintf(w, `<html><body>
				<h1>Authentication Failed</h1>
				<p>No authorization code received. Please try again.</p>
				<script>window.setTimeout(function(){window.close();}, 3000);</script>
			</body></html>`)
			return
		}

		codeChan <- code
		_, _ = fmt.Fprintf(w, `<html><body>
			<h1>Authentication Successful!</h1>
			<p>You can close this window and return to the terminal.</p>
			<script>window.setTimeout(function(){window.close();}, 3000);</script>
		</body></html>`)
	})

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errorChan <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	slog.Info("🔐 Google Authentication Required")
	slog.Info("Please visit this URL to authenticate", "url", authURL)
	slog.Info("Waiting for authentication...")

	var authCode string
	select {
	case authCode = <-codeChan:
		slog.Info("Received authorization code")
	case err := <-errorChan:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-time.After(5 * time.Minute):
		_ = server.Shutdown(ctx)
		return nil, fmt.Errorf("authentication timeout - no response received within 5 minutes")
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("Error shutting down callback server", "error", err)
	}

	token, err := oauthConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if cfg.TokenFile != "" {
		path := config.ExpandPath(cfg.TokenFile)
		if err := saveToken(path, token); err != nil {
			slog.Warn("Failed to save token to file", "error", err, "file", path)
		} else {
			slog.Info("Token saved successfully", "file", path)
		}
	}

	return token, nil
}

// LoadToken loads a token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func saveToken(path string, token *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

// GetOrCreateToken loads the persisted token, refreshing it when expired,
// and falls back to the interactive flow when no token exists.
func GetOrCreateToken(ctx context.Context, cfg config.OAuthSettings) (*oauth2.Token, error) {
	if cfg.TokenFile != "" {
		token, err := LoadToken(config.ExpandPath(cfg.TokenFile))
		if err == nil {
			slog.Info("Loaded existing token from file")
			return refreshIfNeeded(ctx, cfg, token)
		}
		slog.Info("No existing token found, starting OAuth2 flow")
	}

	return AuthenticateInteractive(ctx, cfg)
}

// Client builds an HTTP client that refreshes the token transparently and
// persists refreshed tokens back to the token file.
func Client(ctx context.Context, cfg config.OAuthSettings, token *oauth2.Token) *http.Client {
	source := newOAuthConfig(cfg).TokenSource(ctx, token)
	return oauth2.NewClient(ctx, &savingTokenSource{
		source:    oauth2.ReuseTokenSource(token, source),
		tokenFile: config.ExpandPath(cfg.TokenFile),
		last:      token.AccessToken,
	})
}

func refreshIfNeeded(ctx context.Context, cfg config.OAuthSettings, token *oauth2.Token) (*oauth2.Token, error) {
	if token.Valid() {
		return token, nil
	}

	slog.Info("Token expired, refreshing...")

	newToken, err := newOAuthConfig(cfg).TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if cfg.TokenFile != "" {
		if err := saveToken(config.ExpandPath(cfg.TokenFile), newToken); err != nil {
			slog.Warn("Failed to save refreshed token", "error", err)
		}
	}

	return newToken, nil
}

func newOAuthConfig(cfg config.OAuthSettings) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       Scopes,
	}
}

// savingTokenSource writes tokens to disk whenever the access token
// rotates, so long-running serve processes survive restarts. Token is
// called concurrently by every Google client sharing the HTTP client.
type savingTokenSource struct {
	source    oauth2.TokenSource
	tokenFile string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenFile != "" && token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := saveToken(s.tokenFile, token); err != nil {
			slog.Warn("Failed to persist rotated token", "error", err)
		}
	}
	return token, nil
}
