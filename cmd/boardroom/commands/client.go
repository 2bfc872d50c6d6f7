package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/session"
)

// app holds the state shared by every subcommand.
type app struct {
	server  string
	user    string
	verbose bool

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
	client *http.Client
}

func (a *app) setup(errOut, out io.Writer) {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.out = out
	a.errOut = errOut
	a.logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	if a.client == nil {
		// Streams stay open for as long as a reply takes, so no client timeout.
		a.client = &http.Client{}
	}
}

func (a *app) baseURL() string {
	return strings.TrimRight(a.server, "/")
}

func (a *app) transport() *session.HTTPTransport {
	return session.NewHTTPTransport(a.baseURL(), a.user, a.client)
}

// call performs a JSON request against the server and decodes the response
// into out when it is non-nil.
func (a *app) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := a.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, out)
}

// upload posts a raw body, such as an audio file, and decodes the JSON reply.
func (a *app) upload(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return a.send(req, out)
}

func (a *app) send(req *http.Request, out any) error {
	req.Header.Set("X-User-ID", a.user)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return session.DecodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

type personaView struct {
	ID          persona.ID   `json:"id"`
	Name        string       `json:"name"`
	Role        string       `json:"role"`
	Description string       `json:"description"`
	Expertise   []string     `json:"expertise"`
	Composite   bool         `json:"composite"`
	Default     bool         `json:"default"`
	Members     []persona.ID `json:"members,omitempty"`
}

func (a *app) personas(ctx context.Context) ([]personaView, error) {
	var views []personaView
	if err := a.call(ctx, http.MethodGet, "/api/personas", nil, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// registry mirrors the server's catalog order so legacy messages resolve to
// the same default persona on both sides.
func (a *app) registry(ctx context.Context) (*persona.Registry, error) {
	views, err := a.personas(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.Default {
			return persona.Default().WithDefault(v.ID)
		}
	}
	return persona.Default(), nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
