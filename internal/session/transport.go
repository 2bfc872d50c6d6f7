package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alecci-media/boardroom/internal/protocol"
)

// EventStream is a finite, non-restartable sequence of stream events. Next
// returns io.EOF after the last event.
type EventStream interface {
	Next(ctx context.Context) (protocol.StreamEvent, error)
	Close() error
}

// Transport reaches the completion provider. Cancelling the context passed
// to Send or Resume must abort the underlying connection.
type Transport interface {
	Send(ctx context.Context, req protocol.ChatRequest) (EventStream, error)
	// Resume reattaches to an in-progress response, replaying events with a
	// sequence number above after. It returns ErrNoActiveStream when the
	// conversation has nothing in flight.
	Resume(ctx context.Context, conversationID string, after int) (EventStream, error)
	// Cancel asks the server to abort generation for the conversation.
	Cancel(ctx context.Context, conversationID string) error
}

const maxErrorBody = 4096

// HTTPTransport talks to a boardroom server over HTTP and server-sent events.
type HTTPTransport struct {
	baseURL string
	userID  string
	client  *http.Client
}

func NewHTTPTransport(baseURL, userID string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), userID: userID, client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, req protocol.ChatRequest) (EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return t.open(httpReq)
}

func (t *HTTPTransport) Resume(ctx context.Context, conversationID string, after int) (EventStream, error) {
	endpoint := fmt.Sprintf("%s/api/chat/%s/stream?after=%s", t.baseURL, url.PathEscape(conversationID), strconv.Itoa(after))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return t.open(httpReq)
}

func (t *HTTPTransport) Cancel(ctx context.Context, conversationID string) error {
	endpoint := fmt.Sprintf("%s/api/chat/%s/stream", t.baseURL, url.PathEscape(conversationID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	t.decorate(httpReq)
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cancel stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return DecodeError(resp)
}

func (t *HTTPTransport) decorate(req *http.Request) {
	if t.userID != "" {
		req.Header.Set("X-User-ID", t.userID)
	}
}

func (t *HTTPTransport) open(req *http.Request) (EventStream, error) {
	t.decorate(req)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		resp.Body.Close()
		return nil, ErrNoActiveStream
	case resp.StatusCode != http.StatusOK:
		defer resp.Body.Close()
		return nil, DecodeError(resp)
	}
	return newSSEStream(resp.Body), nil
}

// DecodeError turns an error response into a *protocol.ChatError when the
// body has that shape, and a plain error otherwise.
func DecodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var chatErr protocol.ChatError
	if err := json.Unmarshal(raw, &chatErr); err == nil && chatErr.Code != "" {
		return &chatErr
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// sseStream decodes "data: <json>" frames separated by blank lines.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReaderSize(body, 64*1024)}
}

func (s *sseStream) Next(ctx context.Context) (protocol.StreamEvent, error) {
	var data []byte
	for {
		if err := ctx.Err(); err != nil {
			return protocol.StreamEvent{}, err
		}
		line, err := s.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "" && len(data) > 0:
			return decodeEvent(data)
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, payload...)
		}
		// Lines starting with ':' are keep-alives and fall through.
		if err != nil {
			if !errors.Is(err, io.EOF) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return protocol.StreamEvent{}, ctxErr
				}
				return protocol.StreamEvent{}, err
			}
			if len(data) > 0 {
				return decodeEvent(data)
			}
			return protocol.StreamEvent{}, io.EOF
		}
	}
}

func decodeEvent(data []byte) (protocol.StreamEvent, error) {
	var ev protocol.StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return protocol.StreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}
	return ev, nil
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
