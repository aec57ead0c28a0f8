package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// RemoteService implements DownloadService and ContentService against a
// running `tilawa serve`.
type RemoteService struct {
	BaseURL string
	Client  *http.Client
	Dialer  *websocket.Dialer
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ DownloadService = (*RemoteService)(nil)

// NewRemoteService creates a new remote service instance.
func NewRemoteService(baseURL string) *RemoteService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
		Dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *RemoteService) doRequest(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = s.ctx
	}
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		// Limit error body read to 1KB
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{}
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Message == "" {
			apiErr = &APIError{Code: CodeInternal, Message: fmt.Sprintf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func downloadPath(id string, action ...string) string {
	p := "/downloads/" + url.PathEscape(id)
	for _, a := range action {
		p += "/" + a
	}
	return p
}

// List returns every tracked download.
func (s *RemoteService) List() ([]download.Item, error) {
	var items []download.Item
	if err := s.doRequest(s.ctx, http.MethodGet, "/downloads", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetStatus returns a single download by id.
func (s *RemoteService) GetStatus(id string) (*download.Item, error) {
	var it download.Item
	if err := s.doRequest(s.ctx, http.MethodGet, downloadPath(id), nil, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// Add queues a new download.
func (s *RemoteService) Add(ctx context.Context, req AddRequest) (download.Item, error) {
	var it download.Item
	err := s.doRequest(ctx, http.MethodPost, "/downloads", req, &it)
	return it, err
}

// Retry restarts a failed download.
func (s *RemoteService) Retry(ctx context.Context, id string) (download.Item, error) {
	var it download.Item
	err := s.doRequest(ctx, http.MethodPost, downloadPath(id, "retry"), nil, &it)
	return it, err
}

// Cancel stops a download.
func (s *RemoteService) Cancel(ctx context.Context, id string) error {
	return s.doRequest(ctx, http.MethodPost, downloadPath(id, "cancel"), nil, nil)
}

// Delete cancels and removes a download.
func (s *RemoteService) Delete(ctx context.Context, id string) error {
	return s.doRequest(ctx, http.MethodDelete, downloadPath(id), nil, nil)
}

// ClearAll removes every download and all offline data.
func (s *RemoteService) ClearAll(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodDelete, "/downloads", nil, nil)
}

// Shutdown stops the service.
func (s *RemoteService) Shutdown() error {
	s.cancel()
	return nil
}

// StreamEvents returns a channel that receives real-time download events over
// the server's websocket. Dropped connections are redialed with backoff.
func (s *RemoteService) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan any, 100)
	go s.streamWithReconnect(ctx, ch)
	return ch, cancel, nil
}

// Publish emits an event into the service's event stream.
// Remote services do not accept client-side event injection.
func (s *RemoteService) Publish(msg any) error {
	return errors.New("publish not supported for remote service")
}

func (s *RemoteService) eventsURL() (string, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String(), nil
}

func (s *RemoteService) streamWithReconnect(ctx context.Context, ch chan any) {
	defer close(ch)
	backoff := 1 * time.Second
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		connected, err := s.connectWS(ctx, ch)
		if err == nil {
			return
		}
		if connected {
			backoff = 1 * time.Second
		}
		utils.Debug("remote: event stream dropped: %v", err)

		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// connectWS reads frames until the connection fails or ctx ends. It returns
// nil only when ctx ended.
func (s *RemoteService) connectWS(ctx context.Context, ch chan any) (bool, error) {
	endpoint, err := s.eventsURL()
	if err != nil {
		return false, err
	}
	conn, resp, err := s.Dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to connect to event stream: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || s.ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		msg, err := events.Decode(data)
		if err != nil {
			continue
		}

		// Non-blocking send
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full to prevent blocking the reader
		}
	}
}
