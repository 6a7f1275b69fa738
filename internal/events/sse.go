package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/metrics"
)

// ErrUnauthorized is returned by SSEClient.Run when the server rejects the
// client's identity. The client does not reconnect after it.
var ErrUnauthorized = errors.New("event stream: not authorized")

// SSE client defaults.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 15 * time.Second
	DefaultMinRetryDelay  = 15 * time.Second
	DefaultMaxRetryDelay  = 30 * time.Second
)

const dataPrefix = "data: "

// heartbeatPattern matches the numeric payloads servers send to keep the
// connection alive.
var heartbeatPattern = regexp.MustCompile(`^[0-9]+$`)

// SSEConfig configures an SSEClient.
type SSEConfig struct {
	// Origin is the base URL; the client connects to Origin + "/sse".
	Origin     string
	Identifier string
	UserIDs    []string

	ConnectTimeout time.Duration
	// ReadTimeout closes a connection on which no line arrived for this long.
	ReadTimeout   time.Duration
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

func (c *SSEConfig) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MinRetryDelay <= 0 {
		c.MinRetryDelay = DefaultMinRetryDelay
	}
	if c.MaxRetryDelay < c.MinRetryDelay {
		c.MaxRetryDelay = c.MinRetryDelay
	}
}

// SSEClient keeps a server-sent event stream open and passes each batch of
// entity updates to a sink. After a failed or closed connection it retries
// after a random delay; a 403 response stops it for good.
type SSEClient struct {
	cfg     SSEConfig
	client  *http.Client
	sink    func([]entity.Update)
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	connected bool
	received  int
}

// NewSSEClient creates a client. logger and m may be nil.
func NewSSEClient(cfg SSEConfig, sink func([]entity.Update), logger *slog.Logger, m *metrics.Metrics) *SSEClient {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.ConnectTimeout
	return &SSEClient{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		sink:    sink,
		logger:  logger,
		metrics: m,
	}
}

// SSEStatus describes the client state.
type SSEStatus struct {
	Connected bool `json:"connected"`
	Received  int  `json:"received"`
}

// Status returns the connection state and the number of updates received.
func (c *SSEClient) Status() SSEStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SSEStatus{Connected: c.connected, Received: c.received}
}

// Run connects and reconnects until ctx is done or the server answers 403.
func (c *SSEClient) Run(ctx context.Context) error {
	for {
		err := c.connect(ctx)
		if errors.Is(err, ErrUnauthorized) {
			c.logger.Error("not authorized to connect to event stream, giving up", "origin", c.cfg.Origin)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := c.retryDelay()
		if err != nil {
			c.logger.Warn("event stream failed, reconnecting", "error", err, "delay", delay)
		} else {
			c.logger.Info("event stream closed, reconnecting", "delay", delay)
		}
		c.metrics.RecordSSEReconnect()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *SSEClient) retryDelay() time.Duration {
	span := c.cfg.MaxRetryDelay - c.cfg.MinRetryDelay
	if span <= 0 {
		return c.cfg.MinRetryDelay
	}
	return c.cfg.MinRetryDelay + rand.N(span)
}

// requestURL builds the stream URL. The identity travels as JSON in the
// _body parameter because the request is a GET.
func (c *SSEClient) requestURL() (string, error) {
	type userID struct {
		ID    string `json:"_id"`
		Value string `json:"value"`
	}
	body := struct {
		Format     string   `json:"_format"`
		Identifier string   `json:"identifier"`
		UserIDs    []userID `json:"userIds"`
	}{Format: "0", Identifier: c.cfg.Identifier, UserIDs: []userID{}}
	for _, id := range c.cfg.UserIDs {
		body.UserIDs = append(body.UserIDs, userID{ID: uuid.NewString(), Value: id})
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode stream request: %w", err)
	}
	return strings.TrimRight(c.cfg.Origin, "/") + "/sse?_body=" + url.QueryEscape(string(data)), nil
}

func (c *SSEClient) connect(ctx context.Context) error {
	rawURL, err := c.requestURL()
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("open event stream: unexpected status %s", resp.Status)
	}

	c.setConnected(true)
	defer c.setConnected(false)
	c.logger.Debug("event stream connected", "origin", c.cfg.Origin)

	// Drop the connection when the server goes quiet.
	idle := time.AfterFunc(c.cfg.ReadTimeout, cancel)
	defer idle.Stop()

	return c.read(resp.Body, func() { idle.Reset(c.cfg.ReadTimeout) })
}

func (c *SSEClient) read(body io.Reader, onLine func()) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine()
		updates, ok, err := ParseEvent(scanner.Text())
		if err != nil {
			c.logger.Warn("skipping malformed event", "error", err)
			continue
		}
		if !ok {
			continue
		}
		c.mu.Lock()
		c.received += len(updates)
		c.mu.Unlock()
		c.sink(updates)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func (c *SSEClient) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

// ParseEvent decodes one stream line. It reports false for lines that carry
// no updates: non-data lines, heartbeats and empty batches. The payload is a
// JSON array of updates or a single update object.
func ParseEvent(line string) ([]entity.Update, bool, error) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false, nil
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" || heartbeatPattern.MatchString(payload) {
		return nil, false, nil
	}

	var updates []entity.Update
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &updates); err != nil {
			return nil, false, fmt.Errorf("decode updates: %w", err)
		}
	} else {
		var u entity.Update
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return nil, false, fmt.Errorf("decode update: %w", err)
		}
		updates = []entity.Update{u}
	}
	return updates, len(updates) > 0, nil
}

// WriteSSE writes updates as one event and flushes when w supports it.
func WriteSSE(w io.Writer, updates []entity.Update) error {
	data, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("encode updates: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %s\n%s%s\n\n", uuid.NewString(), dataPrefix, data); err != nil {
		return err
	}
	flush(w)
	return nil
}

// WriteHeartbeat writes a numeric keep-alive event.
func WriteHeartbeat(w io.Writer, now time.Time) error {
	if _, err := fmt.Fprintf(w, "%s%d\n\n", dataPrefix, now.Unix()); err != nil {
		return err
	}
	flush(w)
	return nil
}

// SetSSEHeaders prepares a response for streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
