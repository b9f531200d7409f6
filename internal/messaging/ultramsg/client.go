package ultramsg

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

const (
	defaultBaseURL   = "https://api.ultramsg.com"
	defaultUserAgent = "multiplay-assistant/2.0"
	defaultTimeout   = 15 * time.Second
)

var tracer = otel.Tracer("multiplay.internal.messaging.ultramsg")

// Config controls how the UltraMsg client behaves.
type Config struct {
	BaseURL  string
	Instance string
	Token    string
	Timeout  time.Duration
	// RatePerSecond paces outbound requests; zero disables pacing.
	RatePerSecond float64
	HTTPClient    *http.Client
	Logger        *logging.Logger
	UserAgent     string
}

// Client sends WhatsApp messages through an UltraMsg instance.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("ultramsg: token is required")
	}
	instance := strings.Trim(strings.TrimSpace(cfg.Instance), "/")
	if instance == "" {
		return nil, errors.New("ultramsg: instance is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/") + "/" + instance

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// SendText posts a chat message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" || strings.TrimSpace(body) == "" {
		return errors.New("ultramsg: recipient and body required")
	}
	payload, err := json.Marshal(struct {
		Token string `json:"token"`
		To    string `json:"to"`
		Body  string `json:"body"`
	}{Token: c.token, To: to, Body: body})
	if err != nil {
		return fmt.Errorf("ultramsg: marshal chat body: %w", err)
	}
	resp, err := c.invoke(ctx, "text", "/messages/chat", payload, "application/json")
	if err != nil {
		return err
	}
	c.logger.Info("message sent", "to", to, "id", resp.ID)
	return nil
}

// SendMedia posts an image with a caption.
func (c *Client) SendMedia(ctx context.Context, to, mediaURL, caption string) error {
	if strings.TrimSpace(to) == "" || strings.TrimSpace(mediaURL) == "" {
		return errors.New("ultramsg: recipient and image url required")
	}
	form := url.Values{}
	form.Set("token", c.token)
	form.Set("to", to)
	form.Set("image", mediaURL)
	form.Set("caption", caption)
	resp, err := c.invoke(ctx, "media", "/messages/image", []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	c.logger.Info("image sent", "to", to, "id", resp.ID)
	return nil
}

// invoke performs a single attempt; failed sends are not retried.
func (c *Client) invoke(ctx context.Context, kind, path string, body []byte, contentType string) (*SendResponse, error) {
	ctx, span := tracer.Start(ctx, "ultramsg.send", trace.WithAttributes(attribute.String("ultramsg.kind", kind)))
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ultramsg: pacing: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ultramsg: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ultramsg: %s send: %w", kind, ctx.Err())
		}
		return nil, fmt.Errorf("ultramsg: http error: %w", err)
	}
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("ultramsg: read response: %w", readErr)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: logging.Preview(string(data), 200)}
		span.RecordError(apiErr)
		return nil, apiErr
	}
	return decodeSendResponse(data)
}
