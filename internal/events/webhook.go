package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WebhookNotifier posts each event to a single downstream endpoint, signed
// with a shared secret. Topics limits delivery when non-empty.
type WebhookNotifier struct {
	URL    string
	Secret string
	Topics []string
	Client *http.Client
	Now    func() time.Time
}

// NewWebhookNotifier validates endpoint and builds a notifier with a traced
// client.
func NewWebhookNotifier(endpoint, secret string, timeout time.Duration, topics ...string) (*WebhookNotifier, error) {
	if err := validateURL(endpoint); err != nil {
		return nil, err
	}
	return &WebhookNotifier{URL: endpoint, Secret: secret, Topics: topics, Client: WebhookClient(timeout)}, nil
}

// WebhookClient returns an HTTP client whose requests carry trace context.
func WebhookClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Signature is hex HMAC-SHA256 over "<ts>.<eventID>.<body>".
func Signature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.URL == "" {
		return nil
	}
	if len(n.Topics) > 0 && !slices.Contains(n.Topics, event.Topic) {
		return nil
	}
	ctx, span := otel.Tracer("events.Webhook").Start(ctx, "WebhookNotifier.Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.topic", event.Topic),
		attribute.String("event.id", event.ID),
	)

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	ts := now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "toko-pricing-events/1.0")
	req.Header.Set("X-Event-ID", event.ID)
	req.Header.Set("X-Event-Topic", event.Topic)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if n.Secret != "" {
		req.Header.Set("X-Signature", Signature(n.Secret, ts, event.ID, body))
	}

	client := n.Client
	if client == nil {
		client = WebhookClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deliver")
		return fmt.Errorf("webhook %s: %w", event.Topic, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook %s: status %d", event.Topic, resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if host := parsed.Hostname(); host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return errors.New("http webhook only allowed for localhost")
	default:
		return errors.New("webhook url must be http or https")
	}
}
