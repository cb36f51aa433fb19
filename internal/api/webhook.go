package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"rally-tagger/internal/config"
	"rally-tagger/internal/constants"
	"rally-tagger/internal/domain"
)

const (
	deliveryAttempts = 3
	retryBackoff     = 500 * time.Millisecond
)

// WebhookClient posts session completion events to the configured URL. With
// no URL configured every delivery is a no-op.
type WebhookClient struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger

	statsMu sync.RWMutex
	stats   DeliveryStats
}

type DeliveryStats struct {
	Delivered   int       `json:"delivered"`
	Failed      int       `json:"failed"`
	LastStatus  int       `json:"last_status"`
	LastAttempt time.Time `json:"last_attempt"`
}

func NewWebhookClient(cfg *config.Config, logger zerolog.Logger) *WebhookClient {
	return &WebhookClient{
		url: cfg.WebhookURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.WebhookTimeout,
			WriteTimeout:        constants.WebhookTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

func (c *WebhookClient) Enabled() bool {
	return c.url != ""
}

func (c *WebhookClient) Stats() DeliveryStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// Notify delivers the event, retrying transport errors and 5xx answers.
func (c *WebhookClient) Notify(ctx context.Context, event domain.CompletionEvent) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Kind, err)
	}
	deliveryID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		status, err := c.post(ctx, deliveryID, event.Kind, body)
		c.record(status, err == nil)
		if err == nil {
			c.logger.Info().
				Str("kind", string(event.Kind)).
				Str("set_id", event.SetID).
				Str("delivery_id", deliveryID).
				Int("attempt", attempt).
				Msg("completion event delivered")
			return nil
		}
		lastErr = err
		if status >= 400 && status < 500 {
			break
		}

		c.logger.Warn().Err(err).Int("attempt", attempt).Str("delivery_id", deliveryID).Msg("webhook delivery failed")
		if attempt == deliveryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return fmt.Errorf("failed to deliver %s event: %w", event.Kind, lastErr)
}

func (c *WebhookClient) post(ctx context.Context, deliveryID string, kind domain.EventKind, body []byte) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Delivery-ID", deliveryID)
	req.Header.Set("X-Event-Kind", string(kind))
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return 0, err
		}
	} else {
		if err := c.client.DoTimeout(req, resp, constants.WebhookTimeout); err != nil {
			return 0, err
		}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return status, fmt.Errorf("webhook answered %d", status)
	}
	return status, nil
}

func (c *WebhookClient) record(status int, ok bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if ok {
		c.stats.Delivered++
	} else {
		c.stats.Failed++
	}
	c.stats.LastStatus = status
	c.stats.LastAttempt = time.Now()
}
