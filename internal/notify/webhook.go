package notify

import (
	"bytes"
	"context"
	"crypto-alert-notifier/internal/types"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maxDrainBytes caps how much of a successful response is read before closing.
const maxDrainBytes = 4 << 10

// ErrNoEndpoint is returned for alerts without a notification endpoint.
var ErrNoEndpoint = errors.New("alert has no notification endpoint")

// DeliveryError is a response from the sink other than 200 or 204.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

type payload struct {
	Content string `json:"content"`
}

// Webhook posts notifications as {"content": message} with a bearer token.
type Webhook struct {
	token  string
	client *http.Client
}

func NewWebhook(token string, timeout time.Duration) *Webhook {
	return &Webhook{
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Notify(ctx context.Context, a types.Alert, currentPrice float64) error {
	if a.NotificationData == "" {
		return ErrNoEndpoint
	}
	return w.post(ctx, a.NotificationData, RenderMessage(a, currentPrice))
}

func (w *Webhook) post(ctx context.Context, url, message string) error {
	body, err := json.Marshal(payload{Content: message})
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "http post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes)); err != nil {
		log.Debugf("Failed to drain webhook response from %s: %v", url, err)
	}
	return nil
}
