package price

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// maxBodyBytes caps how much of a quote response is read.
const maxBodyBytes = 1 << 20

var (
	ErrMissingField  = errors.New("quote response has no price field")
	ErrMalformedBody = errors.New("quote response is malformed")
)

// StatusError is returned when the quote endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("quote endpoint returned HTTP %d", e.StatusCode)
}

// Source returns the current price of one symbol.
type Source interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// HTTPSource queries a quote endpoint of the form
// <baseURL>?symbol=<symbol>&crypto=<bool>.
type HTTPSource struct {
	baseURL string
	crypto  bool
	client  *http.Client
}

func NewHTTPSource(baseURL string, crypto bool, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		crypto:  crypto,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Quote(ctx context.Context, symbol string) (float64, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return 0, errors.Wrap(err, "invalid quote api url")
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("crypto", strconv.FormatBool(s.crypto))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, errors.Wrap(err, "build quote request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "quote request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, errors.Wrap(err, "read quote response")
	}

	result := ParseQuote(body)
	if err := result.Err(); err != nil {
		return 0, errors.Wrapf(err, "body %q", truncate(body, 200))
	}
	return result.Price, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
