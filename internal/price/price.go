package price

import (
	"context"
	"crypto-alert-notifier/internal/metrics"
	"crypto-alert-notifier/internal/types"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultWorkers = 8

// Fetcher looks up one quote per distinct symbol with bounded concurrency.
type Fetcher struct {
	source  Source
	limiter *rate.Limiter
	workers int
	metrics *metrics.Metrics
}

// NewFetcher builds a Fetcher. A non-positive ratePerSecond disables rate
// limiting; a non-positive workers falls back to 8.
func NewFetcher(source Source, workers int, ratePerSecond float64, m *metrics.Metrics) *Fetcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return &Fetcher{
		source:  source,
		limiter: limiter,
		workers: workers,
		metrics: m,
	}
}

// FetchAll returns an entry for every symbol. Failed lookups carry a non-nil
// Err and are logged; FetchAll itself never fails.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) map[string]types.Quote {
	quotes := make(map[string]types.Quote, len(symbols))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(f.workers)

	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		symbol := symbol
		g.Go(func() error {
			q := f.fetch(ctx, symbol)
			mu.Lock()
			quotes[symbol] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

func (f *Fetcher) fetch(ctx context.Context, symbol string) (q types.Quote) {
	q.Symbol = symbol

	defer func() {
		if r := recover(); r != nil {
			q.Err = errors.Errorf("panic in quote source: %v", r)
			log.Errorf("❌ Error fetching price for %s: %v", symbol, q.Err)
			f.metrics.QuoteFailed("panic")
		}
	}()

	if err := f.limiter.Wait(ctx); err != nil {
		q.Err = errors.Wrap(err, "rate limiter")
		log.Warnf("⚠️ Quote for %s not fetched: %v", symbol, q.Err)
		f.metrics.QuoteFailed(FailureReason(err))
		return q
	}

	price, err := f.source.Quote(ctx, symbol)
	if err != nil {
		q.Err = err
		log.Warnf("⚠️ Invalid quote for %s: %v", symbol, err)
		f.metrics.QuoteFailed(FailureReason(err))
		return q
	}

	q.Price = price
	log.Infof("📊 %s → current price: $%s", symbol, humanize.FormatFloat("#,###.##", price))
	return q
}

// FailureReason classifies a quote error for metrics labels.
func FailureReason(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrMissingField):
		return ParseMissingField.String()
	case errors.Is(err, ErrMalformedBody):
		return ParseMalformedBody.String()
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
