package price

import (
	"context"
	"net/http"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CoinpaprikaSource resolves symbols through the CoinPaprika search API and
// reads the USD quote of the best match.
type CoinpaprikaSource struct {
	client *coinpaprika.Client
}

func NewCoinpaprikaSource(apiProKey string, timeout time.Duration) *CoinpaprikaSource {
	httpClient := &http.Client{Timeout: timeout}
	if apiProKey != "" {
		return &CoinpaprikaSource{client: coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))}
	}
	return &CoinpaprikaSource{client: coinpaprika.NewClient(httpClient)}
}

func (s *CoinpaprikaSource) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	coin, err := s.searchCoin(symbol)
	if err != nil {
		return 0, err
	}

	ticker, err := s.client.Tickers.GetByID(*coin.ID, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return 0, errors.Wrapf(err, "ticker %s", *coin.ID)
	}

	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return 0, ErrMissingField
	}
	if *usd.Price <= 0 {
		return 0, ErrMalformedBody
	}
	return *usd.Price, nil
}

func (s *CoinpaprikaSource) searchCoin(symbol string) (*coinpaprika.Coin, error) {
	result, err := s.client.Search.Search(&coinpaprika.SearchOptions{
		Query:      symbol,
		Categories: "currencies",
		Modifier:   "symbol_search",
	})
	if err != nil {
		return nil, errors.Wrap(err, "coin search")
	}
	if len(result.Currencies) == 0 || result.Currencies[0].ID == nil {
		return nil, errors.Errorf("no coin found for symbol %s", symbol)
	}

	log.Debugf("Best match for symbol '%s' is: %s", symbol, *result.Currencies[0].ID)
	return result.Currencies[0], nil
}
