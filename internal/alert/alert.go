package alert

import (
	"context"
	"crypto-alert-notifier/internal/metrics"
	"crypto-alert-notifier/internal/notify"
	"crypto-alert-notifier/internal/types"
	"crypto-alert-notifier/lib/helpers"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultNotifyWorkers = 16

	// fulfillTimeout bounds the store write that follows a delivered notification.
	fulfillTimeout = 10 * time.Second
)

// Repository is the alert store used by a cycle.
type Repository interface {
	ListActive(ctx context.Context) ([]types.Alert, error)
	Fulfill(ctx context.Context, id string) error
}

// QuoteFetcher returns one quote per requested symbol.
type QuoteFetcher interface {
	FetchAll(ctx context.Context, symbols []string) map[string]types.Quote
}

// Notifier delivers the notification for a triggered alert.
type Notifier interface {
	Notify(ctx context.Context, a types.Alert, currentPrice float64) error
}

// Group is the set of active alerts sharing one symbol.
type Group struct {
	Symbol string
	Alerts []types.Alert
}

// Report summarises one cycle.
type Report struct {
	Active      int
	Symbols     int
	Priced      int
	Triggered   int
	Notified    int
	Fulfilled   int
	Unconfirmed int
}

// Evaluator runs the alert evaluation cycle.
type Evaluator struct {
	repo     Repository
	fetcher  QuoteFetcher
	notifier Notifier
	workers  int
	metrics  *metrics.Metrics
}

// NewEvaluator builds an Evaluator. workers bounds concurrent notify+fulfill
// pairs; a non-positive value falls back to 16.
func NewEvaluator(repo Repository, fetcher QuoteFetcher, notifier Notifier, workers int, m *metrics.Metrics) *Evaluator {
	if workers <= 0 {
		workers = defaultNotifyWorkers
	}
	return &Evaluator{
		repo:     repo,
		fetcher:  fetcher,
		notifier: notifier,
		workers:  workers,
		metrics:  m,
	}
}

// Triggered reports whether price crosses the alert threshold. Equality never triggers.
func Triggered(a types.Alert, price float64) bool {
	return (a.Condition && price > a.TargetPrice) || (!a.Condition && price < a.TargetPrice)
}

// GroupBySymbol partitions alerts by symbol in order of first appearance.
func GroupBySymbol(alerts []types.Alert) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, a := range alerts {
		i, ok := index[a.Symbol]
		if !ok {
			i = len(groups)
			index[a.Symbol] = i
			groups = append(groups, Group{Symbol: a.Symbol})
		}
		groups[i].Alerts = append(groups[i].Alerts, a)
	}
	return groups
}

// RunCycle evaluates every active alert once. It returns only when all
// triggered alerts have been notified and fulfilled or have failed.
func (e *Evaluator) RunCycle(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	log.Info("📡 Looking for active alerts...")
	alerts, err := e.repo.ListActive(ctx)
	if err != nil {
		return report, errors.Wrap(err, "list active alerts")
	}
	report.Active = len(alerts)
	defer func() { e.metrics.ObserveCycle(report.Active, time.Since(start)) }()

	if len(alerts) == 0 {
		log.Info("⏳ No active alerts right now.")
		return report, nil
	}
	log.Infof("📢 %s active alerts found.", humanize.Comma(int64(len(alerts))))

	groups := GroupBySymbol(alerts)
	report.Symbols = len(groups)

	symbols := make([]string, 0, len(groups))
	for _, g := range groups {
		symbols = append(symbols, g.Symbol)
	}
	quotes := e.fetcher.FetchAll(ctx, symbols)

	type hit struct {
		alert types.Alert
		price float64
	}
	var hits []hit
	for _, g := range groups {
		q, ok := quotes[g.Symbol]
		if !ok || !q.OK() {
			continue
		}
		report.Priced++

		for _, a := range g.Alerts {
			if !Triggered(a, q.Price) {
				continue
			}
			log.Infof("🚨 ALERT TRIGGERED: %s (user %s) → $%s %s $%s",
				a.Symbol, a.UserID,
				helpers.FormatPrice(q.Price, 4), a.Direction(), helpers.FormatPrice(a.TargetPrice, 4))
			hits = append(hits, hit{alert: a, price: q.Price})
		}
	}
	report.Triggered = len(hits)

	var notified, fulfilled, unconfirmed int64
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, h := range hits {
		h := h
		g.Go(func() error {
			switch e.dispatch(ctx, h.alert, h.price) {
			case outcomeFulfilled:
				atomic.AddInt64(&notified, 1)
				atomic.AddInt64(&fulfilled, 1)
			case outcomeUnconfirmed:
				atomic.AddInt64(&notified, 1)
				atomic.AddInt64(&unconfirmed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Notified = int(notified)
	report.Fulfilled = int(fulfilled)
	report.Unconfirmed = int(unconfirmed)
	return report, nil
}

type outcome int

const (
	outcomeNotDelivered outcome = iota
	outcomeFulfilled
	outcomeUnconfirmed
)

// dispatch notifies one triggered alert and, only after a confirmed
// delivery, marks it fulfilled.
func (e *Evaluator) dispatch(ctx context.Context, a types.Alert, price float64) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered while dispatching alert %s (user %s): %v", a.ID, a.UserID, r)
			result = outcomeNotDelivered
		}
	}()

	if err := e.notifier.Notify(ctx, a, price); err != nil {
		if errors.Is(err, notify.ErrNoEndpoint) {
			log.Warnf("⚠️ No notification URL for %s (user %s, alert %s)", a.Symbol, a.UserID, a.ID)
			e.metrics.Notification(metrics.ResultSkipped)
			return outcomeNotDelivered
		}
		log.Errorf("❌ Failed to send notification for %s (user %s, alert %s): %v", a.Symbol, a.UserID, a.ID, err)
		e.metrics.Notification(metrics.ResultFailed)
		return outcomeNotDelivered
	}
	e.metrics.Notification(metrics.ResultDelivered)

	// Shutdown must not interrupt the write once the user has been notified.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fulfillTimeout)
	defer cancel()
	if err := e.repo.Fulfill(fctx, a.ID); err != nil {
		log.Errorf("❗ Alert %s (user %s, %s) notified but not fulfilled; it may notify again next cycle: %v",
			a.ID, a.UserID, a.Symbol, err)
		e.metrics.Fulfillment(metrics.ResultUnconfirmed)
		return outcomeUnconfirmed
	}
	e.metrics.Fulfillment(metrics.ResultFulfilled)

	log.Infof("✅ Notification sent for %s - user %s", a.Symbol, a.UserID)
	return outcomeFulfilled
}
