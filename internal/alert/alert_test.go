package alert

import (
	"context"
	"crypto-alert-notifier/internal/metrics"
	"crypto-alert-notifier/internal/notify"
	"crypto-alert-notifier/internal/price"
	"crypto-alert-notifier/internal/types"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeRepo struct {
	mu         sync.Mutex
	alerts     map[string]*types.Alert
	order      []string
	fulfilled  []string
	fulfillErr error
	listErr    error
}

func newFakeRepo(alerts ...types.Alert) *fakeRepo {
	r := &fakeRepo{alerts: map[string]*types.Alert{}}
	for _, a := range alerts {
		a := a
		a.IsActive = true
		r.alerts[a.ID] = &a
		r.order = append(r.order, a.ID)
	}
	return r
}

func (r *fakeRepo) ListActive(context.Context) ([]types.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []types.Alert
	for _, id := range r.order {
		if a := r.alerts[id]; a.IsActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) Fulfill(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fulfilled = append(r.fulfilled, id)
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.fulfillErr != nil {
		return r.fulfillErr
	}
	if a, ok := r.alerts[id]; ok && a.IsActive {
		a.IsActive = false
		a.IsFulfilled = true
	}
	return nil
}

func (r *fakeRepo) active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alerts[id].IsActive
}

type fakeFetcher struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  map[string]int
}

func (f *fakeFetcher) FetchAll(_ context.Context, symbols []string) map[string]types.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	out := map[string]types.Quote{}
	for _, s := range symbols {
		f.calls[s]++
		if p, ok := f.prices[s]; ok {
			out[s] = types.Quote{Symbol: s, Price: p}
		} else {
			out[s] = types.Quote{Symbol: s, Err: price.ErrMissingField}
		}
	}
	return out
}

type sent struct {
	alertID string
	price   float64
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, a types.Alert, p float64) error {
	if a.NotificationData == "" {
		return notify.ErrNoEndpoint
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sent{alertID: a.ID, price: p, message: notify.RenderMessage(a, p)})
	return nil
}

func alertFor(id, symbol string, target float64, above bool) types.Alert {
	return types.Alert{
		ID:               id,
		UserID:           "user-" + id,
		Username:         "name-" + id,
		Symbol:           symbol,
		TargetPrice:      target,
		Condition:        above,
		NotificationData: "https://hooks.example/" + id,
	}
}

func TestTriggered(t *testing.T) {
	tests := []struct {
		name   string
		above  bool
		target float64
		price  float64
		want   bool
	}{
		{"above crossed", true, 100, 100.01, true},
		{"above equal", true, 100, 100, false},
		{"above under", true, 100, 99, false},
		{"below crossed", false, 100, 99.99, true},
		{"below equal", false, 100, 100, false},
		{"below over", false, 100, 101, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := alertFor("x", "BTC", tt.target, tt.above)
			if got := Triggered(a, tt.price); got != tt.want {
				t.Errorf("Triggered(%v, target %v, price %v) = %v, want %v", tt.above, tt.target, tt.price, got, tt.want)
			}
		})
	}
}

func TestGroupBySymbol(t *testing.T) {
	groups := GroupBySymbol([]types.Alert{
		alertFor("1", "ETH", 1, true),
		alertFor("2", "BTC", 1, true),
		alertFor("3", "ETH", 2, true),
		alertFor("4", "SOL", 1, true),
		alertFor("5", "BTC", 2, true),
	})

	want := []struct {
		symbol string
		ids    []string
	}{
		{"ETH", []string{"1", "3"}},
		{"BTC", []string{"2", "5"}},
		{"SOL", []string{"4"}},
	}
	if len(groups) != len(want) {
		t.Fatalf("groups: got %d, want %d", len(groups), len(want))
	}
	for i, w := range want {
		if groups[i].Symbol != w.symbol {
			t.Errorf("group %d: got %s, want %s", i, groups[i].Symbol, w.symbol)
		}
		var ids []string
		for _, a := range groups[i].Alerts {
			ids = append(ids, a.ID)
		}
		if strings.Join(ids, ",") != strings.Join(w.ids, ",") {
			t.Errorf("group %s ids: got %v, want %v", w.symbol, ids, w.ids)
		}
	}
}

func TestRunCycle_BTCScenario(t *testing.T) {
	repo := newFakeRepo(alertFor("btc-1", "BTC", 50000, true))
	fetcher := &fakeFetcher{prices: map[string]float64{"BTC": 50001}}
	notifier := &fakeNotifier{}

	report, err := NewEvaluator(repo, fetcher, notifier, 4, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(notifier.sent))
	}
	msg := notifier.sent[0].message
	if !strings.Contains(msg, "BTC") || !strings.Contains(msg, "$50,001.0000") {
		t.Errorf("message: %q", msg)
	}
	if len(repo.fulfilled) != 1 || repo.fulfilled[0] != "btc-1" {
		t.Errorf("fulfilled: got %v, want [btc-1]", repo.fulfilled)
	}
	if report.Triggered != 1 || report.Notified != 1 || report.Fulfilled != 1 {
		t.Errorf("report: %+v", report)
	}
}

func TestRunCycle_OneOfTwoETH(t *testing.T) {
	repo := newFakeRepo(
		alertFor("eth-up", "ETH", 2000, true),
		alertFor("eth-up-far", "ETH", 3000, true),
	)
	fetcher := &fakeFetcher{prices: map[string]float64{"ETH": 2500}}
	notifier := &fakeNotifier{}

	if _, err := NewEvaluator(repo, fetcher, notifier, 4, nil).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].alertID != "eth-up" {
		t.Errorf("notifications: %+v", notifier.sent)
	}
	if len(repo.fulfilled) != 1 || repo.fulfilled[0] != "eth-up" {
		t.Errorf("fulfilled: %v", repo.fulfilled)
	}
	if !repo.active("eth-up-far") {
		t.Error("eth-up-far should remain active")
	}
	if fetcher.calls["ETH"] != 1 {
		t.Errorf("ETH fetched %d times, want 1", fetcher.calls["ETH"])
	}
}

func TestRunCycle_OneFetchPerSymbol(t *testing.T) {
	var alerts []types.Alert
	for i := 0; i < 25; i++ {
		alerts = append(alerts, alertFor(string(rune('a'+i)), "DOGE", 1, true))
	}
	repo := newFakeRepo(alerts...)
	fetcher := &fakeFetcher{prices: map[string]float64{"DOGE": 0.5}}

	if _, err := NewEvaluator(repo, fetcher, &fakeNotifier{}, 4, nil).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if fetcher.calls["DOGE"] != 1 {
		t.Errorf("DOGE fetched %d times, want 1", fetcher.calls["DOGE"])
	}
}

func TestRunCycle_FailedQuoteSkipsSymbol(t *testing.T) {
	repo := newFakeRepo(
		alertFor("xyz-1", "XYZ", 1, true),
		alertFor("xyz-2", "XYZ", 1e9, false),
		alertFor("btc-1", "BTC", 100, true),
	)
	fetcher := &fakeFetcher{prices: map[string]float64{"BTC": 101}}
	notifier := &fakeNotifier{}

	report, err := NewEvaluator(repo, fetcher, notifier, 4, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	for _, s := range notifier.sent {
		if strings.HasPrefix(s.alertID, "xyz") {
			t.Errorf("unexpected notification for %s", s.alertID)
		}
	}
	for _, id := range repo.fulfilled {
		if strings.HasPrefix(id, "xyz") {
			t.Errorf("unexpected fulfill for %s", id)
		}
	}
	if len(repo.fulfilled) != 1 {
		t.Errorf("fulfilled: got %v, want [btc-1]", repo.fulfilled)
	}
	if report.Symbols != 2 || report.Priced != 1 {
		t.Errorf("report: %+v", report)
	}
}

func TestRunCycle_NoEndpointNeverFulfills(t *testing.T) {
	a := alertFor("bare", "BTC", 1, true)
	a.NotificationData = ""
	repo := newFakeRepo(a)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	report, err := NewEvaluator(repo, &fakeFetcher{prices: map[string]float64{"BTC": 2}}, &fakeNotifier{}, 4, m).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(repo.fulfilled) != 0 {
		t.Errorf("fulfilled: got %v, want none", repo.fulfilled)
	}
	if report.Triggered != 1 || report.Notified != 0 {
		t.Errorf("report: %+v", report)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(metrics.ResultSkipped)); got != 1 {
		t.Errorf("skipped notifications: got %v, want 1", got)
	}
}

func TestRunCycle_FulfillFailureIsUnconfirmed(t *testing.T) {
	repo := newFakeRepo(alertFor("btc-1", "BTC", 1, true))
	repo.fulfillErr = errors.New("connection reset")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	notifier := &fakeNotifier{}

	report, err := NewEvaluator(repo, &fakeFetcher{prices: map[string]float64{"BTC": 2}}, notifier, 4, m).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("notifications: got %d, want 1", len(notifier.sent))
	}
	if report.Unconfirmed != 1 || report.Fulfilled != 0 {
		t.Errorf("report: %+v", report)
	}
	if got := testutil.ToFloat64(m.FulfillmentsTotal.WithLabelValues(metrics.ResultUnconfirmed)); got != 1 {
		t.Errorf("unconfirmed fulfillments: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(metrics.ResultFailed)); got != 0 {
		t.Errorf("unconfirmed fulfillment must not count as failed delivery, got %v", got)
	}
}

// cancellingNotifier delivers and then cancels the cycle, as a SIGTERM
// arriving right after the POST would.
type cancellingNotifier struct {
	cancel context.CancelFunc
}

func (n *cancellingNotifier) Notify(context.Context, types.Alert, float64) error {
	n.cancel()
	return nil
}

func TestRunCycle_FulfillSurvivesShutdownAfterDelivery(t *testing.T) {
	repo := newFakeRepo(alertFor("btc-1", "BTC", 1, true))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report, err := NewEvaluator(repo, &fakeFetcher{prices: map[string]float64{"BTC": 2}}, &cancellingNotifier{cancel: cancel}, 4, nil).RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Fulfilled != 1 || report.Unconfirmed != 0 {
		t.Errorf("report: %+v", report)
	}
	if repo.active("btc-1") {
		t.Error("delivered alert must be fulfilled even when the cycle is cancelled")
	}
}

func TestRunCycle_EmptyStore(t *testing.T) {
	fetcher := &fakeFetcher{}
	report, err := NewEvaluator(newFakeRepo(), fetcher, &fakeNotifier{}, 4, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Active != 0 || len(fetcher.calls) != 0 {
		t.Errorf("empty cycle should not fetch quotes: report %+v calls %v", report, fetcher.calls)
	}
}

func TestRunCycle_ListError(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("store down")
	if _, err := NewEvaluator(repo, &fakeFetcher{}, &fakeNotifier{}, 4, nil).RunCycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// End to end through the real HTTP quote source and webhook sink: a 500 from
// the sink leaves the alert active and it is re-evaluated with a fresh quote.
func TestRunCycle_WebhookFailureRetriesNextCycle(t *testing.T) {
	var quoteCalls, posts atomic.Int32
	quotes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quoteCalls.Add(1)
		w.Write([]byte(`{"current_price": 50001}`))
	}))
	defer quotes.Close()

	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer hook.Close()

	a := alertFor("btc-1", "BTC", 50000, true)
	a.NotificationData = hook.URL
	repo := newFakeRepo(a)

	fetcher := price.NewFetcher(price.NewHTTPSource(quotes.URL, true, time.Second), 2, 0, nil)
	evaluator := NewEvaluator(repo, fetcher, notify.NewWebhook("tok", time.Second), 2, nil)

	if _, err := evaluator.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if len(repo.fulfilled) != 0 || !repo.active("btc-1") {
		t.Fatalf("alert must stay active after HTTP 500, fulfilled=%v", repo.fulfilled)
	}

	status.Store(http.StatusOK)
	if _, err := evaluator.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if quoteCalls.Load() != 2 || posts.Load() != 2 {
		t.Errorf("quote calls %d, posts %d; want 2 and 2", quoteCalls.Load(), posts.Load())
	}
	if repo.active("btc-1") {
		t.Error("alert should be fulfilled after successful delivery")
	}

	if _, err := evaluator.RunCycle(context.Background()); err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	if posts.Load() != 2 {
		t.Errorf("fulfilled alert was notified again: posts=%d", posts.Load())
	}
}

func TestRunCycle_SiblingFailureDoesNotBlock(t *testing.T) {
	repo := newFakeRepo(
		alertFor("a", "BTC", 1, true),
		alertFor("b", "BTC", 1, true),
	)
	n := &selectiveNotifier{fail: map[string]bool{"a": true}}

	report, err := NewEvaluator(repo, &fakeFetcher{prices: map[string]float64{"BTC": 2}}, n, 1, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Fulfilled != 1 || !repo.active("a") || repo.active("b") {
		t.Errorf("report %+v, a active=%v, b active=%v", report, repo.active("a"), repo.active("b"))
	}
}

type selectiveNotifier struct {
	fail map[string]bool
}

func (n *selectiveNotifier) Notify(_ context.Context, a types.Alert, _ float64) error {
	if n.fail[a.ID] {
		panic("sink exploded")
	}
	return nil
}
