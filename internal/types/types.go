package types

import "time"

type Alert struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	Symbol           string    `json:"crypto_symbol"`
	TargetPrice      float64   `json:"target_price"`
	Condition        bool      `json:"condition"` // true: price above target, false: below
	NotificationData string    `json:"notification_data"`
	IsActive         bool      `json:"is_active"`
	IsFulfilled      bool      `json:"is_fulfilled"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Direction returns ">" for rising alerts and "<" for falling ones.
func (a Alert) Direction() string {
	if a.Condition {
		return ">"
	}
	return "<"
}

// Quote is a price for one symbol valid for the current cycle only.
// A non-nil Err marks the price as absent.
type Quote struct {
	Symbol string
	Price  float64
	Err    error
}

func (q Quote) OK() bool {
	return q.Err == nil
}
