package price

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	primaryPriceKey  = "price"
	fallbackPriceKey = "current_price"
)

type ParseStatus int

const (
	ParseOK ParseStatus = iota
	ParseMissingField
	ParseMalformedBody
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseMissingField:
		return "missing_field"
	default:
		return "malformed_body"
	}
}

// ParseResult is the outcome of decoding one quote response body.
// Price is meaningful only when Status is ParseOK.
type ParseResult struct {
	Status ParseStatus
	Price  float64
}

// Err maps a failed parse onto the package error values.
func (r ParseResult) Err() error {
	switch r.Status {
	case ParseOK:
		return nil
	case ParseMissingField:
		return ErrMissingField
	default:
		return ErrMalformedBody
	}
}

// ParseQuote reads the price from a JSON object under "price", falling back
// to "current_price". Numeric strings are accepted. Only positive finite
// prices are valid.
func ParseQuote(body []byte) ParseResult {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return ParseResult{Status: ParseMalformedBody}
	}

	raw, ok := fields[primaryPriceKey]
	if !ok {
		raw, ok = fields[fallbackPriceKey]
	}
	if !ok {
		return ParseResult{Status: ParseMissingField}
	}

	price, ok := decodeNumber(raw)
	if !ok || price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return ParseResult{Status: ParseMalformedBody}
	}
	return ParseResult{Status: ParseOK, Price: price}
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
