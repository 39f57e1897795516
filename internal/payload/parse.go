// Package payload extracts (token, price) pairs from inbound trade messages.
//
// Trade producers are not consistent about which field carries the price or
// whether numbers are sent as JSON numbers or strings, so the price is taken
// from the first usable candidate field:
//
//	price_in_sol, price, price_sol, amount_in_sol
//
// A candidate holding a JSON number is used as is. A candidate holding a
// string is parsed as a decimal float64; an unparsable string is skipped, not
// fatal. Hex float strings ("0x1p-2") are not prices.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rsi-engine/internal/model"
)

// TokenField is the required token identifier field.
const TokenField = "token_address"

// PriceFields lists the price candidates in priority order.
var PriceFields = [...]string{"price_in_sol", "price", "price_sol", "amount_in_sol"}

// ErrParse is wrapped by every error returned from Parse.
var ErrParse = errors.New("unparseable trade payload")

// Parse decodes data as a JSON object and returns its token and price.
func Parse(data []byte) (model.PriceSample, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return model.PriceSample{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	rawToken, ok := obj[TokenField]
	if !ok {
		return model.PriceSample{}, fmt.Errorf("%w: missing %s", ErrParse, TokenField)
	}
	// A JSON null would decode into "" without error.
	rawToken = bytes.TrimSpace(rawToken)
	var token string
	if len(rawToken) == 0 || rawToken[0] != '"' {
		return model.PriceSample{}, fmt.Errorf("%w: %s is not a string", ErrParse, TokenField)
	}
	if err := json.Unmarshal(rawToken, &token); err != nil {
		return model.PriceSample{}, fmt.Errorf("%w: %s is not a string", ErrParse, TokenField)
	}

	for _, field := range PriceFields {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		if price, ok := priceValue(raw); ok {
			return model.PriceSample{Token: token, Price: price}, nil
		}
	}
	return model.PriceSample{}, fmt.Errorf("%w: no usable price field for token %s", ErrParse, token)
}

// priceValue interprets a raw JSON value as a price. Only numbers and
// numeric strings qualify.
func priceValue(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if isHex(s) {
			return 0, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case c == '-' || (c >= '0' && c <= '9'):
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}
