package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const compactTimestampLayout = "20060102150405"

func decodeObject(payload []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var obj map[string]interface{}
	if err := decoder.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, nil
}

func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func parseDecimalish(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if d, err := decimal.NewFromString(cleaned); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func parseIntish(v interface{}) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

// firstPresent returns the value of the first alias present in obj.
func firstPresent(obj map[string]interface{}, aliases ...string) (interface{}, bool) {
	for _, alias := range aliases {
		if v, ok := obj[alias]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func firstString(obj map[string]interface{}, aliases ...string) string {
	v, ok := firstPresent(obj, aliases...)
	if !ok {
		return ""
	}
	return parseStringish(v)
}

// normalizeTransactionDate converts compact provider timestamps to RFC3339 and passes other values through.
func normalizeTransactionDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) == len(compactTimestampLayout) {
		if ts, err := time.Parse(compactTimestampLayout, raw); err == nil {
			return ts.Format(time.RFC3339)
		}
	}
	return raw
}
