package stream

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/searchrelay/searchrelay/server/internal/search"
)

// Split separates the pacing directive from an item. The returned payload is
// a copy of item without the delay key; item itself is left untouched.
// Negative or non-numeric delays yield 0; positive delays are capped at limit
// when limit > 0.
func Split(item search.Item, limit time.Duration) (search.Item, time.Duration) {
	raw, ok := item[search.DelayKey]
	if !ok {
		return item, 0
	}

	payload := make(search.Item, len(item)-1)
	for k, v := range item {
		if k != search.DelayKey {
			payload[k] = v
		}
	}

	wait := time.Duration(millis(raw) * float64(time.Millisecond))
	if limit > 0 && wait > limit {
		wait = limit
	}
	return payload, wait
}

// maxMillis keeps the Duration conversion in range.
const maxMillis = float64(math.MaxInt32)

func millis(v any) float64 {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		f = x
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > maxMillis {
		return maxMillis
	}
	return f
}
