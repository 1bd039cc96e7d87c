package search

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

// retryBaseDelay is the base of the exponential backoff applied on HTTP 429.
// Tests shrink it to avoid real sleeps.
var retryBaseDelay = time.Second

// doWithRetry executes req and retries on HTTP 429 (Too Many Requests) with
// exponential backoff: retryBaseDelay, 2x, 4x, ...
//
// After maxRetries retries the last 429 response is returned so the caller
// can inspect it. A cancelled context during a backoff wait returns ctx.Err().
func doWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		// Drain and close the body before retrying.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * retryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
