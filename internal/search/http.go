package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxAttempts     = 3
	initialBackoff  = 1 * time.Second
	maxBackoff      = 30 * time.Second
	browserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 4 << 20
)

// send issues the request built by newReq, pacing through limiter and
// retrying 429 responses with doubling backoff. The caller owns the body of
// the returned response.
func send(ctx context.Context, client *http.Client, limiter *rate.Limiter, newReq func() (*http.Request, error)) (*http.Response, error) {
	delay := initialBackoff
	for attempt := 1; ; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		if attempt == maxAttempts {
			return nil, fmt.Errorf("rate limited after %d attempts", attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay *= 2
		}
	}
}

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultTimeout}
}
