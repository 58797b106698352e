package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// postJSON issues one POST with bounded retries: exponential backoff on
// transport errors and 5xx, the parsed retry delay on 429, a single
// attempt otherwise.
func postJSON(ctx context.Context, client *http.Client, providerID, endpoint string, headers map[string]string, body []byte, maxRetries int) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, &Error{Provider: providerID, Err: fmt.Errorf("creating request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < maxRetries {
				if err := sleep(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			break
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited: %s", truncate(string(respBody), 300))
			if attempt < maxRetries {
				if err := sleep(ctx, retryDelay(resp, respBody)); err != nil {
					return nil, err
				}
				continue
			}
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
			if attempt < maxRetries {
				if err := sleep(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
		case resp.StatusCode >= 300:
			return nil, &Error{Provider: providerID, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 300))}
		default:
			return respBody, nil
		}
		break
	}

	return nil, &Error{Provider: providerID, Err: lastErr}
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryDelay extracts the wait before retrying a 429: the Retry-After
// header (delta seconds or an HTTP-date) when present, else Google's
// RetryInfo detail, else 65s.
func retryDelay(resp *http.Response, body []byte) time.Duration {
	const defaultDelay = 65 * time.Second

	if after := resp.Header.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(after); err == nil && secs >= 0 {
			if secs == 0 {
				return 0
			}
			return time.Duration(secs)*time.Second + 5*time.Second
		}
		if t, err := http.ParseTime(after); err == nil {
			wait := time.Until(t)
			if wait <= 0 {
				return 0
			}
			return wait + 5*time.Second
		}
	}

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}
	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}
	return defaultDelay
}
