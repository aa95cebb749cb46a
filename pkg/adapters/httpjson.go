package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	maxErrorBodyBytes     = 2048
)

// RetryPolicy は HTTP 呼び出しの再試行設定です。
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy は既定の再試行設定を返します。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// retryable は 429 と 5xx のみ再試行対象とします。
func (e *httpStatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// doJSON は method/url に payload を JSON で送り、応答を out にデコードします。
// 4xx（429 を除く）とデコード失敗は再試行しません。
func doJSON(ctx context.Context, client *http.Client, policy RetryPolicy, method, url string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("リクエストのエンコードに失敗しました: %w", err))
		}
	}

	attempt := 0
	op := func() error {
		attempt++
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			slog.WarnContext(ctx, "HTTP request failed", "url", url, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			statusErr := &httpStatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
			if !statusErr.retryable() {
				return backoff.Permanent(statusErr)
			}
			slog.WarnContext(ctx, "HTTP request returned retryable status", "url", url, "attempt", attempt, "status", resp.StatusCode)
			return statusErr
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("レスポンスのデコードに失敗しました: %w", err))
		}
		return nil
	}

	return backoff.Retry(op, policy.backOff(ctx))
}
