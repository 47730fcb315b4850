// Package verification содержит HTTP-клиентов policy- и risk-сервисов.
//
// Любой сбой на стороне сервиса (транспорт, статус, тело, таймаут)
// превращается в degraded-результат плеча, а не в ошибку.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillm/verigate/pkg/utils"
)

const maxResponseBytes = 1 << 20

// Options общие настройки клиентов верификации
type Options struct {
	BaseURL    string
	Timeout    time.Duration // таймаут одного плеча, включая повторы
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *utils.Logger
}

type httpCaller struct {
	baseURL    string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	client     *http.Client
	logger     *utils.Logger
}

func newHTTPCaller(opts Options) *httpCaller {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &httpCaller{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		client:     client,
		logger:     logger,
	}
}

// post отправляет JSON и декодирует ответ, повторяя при ошибках.
// Каждая попытка декодирует в новое значение: частично разобранный ответ
// неудачной попытки не попадает в результат.
func post[T any](ctx context.Context, c *httpCaller, path string, in interface{}) (T, error) {
	var zero T

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(in)
	if err != nil {
		return zero, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%v (last error: %w)", ctx.Err(), lastErr)
			case <-time.After(c.retryDelay):
			}
		}

		var out T
		lastErr = c.do(ctx, path, body, &out)
		if lastErr == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, lastErr
		}
		c.logger.Debug("verification call %s attempt %d failed: %v", path, attempt+1, lastErr)
	}
	return zero, lastErr
}

func (c *httpCaller) do(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
