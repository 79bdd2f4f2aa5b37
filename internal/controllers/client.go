package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"tftrader/models"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 5,
		Min:      250 * time.Millisecond,
		Max:      10 * time.Second,
	}
}

// ClientController executes authenticated REST requests against the exchange.
// Transient failures are retried with jittered exponential backoff; responses
// carrying the exchange {code,msg} envelope become *models.ExchangeError.
type ClientController struct {
	client *http.Client
	logger *logrus.Logger

	apiKey string
	retry  RetryConfig

	lastTimestamp int64
}

func NewClientController(
	client *http.Client,
	apiKey string,
	retry RetryConfig,
	logger *logrus.Logger,
) *ClientController {
	if retry.Attempts <= 0 {
		retry = DefaultRetryConfig()
	}

	return &ClientController{
		client: client,
		apiKey: apiKey,
		retry:  retry,
		logger: logger,
	}
}

// Timestamp returns a strictly monotonic request timestamp in milliseconds.
// The exchange rejects requests whose timestamp regresses within recvWindow.
func (c *ClientController) Timestamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&c.lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&c.lastTimestamp, last, now) {
			return now
		}
	}
}

// statusError is a non-envelope HTTP failure.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("statusCode %d; resp %s;", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError
}

func (c *ClientController) Send(ctx context.Context, method string, url *url.URL, body []byte, useApiKey bool) ([]byte, error) {
	bo := &backoff.Backoff{
		Min:    c.retry.Min,
		Max:    c.retry.Max,
		Jitter: true,
	}

	var lastErr error

	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(bo.Duration()):
			}
		}

		out, err := c.send(ctx, method, url, body, useApiKey)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if models.IsAmbiguous(err) {
			// resolved by the caller via a status query, never re-sent here
			return nil, err
		}

		var exErr *models.ExchangeError
		if errors.As(err, &exErr) {
			if !exErr.Retryable() {
				return nil, err
			}
			c.logger.
				WithError(err).
				WithField("attempt", attempt).
				Warn("retryable exchange error")
			continue
		}

		var stErr *statusError
		if errors.As(err, &stErr) {
			if !stErr.retryable() {
				return nil, err
			}
			c.logger.
				WithError(err).
				WithField("attempt", attempt).
				Warn("retryable http status")
			continue
		}

		// network-level error on an idempotent request
		c.logger.
			WithError(err).
			WithField("attempt", attempt).
			Warn("transport error")
	}

	return nil, errors.Wrap(lastErr, "retries exhausted")
}

func (c *ClientController) send(ctx context.Context, method string, url *url.URL, body []byte, useApiKey bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Add("Content-Type", "application/json")
	if useApiKey {
		req.Header.Add("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if method != http.MethodGet {
			// the request may have reached the exchange before the failure
			return nil, errors.Wrap(models.ErrAmbiguous, err.Error())
		}
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusOK {
		return out, nil
	}

	if resp.StatusCode == http.StatusGatewayTimeout && method != http.MethodGet {
		return nil, errors.Wrap(models.ErrAmbiguous, "gateway timeout")
	}

	var exErr models.ExchangeError
	if err := json.Unmarshal(out, &exErr); err == nil && exErr.Code != 0 {
		return nil, &exErr
	}

	return nil, &statusError{status: resp.StatusCode, body: string(out)}
}
