package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/transfer"
)

const (
	maxErrorBodyBytes  = 1 << 20
	maxErrorMessageLen = 256
)

// Query parameters that carry credentials and must not reach logs or stored errors.
var secretQueryParams = []string{"access_token", "client_secret", "code"}

// TransientFunc decides whether a Graph error is worth another attempt.
type TransientFunc func(*GraphError) bool

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Graph error codes that signal throttling or temporary unavailability.
var transientGraphCodes = map[int]struct{}{
	1:   {}, // unknown error, retry suggested by the platform
	2:   {}, // service temporarily unavailable
	4:   {}, // application request limit reached
	17:  {}, // user request limit reached
	32:  {}, // page request limit reached
	613: {}, // calls within one hour exceeded
}

// IsTransientGraphError is the default classifier used for every Graph call.
func IsTransientGraphError(e *GraphError) bool {
	if e == nil {
		return false
	}
	if e.IsTransient {
		return true
	}
	_, ok := transientGraphCodes[e.Code]
	return ok
}

// RemoteCaller issues one logical Graph API call with bounded retries and
// exponential backoff (baseDelay * 2^attempt) for transient failures.
type RemoteCaller struct {
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	sleep       Sleeper
	logger      *zap.Logger
}

func NewRemoteCaller(client *http.Client, maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *RemoteCaller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RemoteCaller{
		client:      client,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
		logger:      logger,
	}
}

func (c *RemoteCaller) backoff(attempt int) time.Duration {
	return c.baseDelay * time.Duration(1<<attempt)
}

// Do builds a fresh request per attempt with newRequest and decodes a 2xx JSON body into out.
func (c *RemoteCaller) Do(ctx context.Context, op string, newRequest func(context.Context) (*http.Request, error), isTransient TransientFunc, out any) error {
	if isTransient == nil {
		isTransient = IsTransientGraphError
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		retryable, err := c.attempt(ctx, newRequest, isTransient, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable {
			return &RemoteError{Op: op, Attempts: attempt, LastErr: err}
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("Transient remote failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return &RemoteError{Op: op, Attempts: attempt, LastErr: err}
		}
	}

	return &RemoteError{Op: op, Attempts: c.maxAttempts, Transient: true, LastErr: lastErr}
}

// attempt performs a single round trip and reports whether a failure may be retried.
func (c *RemoteCaller) attempt(ctx context.Context, newRequest func(context.Context) (*http.Request, error), isTransient TransientFunc, out any) (bool, error) {
	req, err := newRequest(ctx)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return true, fmt.Errorf("http request: %w", redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return true, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return false, nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
		return false, nil
	}

	graphErr := decodeGraphError(resp.StatusCode, body)
	return isTransient(graphErr), graphErr
}

func decodeGraphError(status int, body []byte) *GraphError {
	var payload transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		e := payload.Error
		return &GraphError{
			HTTPStatus:  status,
			Message:     e.Message,
			Type:        e.Type,
			Code:        e.Code,
			Subcode:     e.ErrorSubcode,
			IsTransient: e.IsTransient,
			FbtraceID:   e.FbtraceID,
		}
	}

	msg := truncateMessage(string(body), maxErrorMessageLen)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &GraphError{
		HTTPStatus:  status,
		Message:     msg,
		IsTransient: status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
	}
}

// truncateMessage cuts s to at most n bytes without splitting a rune.
func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// redactURLError masks credential query parameters in the URL that *url.Error prints.
func redactURLError(err error) error {
	var uErr *url.Error
	if !errors.As(err, &uErr) {
		return err
	}
	uErr.URL = redactQuery(uErr.URL)
	return err
}

func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparsable url]"
	}
	q := u.Query()
	for _, key := range secretQueryParams {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// asGraphError extracts the Graph error from a RemoteError chain, if any.
func asGraphError(err error) (*GraphError, bool) {
	var graphErr *GraphError
	ok := errors.As(err, &graphErr)
	return graphErr, ok
}
