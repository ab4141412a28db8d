// Package provider talks to upstream SMS-verification providers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
)

const (
	CodeThrottled   = "throttled"
	CodeNotFound    = "not-found"
	CodeUnavailable = "unavailable"
)

const (
	requestTimeout    = 5 * time.Second
	defaultRetryAfter = 60 * time.Second
)

var ErrThrottled = errors.New("provider throttled")

// Error of an upstream call. Always matches apperrors.ErrUpstreamUnavailable.
type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := []error{apperrors.ErrUpstreamUnavailable, e.Err}
	if e.Code == CodeThrottled {
		errs = append(errs, ErrThrottled)
	}
	return errs
}

func NewError(code string, retryAfter time.Duration, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// Number leased from a provider
type Number struct {
	ExternalID string `json:"id"`
	Phone      string `json:"phone"`
}

type NumberStatus struct {
	Status Status  `json:"status"`
	Code   *string `json:"code,omitempty"`
}

type Client struct {
	http   *resty.Client
	logger logger.Logger
}

func NewClient(baseURL string, l logger.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("Accept", "application/json"),
		logger: l,
	}
}

func (c *Client) RequestNumber(ctx context.Context, service string) (Number, error) {
	var n Number

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"service": service}).
		SetResult(&n).
		Post("/numbers")
	if err := c.check(resp, err, "request number"); err != nil {
		return Number{}, err
	}
	if n.ExternalID == "" || n.Phone == "" {
		return Number{}, NewError(CodeUnavailable, 0, fmt.Errorf("incomplete number in response: %q", resp.String()))
	}

	c.logger.Debug("Number leased", "service", service, "external_id", n.ExternalID)
	return n, nil
}

func (c *Client) GetStatus(ctx context.Context, externalID string) (NumberStatus, error) {
	var s NumberStatus

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", externalID).
		SetResult(&s).
		Get("/numbers/{id}")
	if err := c.check(resp, err, "get status"); err != nil {
		return NumberStatus{}, err
	}

	switch s.Status {
	case StatusWaiting, StatusReceived, StatusCancelled:
	default:
		return NumberStatus{}, NewError(CodeUnavailable, 0, fmt.Errorf("unknown number status %q", s.Status))
	}
	if s.Status == StatusReceived && (s.Code == nil || *s.Code == "") {
		return NumberStatus{}, NewError(CodeUnavailable, 0, errors.New("received status without code"))
	}

	return s, nil
}

func (c *Client) Cancel(ctx context.Context, externalID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", externalID).
		Post("/numbers/{id}/cancel")
	return c.check(resp, err, "cancel")
}

// Map transport failures and non 2xx statuses to *Error
func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return NewError(CodeUnavailable, 0, fmt.Errorf("%s: %w", op, err))
	}

	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
		return nil

	case code == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header().Get("Retry-After"))
		c.logger.Warn("Provider throttled", "op", op, "retry_after", retryAfter)
		return NewError(CodeThrottled, retryAfter, fmt.Errorf("%s: retry after %s", op, retryAfter))

	case code == http.StatusNotFound:
		return NewError(CodeNotFound, 0, fmt.Errorf("%s: number not found", op))

	default:
		c.logger.Warn("Provider call failed", "op", op, "status_code", code)
		return NewError(CodeUnavailable, 0, fmt.Errorf("%s: unexpected status code %d", op, code))
	}
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
