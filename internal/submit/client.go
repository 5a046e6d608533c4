package submit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backend-touchgrass/internal/walk"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "backend-touchgrass/internal/submit"
	defaultTimeout      = 15 * time.Second
	defaultMaxRetries   = 3
)

// Client hands finalized walks to the verify-mint endpoint. Retries live
// here, not in the walk engine.
type Client struct {
	url        string
	healthURL  string
	timeout    time.Duration
	maxRetries uint
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

func WithHealthURL(url string) Option {
	return func(c *Client) { c.healthURL = url }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMaxRetries(n uint) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts payload once per attempt. 5xx replies and network failures
// are retried; any other non-2xx reply fails immediately.
func (c *Client) Submit(ctx context.Context, payload walk.Payload) (Result, error) {
	ctx, span := startSpan(ctx, "submit.walk",
		attribute.String("walk.session_id", payload.SessionID),
		attribute.Int("walk.path_len", len(payload.Path)),
		attribute.Float64("walk.distance_m", payload.DistanceMeters),
	)
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		endWithError(span, err)
		return Result{}, err
	}

	op := func() (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, backoff.Permanent(err)
		}
		code, resp, errs := fiber.Post(c.url).
			Timeout(c.timeout).
			ContentType(fiber.MIMEApplicationJSON).
			Body(body).
			Bytes()
		if len(errs) > 0 {
			return Result{}, &TransportError{Err: errors.Join(errs...)}
		}
		if code >= fiber.StatusInternalServerError {
			return Result{}, &TransportError{StatusCode: code, Body: string(resp)}
		}
		if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
			return Result{}, backoff.Permanent(&TransportError{StatusCode: code, Body: string(resp)})
		}
		return parseResult(string(resp)), nil
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Err: err}
		}
		endWithError(span, err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("submit.explorer_url", result.ExplorerURL))
	return result, nil
}

// Ping checks the endpoint's health route and returns its reply text.
func (c *Client) Ping(ctx context.Context) (string, error) {
	_, span := startSpan(ctx, "submit.ping")
	defer span.End()

	if c.healthURL == "" {
		err := &TransportError{Err: errors.New("health url not configured")}
		endWithError(span, err)
		return "", err
	}

	code, resp, errs := fiber.Get(c.healthURL).Timeout(c.timeout).Bytes()
	if len(errs) > 0 {
		err := &TransportError{Err: errors.Join(errs...)}
		endWithError(span, err)
		return "", err
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		err := &TransportError{StatusCode: code, Body: string(resp)}
		endWithError(span, err)
		return "", err
	}
	return string(resp), nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
