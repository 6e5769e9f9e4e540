// Package outbound notifies the CRM about catalog changes made on this side.
//
// Delivery is best effort: one signed POST per event, no retry, failures
// logged and dropped.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shashiranjanraj/catalogsync/pkg/event"
	"github.com/shashiranjanraj/catalogsync/pkg/httpclient"
	"github.com/shashiranjanraj/catalogsync/pkg/logger"
	"github.com/shashiranjanraj/catalogsync/pkg/metrics"
	"github.com/shashiranjanraj/catalogsync/pkg/signature"
)

var tracer = otel.Tracer("github.com/shashiranjanraj/catalogsync/internal/outbound")

// ErrNotConfigured is returned by Send when the URL or the secret is unset.
var ErrNotConfigured = errors.New("outbound: webhook url or secret not configured")

const excerptLen = 500

// Envelope is the body of every outbound webhook.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Dispatcher posts signed envelopes to one receiver.
type Dispatcher struct {
	url     string
	secret  string
	timeout time.Duration
}

func New(url, secret string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Dispatcher{url: url, secret: secret, timeout: timeout}
}

// Body encodes the envelope compactly, without HTML escaping, exactly as it
// is signed and sent.
func Body(eventName string, data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Envelope{Event: eventName, Data: data}); err != nil {
		return nil, fmt.Errorf("outbound: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Send delivers one event.
func (d *Dispatcher) Send(ctx context.Context, eventName string, data any) error {
	ctx, span := tracer.Start(ctx, "outbound.Send",
		trace.WithAttributes(attribute.String("event", eventName)))
	defer span.End()

	log := logger.WithCtx(ctx).With("event", eventName)
	if d.url == "" || d.secret == "" {
		log.Warn("outbound: skipped, webhook not configured", "url_set", d.url != "", "secret_set", d.secret != "")
		metrics.ObserveDelivery("skipped")
		return ErrNotConfigured
	}

	body, err := Body(eventName, data)
	if err != nil {
		return d.failed(span, err)
	}

	resp, err := httpclient.Post(d.url).
		Header("Content-Type", "application/json").
		Header(signature.Header, signature.Sign(body, d.secret)).
		Body(body, "application/json").
		Timeout(d.timeout).
		MaxResponse(excerptLen).
		WithContext(ctx).
		Send()
	if err != nil {
		return d.failed(span, fmt.Errorf("outbound: %s: %w", eventName, err))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if !resp.OK() {
		return d.failed(span, fmt.Errorf("outbound: %s: status %d: %s", eventName, resp.StatusCode, resp.Excerpt(excerptLen)))
	}

	metrics.ObserveDelivery("sent")
	log.Info("outbound: delivered", "status", resp.StatusCode)
	return nil
}

func (d *Dispatcher) failed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.ObserveDelivery("failed")
	return err
}

// Listener adapts Send to the event bus for eventName. Every failure is
// logged and swallowed.
func (d *Dispatcher) Listener(eventName string) event.Handler {
	return func(ctx context.Context, payload any) {
		err := d.Send(ctx, eventName, payload)
		if err != nil && !errors.Is(err, ErrNotConfigured) {
			logger.WithCtx(ctx).Warn("outbound: delivery failed", "event", eventName, "error", err)
		}
	}
}
