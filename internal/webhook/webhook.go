// Package webhook receives CRM product pushes.
//
// Every request moves through the same states: the body is read, its
// signature checked, the JSON parsed, and then either one product deleted or
// a batch of items reconciled in order. Only a bad signature or an
// unusable body rejects the whole request; anything else is reported per
// item in the response.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/internal/imagesync"
	"github.com/shashiranjanraj/catalogsync/internal/payload"
	"github.com/shashiranjanraj/catalogsync/pkg/lock"
	"github.com/shashiranjanraj/catalogsync/pkg/logger"
	"github.com/shashiranjanraj/catalogsync/pkg/metrics"
	"github.com/shashiranjanraj/catalogsync/pkg/response"
	"github.com/shashiranjanraj/catalogsync/pkg/signature"
)

var tracer = otel.Tracer("github.com/shashiranjanraj/catalogsync/internal/webhook")

// EventProductDeleted is the only event name with its own handling.
const EventProductDeleted = "product.deleted"

var (
	ErrUnauthorized = errors.New("invalid signature")
	ErrMalformed    = errors.New("malformed payload")
	ErrTooLarge     = errors.New("payload too large")
)

type Reconciler interface {
	Reconcile(ctx context.Context, it catalog.Item) (catalog.Result, error)
}

type ImageSyncer interface {
	Sync(ctx context.Context, p catalog.Product, refs []string) imagesync.Stats
}

type Products interface {
	ByExternalID(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

type Deleter interface {
	Delete(ctx context.Context, productID uint) (catalog.PublicProduct, error)
}

// Deps wires a Handler.
type Deps struct {
	Secret       string
	Reconciler   Reconciler
	Images       ImageSyncer
	Products     Products
	Deleter      Deleter
	Locker       lock.Locker
	MaxBodyBytes int64
}

// Handler serves the CRM products webhook.
type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	return &Handler{Deps: d}
}

// ItemError is one failed item in a batch response.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResponse is the body returned for create/update pushes.
type BatchResponse struct {
	OK          bool            `json:"ok"`
	Created     int             `json:"created"`
	Updated     int             `json:"updated"`
	Skipped     int             `json:"skipped"`
	Errors      []ItemError     `json:"errors"`
	Images      imagesync.Stats `json:"images"`
	ImageErrors []string        `json:"image_errors"`
}

// DeleteResponse is the body returned for product.deleted pushes.
type DeleteResponse struct {
	OK         bool   `json:"ok"`
	Deleted    bool   `json:"deleted"`
	ExternalID string `json:"external_id"`
	ID         uint   `json:"id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "webhook.Products")
	defer span.End()
	log := logger.WithCtx(ctx)

	body, err := h.read(w, r)
	if err != nil {
		log.Warn("webhook: body rejected", "error", err)
		metrics.ObserveWebhook("rejected")
		if errors.Is(err, ErrTooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		response.BadRequest(w, err.Error())
		return
	}

	if !signature.Verify(body, r.Header.Get(signature.Header), h.Secret) {
		log.Warn("webhook: signature mismatch", "ip", r.RemoteAddr, "bytes", len(body))
		metrics.ObserveWebhook("unauthorized")
		response.Unauthorized(w, ErrUnauthorized.Error())
		return
	}

	v, err := payload.Decode(body)
	if err != nil {
		log.Warn("webhook: invalid JSON", "error", err)
		metrics.ObserveWebhook("malformed")
		response.BadRequest(w, "invalid JSON")
		return
	}

	if payload.EventName(v) == EventProductDeleted {
		span.SetAttributes(attribute.String("event", EventProductDeleted))
		h.serveDelete(ctx, w, v)
		return
	}

	items := payload.Normalize(v)
	if len(items) == 0 {
		log.Warn("webhook: no items in payload")
		metrics.ObserveWebhook("malformed")
		response.BadRequest(w, "no items")
		return
	}
	span.SetAttributes(attribute.Int("items", len(items)))

	res := h.Process(ctx, items)
	status, result := http.StatusOK, "ok"
	if !res.OK {
		status, result = http.StatusMultiStatus, "partial"
	}
	metrics.ObserveWebhook(result)
	log.Info("webhook: batch processed",
		"items", len(items), "created", res.Created, "updated", res.Updated,
		"skipped", res.Skipped, "errors", len(res.Errors),
		"images_added", res.Images.Added, "images_failed", res.Images.Failed)
	response.JSON(w, status, res)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	src := r.Body
	if h.MaxBodyBytes > 0 {
		src = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, tooBig.Limit)
		}
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformed, err)
	}
	return body, nil
}

// Process reconciles items in order. One item's failure never stops the
// rest.
func (h *Handler) Process(ctx context.Context, items []map[string]any) BatchResponse {
	res := BatchResponse{Errors: []ItemError{}, ImageErrors: []string{}}

	for i, m := range items {
		out, err := h.processItem(ctx, i, m)
		if err != nil {
			logger.WithCtx(ctx).Warn("webhook: item failed", "index", i, "error", err)
			metrics.ObserveItem("failed")
			res.Errors = append(res.Errors, ItemError{Index: i, Error: itemMessage(err)})
			continue
		}

		switch {
		case out.Created:
			res.Created++
			metrics.ObserveItem("created")
		case out.Saved:
			res.Updated++
			metrics.ObserveItem("updated")
		default:
			res.Skipped++
			metrics.ObserveItem("skipped")
		}
		res.Images.Add(out.images)
	}

	res.ImageErrors = append(res.ImageErrors, res.Images.Errors...)
	res.OK = len(res.Errors) == 0
	return res
}

type itemOutcome struct {
	catalog.Result
	images imagesync.Stats
}

func (h *Handler) processItem(ctx context.Context, index int, m map[string]any) (out itemOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	it, err := payload.Extract(index, m)
	if err != nil {
		return out, err
	}

	ctx, span := tracer.Start(ctx, "webhook.Item", trace.WithAttributes(
		attribute.Int("index", index),
		attribute.String("external_id", it.ExternalID.String()),
	))
	defer span.End()

	unlock, err := h.Locker.Lock(ctx, "product:"+it.ExternalID.String())
	if err != nil {
		return out, err
	}
	defer unlock()

	res, err := h.Reconciler.Reconcile(ctx, it)
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	out.Result = res

	if it.HasImages && h.Images != nil {
		out.images = h.Images.Sync(ctx, res.Product, it.Images)
	}
	return out, nil
}

func (h *Handler) serveDelete(ctx context.Context, w http.ResponseWriter, v any) {
	log := logger.WithCtx(ctx)

	target, ok := payload.DeleteTarget(v)
	if !ok {
		metrics.ObserveWebhook("malformed")
		response.BadRequest(w, "no item")
		return
	}
	id, err := payload.ExternalID(target)
	if err != nil {
		metrics.ObserveWebhook("malformed")
		response.BadRequest(w, err.Error())
		return
	}
	log = log.With("external_id", id)

	unlock, err := h.Locker.Lock(ctx, "product:"+id.String())
	if err != nil {
		log.Error("webhook: lock", "error", err)
		response.Error(w, http.StatusServiceUnavailable, "busy")
		return
	}
	defer unlock()

	notFound := DeleteResponse{OK: true, Deleted: false, ExternalID: id.String(), Detail: "not found"}

	p, err := h.Products.ByExternalID(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		log.Info("webhook: delete for unknown product")
		metrics.ObserveWebhook("delete_not_found")
		response.JSON(w, http.StatusOK, notFound)
		return
	}
	if err != nil {
		log.Error("webhook: lookup for delete", "error", err)
		response.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	snap, err := h.Deleter.Delete(ctx, p.ID)
	if errors.Is(err, catalog.ErrNotFound) {
		response.JSON(w, http.StatusOK, notFound)
		return
	}
	if err != nil {
		log.Error("webhook: delete", "error", err)
		response.Error(w, http.StatusInternalServerError, "delete failed")
		return
	}

	metrics.ObserveWebhook("deleted")
	response.JSON(w, http.StatusOK, DeleteResponse{OK: true, Deleted: true, ExternalID: id.String(), ID: snap.ID})
}

// itemMessage drops the index prefix an *catalog.ItemError adds, since the
// response carries the index separately.
func itemMessage(err error) string {
	var ie *catalog.ItemError
	if errors.As(err, &ie) && ie.Err != nil {
		return ie.Err.Error()
	}
	return err.Error()
}
