package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/internal/imagesync"
	"github.com/shashiranjanraj/catalogsync/internal/testutil"
	"github.com/shashiranjanraj/catalogsync/internal/webhook"
	"github.com/shashiranjanraj/catalogsync/pkg/event"
	"github.com/shashiranjanraj/catalogsync/pkg/signature"
	"github.com/shashiranjanraj/catalogsync/pkg/storage"
)

const secret = "crm-secret"

type harness struct {
	db      *gorm.DB
	disk    *storage.Memory
	bus     *event.Bus
	handler *webhook.Handler

	mu      sync.Mutex
	deleted []catalog.PublicProduct
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	disk := storage.NewMemory("http://cdn.test")
	bus := event.NewBus()

	images := imagesync.New(db, disk,
		imagesync.WithFetcher(imagesync.NewFetcher(1<<20, 5*time.Second, 0)),
		imagesync.WithWorkers(2))
	t.Cleanup(images.Close)

	h := &harness{db: db, disk: disk, bus: bus}
	bus.Listen(catalog.EventProductDeleted, func(_ context.Context, p any) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.deleted = append(h.deleted, p.(catalog.PublicProduct))
	})

	h.handler = webhook.New(webhook.Deps{
		Secret:       secret,
		Reconciler:   catalog.NewReconciler(db),
		Images:       images,
		Products:     catalog.NewRepository(db),
		Deleter:      catalog.NewDeleter(db, disk, bus),
		MaxBodyBytes: 1 << 20,
	})
	return h
}

func (h *harness) post(t *testing.T, body []byte, sig string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/integrations/crm/products/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(signature.Header, sig)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func (h *harness) signed(t *testing.T, body string) (*httptest.ResponseRecorder, map[string]any) {
	return h.post(t, []byte(body), signature.Sign([]byte(body), secret))
}

func (h *harness) count(model any) int64 {
	var n int64
	h.db.Model(model).Count(&n)
	return n
}

func TestWebhook_SignatureGate(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"id":"` + uuid.NewString() + `","name":"Tea"}`)
	sig := signature.Sign(body, secret)

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-3] ^= 0x01

	rec, out := h.post(t, tampered, sig)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": "invalid signature"}, out)

	rec, _ = h.post(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = h.post(t, body, signature.Sign(body, "other"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, h.count(&catalog.Product{}))

	rec, _ = h.post(t, body, sig)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_MalformedBodies(t *testing.T) {
	h := newHarness(t)
	for _, body := range []string{`{"id":`, `{}`, `[]`, `[1,2]`, `null`} {
		rec, out := h.signed(t, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, false, out["ok"], body)
	}
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	h := newHarness(t)
	h.handler.MaxBodyBytes = 16
	rec, _ := h.signed(t, `{"id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhook_PartialBatch(t *testing.T) {
	h := newHarness(t)
	body := `{"results":[
		{"id":"` + uuid.NewString() + `","name":"First","price":"1234,56","quantity":"n/a"},
		{"id":"not-a-uuid","name":"Broken"},
		{"product_id":"` + uuid.NewString() + `","name":"Third"}
	]}`

	rec, out := h.signed(t, body)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Equal(t, false, out["ok"])
	assert.EqualValues(t, 2, out["created"])
	assert.EqualValues(t, 0, out["updated"])

	errs := out["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.EqualValues(t, 1, first["index"])
	assert.Contains(t, first["error"], "invalid product id")

	var p catalog.Product
	require.NoError(t, h.db.Where("name = ?", "First").First(&p).Error)
	assert.Equal(t, "1234.56", p.Price.Decimal.StringFixed(2))
	assert.Zero(t, p.Quantity)
	assert.Equal(t, int64(2), h.count(&catalog.Product{}))
}

func TestWebhook_DataArrayEnvelope(t *testing.T) {
	h := newHarness(t)
	body := `{"data":[{"id":"` + uuid.NewString() + `","name":"A"},{"id":"` + uuid.NewString() + `","name":"B"}]}`

	rec, out := h.signed(t, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, out["created"])
	assert.Equal(t, []any{}, out["errors"])
	assert.Equal(t, int64(2), h.count(&catalog.Product{}))
}

func TestWebhook_IdempotentPush(t *testing.T) {
	h := newHarness(t)
	body := `{"data":{"id":"` + uuid.NewString() + `","name":"Mug","code":"MUG-1","price":10}}`

	rec, out := h.signed(t, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["created"])

	rec, out = h.signed(t, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["created"])
	assert.EqualValues(t, 0, out["updated"])
	assert.EqualValues(t, 1, out["skipped"])
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, []any{}, out["errors"])
}

func TestWebhook_ImagesAreSynced(t *testing.T) {
	h := newHarness(t)
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".jpg") {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg"))
			return
		}
		http.NotFound(w, r)
	}))
	defer host.Close()

	id := uuid.NewString()
	body := `[{"id":"` + id + `","name":"Tea","images":["` + host.URL + `/a.jpg",{"image_url":"` + host.URL + `/missing"}]}]`
	rec, out := h.signed(t, body)
	assert.Equal(t, http.StatusOK, rec.Code, "image failures do not fail the item")

	imgs := out["images"].(map[string]any)
	assert.EqualValues(t, 1, imgs["added"])
	assert.EqualValues(t, 1, imgs["failed"])
	imageErrs := out["image_errors"].([]any)
	require.Len(t, imageErrs, 1)
	assert.Contains(t, imageErrs[0], host.URL+"/missing: ")
	assert.Equal(t, int64(1), h.count(&catalog.ProductImage{}))

	// omitting "images" leaves them alone
	rec, out = h.signed(t, `{"id":"`+id+`","name":"Tea"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["images"].(map[string]any)["deleted"])
	assert.Equal(t, int64(1), h.count(&catalog.ProductImage{}))

	// an empty list removes sync-owned images
	rec, out = h.signed(t, `{"id":"`+id+`","images":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["images"].(map[string]any)["deleted"])
	assert.Zero(t, h.count(&catalog.ProductImage{}))
}

func TestWebhook_DeleteEvent(t *testing.T) {
	h := newHarness(t)
	id := uuid.NewString()
	rec, _ := h.signed(t, `{"id":"`+id+`","name":"Tea","code":"T1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out := h.signed(t, `{"event":"product.deleted","data":{"id":"`+id+`"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, true, out["deleted"])
	assert.Equal(t, id, out["external_id"])
	assert.Zero(t, h.count(&catalog.Product{}))

	h.bus.Wait()
	require.Len(t, h.deleted, 1)
	assert.Equal(t, "T1", h.deleted[0].Code, "snapshot taken before the row was removed")

	rec, out = h.signed(t, `{"event":"product.deleted","external_id":"`+id+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true, "deleted": false, "external_id": id, "detail": "not found"}, out)

	rec, _ = h.signed(t, `{"event":"product.deleted","data":{"id":"nope"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type panicky struct{}

func (panicky) Reconcile(context.Context, catalog.Item) (catalog.Result, error) {
	panic("reconciler exploded")
}

func TestWebhook_ItemPanicIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.handler.Reconciler = panicky{}

	rec, out := h.signed(t, `[{"id":"`+uuid.NewString()+`"},{"id":"`+uuid.NewString()+`"}]`)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Len(t, out["errors"], 2)
}
