package outbound_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/catalogsync/internal/outbound"
	"github.com/shashiranjanraj/catalogsync/pkg/event"
	"github.com/shashiranjanraj/catalogsync/pkg/signature"
)

type received struct {
	mu     sync.Mutex
	bodies [][]byte
	sigs   []string
	types  []string
}

func receiver(t *testing.T, status int, reply string) (*httptest.Server, *received) {
	t.Helper()
	got := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		got.bodies = append(got.bodies, body)
		got.sigs = append(got.sigs, r.Header.Get(signature.Header))
		got.types = append(got.types, r.Header.Get("Content-Type"))
		got.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSend_SignsCompactBody(t *testing.T) {
	srv, got := receiver(t, http.StatusOK, "ok")
	d := outbound.New(srv.URL, "site-secret", time.Second)

	err := d.Send(context.Background(), "product.deleted", map[string]any{"id": 7, "name": "Tea & <Mug>"})
	require.NoError(t, err)

	require.Len(t, got.bodies, 1)
	assert.Equal(t, `{"event":"product.deleted","data":{"id":7,"name":"Tea & <Mug>"}}`, string(got.bodies[0]))
	assert.True(t, signature.Verify(got.bodies[0], got.sigs[0], "site-secret"))
	assert.Equal(t, "application/json", got.types[0])
}

func TestSend_Non2xxCarriesExcerpt(t *testing.T) {
	srv, _ := receiver(t, http.StatusBadGateway, strings.Repeat("e", 2000))
	d := outbound.New(srv.URL, "s", time.Second)

	err := d.Send(context.Background(), "product.deleted", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), strings.Repeat("e", 500))
	assert.NotContains(t, err.Error(), strings.Repeat("e", 501))
}

func TestSend_NotConfigured(t *testing.T) {
	err := outbound.New("", "s", 0).Send(context.Background(), "product.deleted", nil)
	assert.ErrorIs(t, err, outbound.ErrNotConfigured)

	err = outbound.New("http://127.0.0.1:1", "", 0).Send(context.Background(), "product.deleted", nil)
	assert.ErrorIs(t, err, outbound.ErrNotConfigured)
}

func TestSend_TimeoutIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	err := outbound.New(srv.URL, "s", 50*time.Millisecond).Send(context.Background(), "product.deleted", nil)
	assert.Error(t, err)
}

func TestListener_SwallowsFailures(t *testing.T) {
	srv, got := receiver(t, http.StatusInternalServerError, "boom")
	bus := event.NewBus()
	bus.Listen("product.deleted", outbound.New(srv.URL, "s", time.Second).Listener("product.deleted"))

	assert.NotPanics(t, func() {
		bus.Fire(context.Background(), "product.deleted", map[string]string{"external_id": "x"})
	})
	assert.Len(t, got.bodies, 1)
}
