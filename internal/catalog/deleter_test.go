package catalog_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/internal/testutil"
	"github.com/shashiranjanraj/catalogsync/pkg/event"
	"github.com/shashiranjanraj/catalogsync/pkg/storage"
)

func TestDeleter_SnapshotsRemovesAndAnnounces(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	disk := storage.NewMemory("http://media.test")
	bus := event.NewBus()

	var (
		mu    sync.Mutex
		fired []catalog.PublicProduct
	)
	bus.Listen(catalog.EventProductDeleted, func(_ context.Context, p any) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, p.(catalog.PublicProduct))
	})

	res, err := catalog.NewReconciler(db).Reconcile(ctx, catalog.Item{
		ExternalID: uuid.New(),
		Name:       str("Kettle"),
		Price:      dec("49.9"),
		Category:   &catalog.CategoryRef{Name: "Kitchen"},
	})
	require.NoError(t, err)

	require.NoError(t, disk.Put(ctx, "products/1/a.jpg", strings.NewReader("x"), "image/jpeg"))
	require.NoError(t, db.Create(&catalog.ProductImage{ProductID: res.Product.ID, Path: "products/1/a.jpg", SourceURL: "http://crm/a.jpg"}).Error)
	require.NoError(t, db.Create(&catalog.ProductImage{ProductID: res.Product.ID, Path: "manual/b.jpg"}).Error)

	snap, err := catalog.NewDeleter(db, disk, bus).Delete(ctx, res.Product.ID)
	require.NoError(t, err)

	assert.Equal(t, res.Product.ExternalID.String(), snap.ExternalID)
	require.NotNil(t, snap.Price)
	assert.Equal(t, "49.90", *snap.Price)
	assert.Nil(t, snap.OldPrice)
	require.NotNil(t, snap.Category)
	assert.Equal(t, "kitchen", snap.Category.Slug)
	require.Len(t, snap.Images, 2)
	assert.Equal(t, "http://media.test/products/1/a.jpg", snap.Images[0].ImageURL)

	bus.Wait()
	require.Len(t, fired, 1)
	assert.Equal(t, snap, fired[0])

	var n int64
	db.Model(&catalog.Product{}).Count(&n)
	assert.Zero(t, n)
	db.Model(&catalog.ProductImage{}).Count(&n)
	assert.Zero(t, n)
	assert.Empty(t, disk.Paths())
}

func TestDeleter_NotFound(t *testing.T) {
	db := testutil.DB(t)
	bus := event.NewBus()
	called := false
	bus.Listen(catalog.EventProductDeleted, func(context.Context, any) { called = true })

	_, err := catalog.NewDeleter(db, nil, bus).Delete(context.Background(), 999)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	bus.Wait()
	assert.False(t, called)
}

func TestDeleter_AnnouncesOffTheCallersContext(t *testing.T) {
	db := testutil.DB(t)
	bus := event.NewBus()

	release := make(chan struct{})
	listenerErr := make(chan error, 1)
	bus.Listen(catalog.EventProductDeleted, func(ctx context.Context, _ any) {
		<-release
		listenerErr <- ctx.Err()
	})

	res, err := catalog.NewReconciler(db).Reconcile(context.Background(), catalog.Item{ExternalID: uuid.New(), Name: str("Cup")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := catalog.NewDeleter(db, nil, bus).Delete(ctx, res.Product.ID)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Delete blocked on its listener")
	}

	cancel()
	close(release)
	bus.Wait()
	assert.NoError(t, <-listenerErr, "listener context outlives the request")
}

func TestRepository_Lookups(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := catalog.NewReconciler(db).Reconcile(ctx, catalog.Item{ExternalID: id, Name: str("Lamp")})
	require.NoError(t, err)

	repo := catalog.NewRepository(db)
	p, err := repo.ByExternalID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", p.Name)

	p, err = repo.BySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, id, p.ExternalID)

	_, err = repo.ByExternalID(ctx, uuid.New())
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestProduct_BeforeCreateAssignsExternalID(t *testing.T) {
	db := testutil.DB(t)
	p := catalog.Product{Code: "manual", Name: "Manual", Slug: "manual", IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	assert.NotEqual(t, uuid.Nil, p.ExternalID)
}
