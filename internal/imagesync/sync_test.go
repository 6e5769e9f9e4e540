package imagesync_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/internal/imagesync"
	"github.com/shashiranjanraj/catalogsync/internal/testutil"
	"github.com/shashiranjanraj/catalogsync/pkg/storage"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'f', 'i', 'f'}

func imageHost(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(jpeg)
		})
	}
	mux.HandleFunc("/big.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	})
	mux.HandleFunc("/chunked.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		for i := 0; i < 8; i++ {
			_, _ = w.Write(bytes.Repeat([]byte("y"), 8))
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func seedProduct(t *testing.T, db *gorm.DB) catalog.Product {
	t.Helper()
	p := catalog.Product{Name: "Mug", Code: "MUG", Slug: "mug", IsActive: true, IsAvailable: true}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedImage(t *testing.T, db *gorm.DB, disk *storage.Memory, p catalog.Product, path, source string, pos int) {
	t.Helper()
	require.NoError(t, disk.Put(context.Background(), path, bytes.NewReader(jpeg), "image/jpeg"))
	require.NoError(t, db.Create(&catalog.ProductImage{
		ProductID: p.ID, Path: path, SourceURL: source, ContentType: "image/jpeg", Size: int64(len(jpeg)), Position: pos,
	}).Error)
}

func newSync(db *gorm.DB, disk storage.Disk, maxBytes int64, opts ...imagesync.Option) *imagesync.Synchronizer {
	opts = append([]imagesync.Option{
		imagesync.WithFetcher(imagesync.NewFetcher(maxBytes, 5*time.Second, 0)),
		imagesync.WithWorkers(2),
	}, opts...)
	return imagesync.New(db, disk, opts...)
}

func TestSync_DiffAddsDeletesSkips(t *testing.T) {
	db := testutil.DB(t)
	disk := storage.NewMemory("http://cdn.test")
	host := imageHost(t)
	s := newSync(db, disk, 1<<20)
	defer s.Close()

	p := seedProduct(t, db)
	seedImage(t, db, disk, p, "products/1/manual.jpg", "", 0)
	seedImage(t, db, disk, p, "products/1/aaaa_a.jpg", host.URL+"/a.jpg", 1)
	seedImage(t, db, disk, p, "products/1/bbbb_b.jpg", host.URL+"/b.jpg", 2)

	st := s.Sync(context.Background(), p, []string{host.URL + "/b.jpg", host.URL + "/c.jpg"})
	assert.Equal(t, imagesync.Stats{Added: 1, Deleted: 1, Skipped: 1, Failed: 0}, st)

	var imgs []catalog.ProductImage
	require.NoError(t, db.Where("product_id = ?", p.ID).Order("position").Find(&imgs).Error)
	require.Len(t, imgs, 3)
	assert.Equal(t, "", imgs[0].SourceURL, "manual image kept")
	assert.Equal(t, host.URL+"/b.jpg", imgs[1].SourceURL)
	assert.Equal(t, host.URL+"/c.jpg", imgs[2].SourceURL)
	assert.Equal(t, 3, imgs[2].Position)
	assert.Regexp(t, regexp.MustCompile(`^products/\d+/[0-9a-f]{8}_c\.jpg$`), imgs[2].Path)
	assert.Equal(t, "image/jpeg", imgs[2].ContentType)

	assert.False(t, disk.Exists(context.Background(), "products/1/aaaa_a.jpg"), "removed image blob deleted")
	assert.True(t, disk.Exists(context.Background(), "products/1/manual.jpg"))
	got, ok := disk.Bytes(imgs[2].Path)
	require.True(t, ok)
	assert.Equal(t, jpeg, got)
}

func TestSync_EmptyListKeepsManualImages(t *testing.T) {
	db := testutil.DB(t)
	disk := storage.NewMemory("")
	s := newSync(db, disk, 1<<20)
	defer s.Close()

	p := seedProduct(t, db)
	seedImage(t, db, disk, p, "manual.jpg", "", 0)
	seedImage(t, db, disk, p, "synced.jpg", "https://img.test/x.jpg", 1)

	st := s.Sync(context.Background(), p, nil)
	assert.Equal(t, 1, st.Deleted)

	var paths []string
	db.Model(&catalog.ProductImage{}).Where("product_id = ?", p.ID).Pluck("path", &paths)
	assert.Equal(t, []string{"manual.jpg"}, paths)
}

func TestSync_IsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	disk := storage.NewMemory("")
	host := imageHost(t)
	s := newSync(db, disk, 1<<20)
	defer s.Close()

	p := seedProduct(t, db)
	refs := []string{host.URL + "/a.jpg", host.URL + "/b.jpg", host.URL + "/a.jpg"}

	first := s.Sync(context.Background(), p, refs)
	assert.Equal(t, 2, first.Added)

	second := s.Sync(context.Background(), p, refs)
	assert.Equal(t, imagesync.Stats{Skipped: 2}, second)
}

func TestSync_RejectsAreCountedNotFatal(t *testing.T) {
	db := testutil.DB(t)
	disk := storage.NewMemory("")
	host := imageHost(t)
	s := newSync(db, disk, 32)
	defer s.Close()

	p := seedProduct(t, db)
	st := s.Sync(context.Background(), p, []string{
		host.URL + "/big.png",
		host.URL + "/chunked.png",
		host.URL + "/page.html",
		host.URL + "/missing.jpg",
		"ftp://files.test/x.jpg",
		host.URL + "/d.jpg",
	})

	assert.Equal(t, 1, st.Added)
	assert.Equal(t, 5, st.Failed)
	require.Len(t, st.Errors, 5)
	assert.Contains(t, st.Errors[0], host.URL+"/big.png: ")
	assert.Contains(t, st.Errors[0], imagesync.ErrTooLarge.Error())
	assert.Contains(t, st.Errors[1], imagesync.ErrTooLarge.Error(), "streamed size checked without a length header")
	assert.Contains(t, st.Errors[2], imagesync.ErrNotImage.Error())
	assert.Contains(t, st.Errors[3], "404")
	assert.Contains(t, st.Errors[4], imagesync.ErrScheme.Error())
}

func TestSync_ErrorListIsCapped(t *testing.T) {
	db := testutil.DB(t)
	s := newSync(db, storage.NewMemory(""), 1<<20)
	defer s.Close()

	p := seedProduct(t, db)
	var refs []string
	for i := 0; i < 30; i++ {
		refs = append(refs, "ftp://files.test/"+strings.Repeat("x", i+1)+".jpg")
	}
	st := s.Sync(context.Background(), p, refs)
	assert.Equal(t, 30, st.Failed)
	assert.Len(t, st.Errors, imagesync.MaxErrors)
}

func TestSync_RelativeURLsUseBase(t *testing.T) {
	db := testutil.DB(t)
	disk := storage.NewMemory("")
	host := imageHost(t)
	s := newSync(db, disk, 1<<20, imagesync.WithBaseURL(host.URL))
	defer s.Close()

	p := seedProduct(t, db)
	st := s.Sync(context.Background(), p, []string{"/a.jpg"})
	assert.Equal(t, 1, st.Added)

	var img catalog.ProductImage
	require.NoError(t, db.Where("product_id = ?", p.ID).First(&img).Error)
	assert.Equal(t, host.URL+"/a.jpg", img.SourceURL)
}

func TestStats_AddKeepsCap(t *testing.T) {
	var total imagesync.Stats
	for i := 0; i < 3; i++ {
		total.Add(imagesync.Stats{Added: 1, Failed: 10, Errors: make([]string, 10)})
	}
	assert.Equal(t, 3, total.Added)
	assert.Equal(t, 30, total.Failed)
	assert.Len(t, total.Errors, imagesync.MaxErrors)
}
