// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	_ "github.com/shashiranjanraj/catalogsync/database/migrations"
	"github.com/shashiranjanraj/catalogsync/pkg/database"
	"github.com/shashiranjanraj/catalogsync/pkg/migration"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// DB returns a migrated in-memory SQLite database private to t.
// A single connection keeps the memory database alive for the test.
func DB(t *testing.T) *gorm.DB {
	t.Helper()

	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	name := unsafeName.ReplaceAllString(t.Name(), "_") + "_" + hex.EncodeToString(suffix)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := database.Open("sqlite", dsn, database.Options{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	_, err = migration.New(db, nil).Run()
	require.NoError(t, err)
	return db
}
