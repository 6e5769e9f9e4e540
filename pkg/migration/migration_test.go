package migration_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/pkg/database"
	"github.com/shashiranjanraj/catalogsync/pkg/migration"
)

type widget struct {
	ID   uint
	Name string
}

type createWidgets struct{}

func (createWidgets) Up(db *gorm.DB) error   { return db.AutoMigrate(&widget{}) }
func (createWidgets) Down(db *gorm.DB) error { return db.Migrator().DropTable(&widget{}) }

func init() {
	migration.Register("20260101000000_create_widgets_table", createWidgets{})
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "file:migration_test?mode=memory&cache=shared", database.Options{
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestRunner_RunRollbackStatus(t *testing.T) {
	db := openDB(t)
	var out bytes.Buffer
	r := migration.New(db, &out)

	n, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, db.Migrator().HasTable(&widget{}))
	assert.Contains(t, out.String(), "Migrated:  20260101000000_create_widgets_table")

	n, err = r.Run()
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := r.Status()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Ran)
	assert.Equal(t, 1, rows[0].Batch)

	n, err = r.Rollback()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, db.Migrator().HasTable(&widget{}))

	rows, err = r.Status()
	require.NoError(t, err)
	assert.False(t, rows[0].Ran)

	n, err = r.Rollback()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		migration.Register("20260101000000_create_widgets_table", createWidgets{})
	})
}
