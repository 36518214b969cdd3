package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRunEmbeddedCreatesImagesTable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_embedded?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, RunEmbedded(context.Background(), sqlDB, "sqlite3", "up"))

	require.True(t, conn.Migrator().HasTable("images"))
	for _, column := range []string{"image_id", "status", "labels", "thumb_key", "content_type", "failure_reason", "created_at", "updated_at"} {
		assert.True(t, conn.Migrator().HasColumn("images", column), "missing column %s", column)
	}

	err = conn.Exec(`INSERT INTO images (image_id, status, content_type) VALUES ('a', 'DONE', 'image/png')`).Error
	assert.Error(t, err, "unknown status must be rejected")

	err = conn.Exec(`INSERT INTO images (image_id, status, content_type) VALUES ('b', 'READY', 'image/png')`).Error
	assert.Error(t, err, "READY without labels and thumb key must be rejected")

	err = conn.Exec(`INSERT INTO images (image_id, status, content_type, thumb_key) VALUES ('c', 'UPLOADING', 'image/png', 'thumb/c.jpg')`).Error
	assert.Error(t, err, "thumb key outside READY must be rejected")

	err = conn.Exec(`INSERT INTO images (image_id, status, content_type, labels, thumb_key) VALUES ('d', 'READY', 'image/png', '[]', 'thumb/d.jpg')`).Error
	assert.NoError(t, err)

	// a second up is a no-op
	require.NoError(t, RunEmbedded(context.Background(), sqlDB, "sqlite3", "up"))
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid migration filename")

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644))
	err = ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "+goose Down")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Image Width!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_image_width.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}
