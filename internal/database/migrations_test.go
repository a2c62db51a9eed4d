package database_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Kyz7/chainverse/internal/database"
	"github.com/Kyz7/chainverse/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	t.Run("Success - Applies repository migrations once", func(t *testing.T) {
		db := testutils.TestDB(t)

		require.NoError(t, database.RunMigrations(db, "../../migrations"))
		require.NoError(t, database.RunMigrations(db, "../../migrations"))

		var applied []database.Migration
		require.NoError(t, db.Find(&applied).Error)
		assert.Len(t, applied, 1)
		assert.Equal(t, "001_active_refresh_tokens.sql", applied[0].Version)

		var count int64
		db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_refresh_tokens_live'").Scan(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Error - Failed migration is not recorded", func(t *testing.T) {
		db := testutils.TestDB(t)
		dir := t.TempDir()

		require.NoError(t, os.WriteFile(filepath.Join(dir, "001_ok.sql"), []byte("CREATE TABLE extra (id INTEGER PRIMARY KEY);"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "002_broken.sql"), []byte("CREATE TABLE;"), 0o644))

		err := database.RunMigrations(db, dir)
		assert.Error(t, err)

		var versions []string
		require.NoError(t, db.Model(&database.Migration{}).Order("version").Pluck("version", &versions).Error)
		assert.Equal(t, []string{"001_ok.sql"}, versions)
	})
}
