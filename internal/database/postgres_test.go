package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// The repository is dialect-agnostic; this pins the SQL it issues when
// running against postgres without needing a live server.
func TestRepositoryAgainstPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT version\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.2"))

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	repo := NewTrackRepository(db)

	mock.ExpectQuery(`SELECT "full_path" FROM "tracks" WHERE source_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"full_path"}).
			AddRow("Rock/a.mp3").
			AddRow("Rock/b.mp3"))

	set, err := repo.IndexedPaths(3)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, "Rock/a.mp3")

	assert.NoError(t, mock.ExpectationsWereMet())
}
