package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Ranks are compared byte-wise, so the column uses the "C" collation
var postgresDialect = dialect{
	name:                 TypePostgres,
	numberedPlaceholders: true,
	lockSuffix:           " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories (user_id)`,
		`CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL REFERENCES memories (id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size BIGINT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			rank TEXT COLLATE "C" NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_memory_rank ON photos (memory_id, rank)`,
	},
}

type PostgresDatabase struct {
	sqlDatabase
}

// NewPostgresDatabase opens a connection pool through the pgx database/sql driver.
// connectionString accepts both URL ("postgres://...") and key/value DSN forms.
func NewPostgresDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresDatabase{
		sqlDatabase: sqlDatabase{db: db, dialect: postgresDialect},
	}, nil
}
