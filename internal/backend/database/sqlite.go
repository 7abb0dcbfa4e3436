package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: TypeSQLite,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories (user_id)`,
		`CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL REFERENCES memories (id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			rank TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_memory_rank ON photos (memory_id, rank)`,
	},
}

type SQLiteDatabase struct {
	sqlDatabase
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive
	// across calls, since every new connection would open a fresh empty database.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		sqlDatabase:      sqlDatabase{db: db, dialect: sqliteDialect},
		connectionString: connectionString,
	}, nil
}
