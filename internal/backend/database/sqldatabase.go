package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the supported SQL backends
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of '?'
	numberedPlaceholders bool
	// lockSuffix is appended to row reads that must block concurrent rank assignment
	lockSuffix string
	schema     []string
}

// sqlDatabase implements DatabaseService on top of database/sql
type sqlDatabase struct {
	db      *sql.DB
	dialect dialect
}

const photoColumns = "id, memory_id, user_id, filename, storage_key, content_type, size, width, height, rank, created_at"

// rebind rewrites '?' placeholders for dialects that use numbered placeholders
func (s *sqlDatabase) rebind(query string) string {
	if !s.dialect.numberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlDatabase) CreateDatabase(ctx context.Context) error {
	for _, statement := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

func (s *sqlDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlDatabase) CreateMemory(ctx context.Context, userID, title, description string) (*Memory, error) {
	memory := &Memory{
		ID:          generateID(),
		UserID:      userID,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO memories (id, user_id, title, description, created_at) VALUES (?, ?, ?, ?, ?)"),
		memory.ID, memory.UserID, memory.Title, memory.Description, memory.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}
	return memory, nil
}

func (s *sqlDatabase) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, user_id, title, description, created_at FROM memories WHERE id = ?"), id)
	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory %s: %w", id, err)
	}
	return memory, nil
}

func (s *sqlDatabase) ListMemories(ctx context.Context, userID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT id, user_id, title, description, created_at FROM memories WHERE user_id = ? ORDER BY created_at DESC, id"),
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as rows.Err is checked below
	}()

	memories := make([]*Memory, 0)
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return memories, nil
}

func (s *sqlDatabase) DeleteMemory(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM photos WHERE memory_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete photos of memory %s: %w", id, err)
		}
		result, err := tx.ExecContext(ctx, s.rebind("DELETE FROM memories WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete memory %s: %w", id, err)
		}
		return expectAffected(result)
	})
}

func (s *sqlDatabase) CreatePhoto(ctx context.Context, photo *Photo) (*Photo, error) {
	created := *photo
	created.ID = generateID()
	created.CreatedAt = time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Locks the memory row on dialects that support it so concurrent uploads
		// to the same memory do not read the same last rank
		var memoryID string
		err := tx.QueryRowContext(ctx,
			s.rebind("SELECT id FROM memories WHERE id = ?"+s.dialect.lockSuffix), created.MemoryID).Scan(&memoryID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock memory %s: %w", created.MemoryID, err)
		}

		var lastRank string
		err = tx.QueryRowContext(ctx,
			s.rebind("SELECT rank FROM photos WHERE memory_id = ? ORDER BY rank DESC LIMIT 1"), created.MemoryID).Scan(&lastRank)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read last rank: %w", err)
		}
		created.Rank = Next(lastRank)

		_, err = tx.ExecContext(ctx,
			s.rebind("INSERT INTO photos ("+photoColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			created.ID, created.MemoryID, created.UserID, created.Filename, created.StorageKey, created.ContentType,
			created.Size, created.Width, created.Height, created.Rank, created.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert photo: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *sqlDatabase) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+photoColumns+" FROM photos WHERE id = ?"), id)
	photo, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo %s: %w", id, err)
	}
	return photo, nil
}

func (s *sqlDatabase) ListPhotos(ctx context.Context, memoryID string) ([]*Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+photoColumns+" FROM photos WHERE memory_id = ? ORDER BY rank, id"), memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as rows.Err is checked below
	}()

	photos := make([]*Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photos: %w", err)
	}
	return photos, nil
}

func (s *sqlDatabase) DeletePhoto(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM photos WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", id, err)
	}
	return expectAffected(result)
}

func (s *sqlDatabase) UpdatePhotoRanks(ctx context.Context, ranks map[string]string) error {
	if len(ranks) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind("UPDATE photos SET rank = ? WHERE id = ?"))
		if err != nil {
			return fmt.Errorf("failed to prepare rank update: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for id, rank := range ranks {
			result, err := stmt.ExecContext(ctx, rank, id)
			if err != nil {
				return fmt.Errorf("failed to update rank of photo %s: %w", id, err)
			}
			if err := expectAffected(result); err != nil {
				return fmt.Errorf("photo %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *sqlDatabase) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var memory Memory
	var createdAt int64
	if err := row.Scan(&memory.ID, &memory.UserID, &memory.Title, &memory.Description, &createdAt); err != nil {
		return nil, err
	}
	memory.CreatedAt = time.Unix(0, createdAt).UTC()
	return &memory, nil
}

func scanPhoto(row rowScanner) (*Photo, error) {
	var photo Photo
	var createdAt int64
	if err := row.Scan(&photo.ID, &photo.MemoryID, &photo.UserID, &photo.Filename, &photo.StorageKey,
		&photo.ContentType, &photo.Size, &photo.Width, &photo.Height, &photo.Rank, &createdAt); err != nil {
		return nil, err
	}
	photo.CreatedAt = time.Unix(0, createdAt).UTC()
	return &photo, nil
}
