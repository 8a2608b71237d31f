package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// SQLiteStorage is a StorageEngine that keeps payloads as ordered chunk rows
// in a SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath and
// applies the embedded migrations.
func NewSQLiteStorage(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path must not be empty")
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStorage{db: db}, nil
}

// initSchema applies all SQL files in the embedded migrations directory in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		if _, execError := db.ExecContext(ctx, string(content)); execError != nil {
			return fmt.Errorf("migration %s: %w", path, execError)
		}
		return nil
	})
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// PutBlob replaces the chunks stored under key inside one transaction.
// Empty chunks are not stored.
func (s *SQLiteStorage) PutBlob(ctx context.Context, key string, src ChunkSource) error {
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blobs(key, size, modified_at) VALUES(?, 0, ?)
			 ON CONFLICT(key) DO UPDATE SET size = 0, modified_at = excluded.modified_at`,
			key, now,
		); err != nil {
			return fmt.Errorf("upsert blob: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(key, seq, data) VALUES(?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		var seq, size int64
		for {
			chunk, err := src.NextChunk(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if len(chunk) == 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, key, seq, chunk); err != nil {
				return fmt.Errorf("insert chunk %d: %w", seq, err)
			}
			seq++
			size += int64(len(chunk))
		}

		if _, err := tx.ExecContext(ctx, `UPDATE blobs SET size = ? WHERE key = ?`, size, key); err != nil {
			return fmt.Errorf("update blob size: %w", err)
		}
		return nil
	})
}

// GetBlob streams the chunk rows of key from a read transaction, so the
// stream reflects a single committed write.
func (s *SQLiteStorage) GetBlob(ctx context.Context, key string) (ChunkStream, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, false, fmt.Errorf("error beginning transaction: %w", err)
	}

	var size int64
	err = tx.QueryRowContext(ctx, `SELECT size FROM blobs WHERE key = ?`, key).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, false, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT data FROM chunks WHERE key = ? ORDER BY seq`, key)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}

	return &rowChunks{tx: tx, rows: rows}, true, nil
}

type rowChunks struct {
	tx   *sql.Tx
	rows *sql.Rows
}

func (s *rowChunks) NextChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var data []byte
	if err := s.rows.Scan(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *rowChunks) Close() error {
	err := s.rows.Close()
	if rbErr := s.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		err = errors.Join(err, rbErr)
	}
	return err
}
