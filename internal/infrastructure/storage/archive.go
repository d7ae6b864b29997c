// Package storage persists the append-only archive in Postgres. Every
// approved article lands here at approval time and is never deleted by normal
// operation; rotation only trims the live listing.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
)

const dateLayout = "2006-01-02"

// ArchiveRepository implements the archive port over Postgres.
type ArchiveRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.Archive = (*ArchiveRepository)(nil)

// NewArchiveRepository wires a sql.DB.
func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to Postgres and ensures the schema.
func Open(ctx context.Context, dsn string) (*ArchiveRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}

	repo := NewArchiveRepository(db)
	if err := repo.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the connection pool.
func (r *ArchiveRepository) Close() error {
	return r.db.Close()
}

func (r *ArchiveRepository) ensureSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS archive (
		id BIGSERIAL PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		headline TEXT NOT NULL,
		teaser TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		approved_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Contains reports whether the URL was ever archived.
func (r *ArchiveRepository) Contains(ctx context.Context, url string) (bool, error) {
	query, args, err := r.builder.
		Select("1").
		From("archive").
		Where(sq.Eq{"url": url}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build contains query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query archive for %s: %w", url, err)
	}
	return true, nil
}

// ContainsRef reports whether any archived URL hashes to the short decision
// ref. The digest is computed in Postgres so no ref column is needed.
func (r *ArchiveRepository) ContainsRef(ctx context.Context, ref string) (bool, error) {
	query, args, err := r.builder.
		Select("1").
		From("archive").
		Where(sq.Expr("encode(substring(sha256(convert_to(url, 'UTF8')) from 1 for 8), 'hex') = ?", ref)).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build ref query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query archive for ref %s: %w", ref, err)
	}
	return true, nil
}

// Add appends one approved article. Re-adding an existing URL is a no-op, so
// replayed decisions stay idempotent at this layer too.
func (r *ArchiveRepository) Add(ctx context.Context, article domain.Article) error {
	approved := article.ApprovedDate
	if approved == "" {
		approved = time.Now().UTC().Format(dateLayout)
	}

	query, args, err := r.builder.
		Insert("archive").
		Columns("url", "headline", "teaser", "source", "category", "word_count", "score", "approved_date").
		Values(article.URL, article.Title, article.Teaser, article.Source,
			string(article.Category), article.WordCount, article.Score, approved).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert archive entry %s: %w", article.URL, err)
	}
	return nil
}

// ByDate returns the whole history grouped by approval date and category,
// newest entries first within a category.
func (r *ArchiveRepository) ByDate(ctx context.Context) (map[string]map[domain.Category][]domain.Article, error) {
	query, args, err := r.builder.
		Select("url", "headline", "teaser", "source", "category", "word_count", "score", "approved_date").
		From("archive").
		OrderBy("approved_date DESC", "category", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build export query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	out := map[string]map[domain.Category][]domain.Article{}
	for rows.Next() {
		var (
			a        domain.Article
			category string
			approved time.Time
		)
		if err := rows.Scan(&a.URL, &a.Title, &a.Teaser, &a.Source, &category,
			&a.WordCount, &a.Score, &approved); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		a.Category = domain.Category(category)
		a.ApprovedDate = approved.Format(dateLayout)
		a.Status = domain.StatusArchived

		day := out[a.ApprovedDate]
		if day == nil {
			day = map[domain.Category][]domain.Article{}
			out[a.ApprovedDate] = day
		}
		day[a.Category] = append(day[a.Category], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return out, nil
}
