// Package content stores the site's dynamic content records (services,
// case studies, FAQ entries) and adapts them to the translation pipeline.
//
// Each record holds the fields of one item in one locale. Translating a
// record means reading the source-locale row, sending the translatable
// fields to the model and upserting the merged result under the target
// locale.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("content: record not found")

// Record is one content item in one locale.
type Record struct {
	bun.BaseModel `bun:"table:content_records,alias:cr"`

	ID        uuid.UUID      `bun:",pk,type:uuid" json:"id"`
	Kind      string         `bun:"kind,notnull" json:"kind"`
	Slug      string         `bun:"slug,notnull" json:"slug"`
	Locale    string         `bun:"locale,notnull" json:"locale"`
	Fields    map[string]any `bun:"fields,type:jsonb,notnull" json:"fields"`
	UpdatedAt time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

// Key identifies the record independent of locale, e.g. "service/cloud".
func (r Record) Key() string {
	return r.Kind + "/" + r.Slug
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Kind   string
	Slug   string
	Locale string
}

// Repository persists content records.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Record, error)
	Get(ctx context.Context, kind, slug, locale string) (Record, error)
	Upsert(ctx context.Context, record Record) (Record, error)
	SaveTranslation(ctx context.Context, source Record, locale string, fields map[string]any) (Record, error)
	CountByLocale(ctx context.Context, kind string) (map[string]int, error)
}

// ---------------------------------------------------------------------------
// Database
// ---------------------------------------------------------------------------

// Open opens the SQLite database at dsn. A bare file path is accepted.
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the records table and its unique (kind, slug, locale) index.
func Migrate(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table content_records: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*Record)(nil)).
		Index("content_records_kind_slug_locale_idx").
		Unique().
		Column("kind", "slug", "locale").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create index content_records: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Bun repository
// ---------------------------------------------------------------------------

// BunRepository persists records using a Bun-backed database.
type BunRepository struct {
	db  *bun.DB
	now func() time.Time
}

// NewBunRepository constructs a Bun-backed repository.
func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// List returns matching records ordered by kind, slug and locale.
func (r *BunRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	var records []Record
	q := r.db.NewSelect().Model(&records)
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Slug != "" {
		q = q.Where("slug = ?", filter.Slug)
	}
	if filter.Locale != "" {
		q = q.Where("locale = ?", filter.Locale)
	}
	if err := q.Order("kind ASC", "slug ASC", "locale ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Get returns one record or ErrNotFound.
func (r *BunRepository) Get(ctx context.Context, kind, slug, locale string) (Record, error) {
	var record Record
	err := r.db.NewSelect().
		Model(&record).
		Where("kind = ?", kind).
		Where("slug = ?", slug).
		Where("locale = ?", locale).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %s/%s@%s", ErrNotFound, kind, slug, locale)
		}
		return Record{}, err
	}
	return record, nil
}

// Upsert inserts the record or replaces the fields of the existing
// (kind, slug, locale) row. The stored row is returned.
func (r *BunRepository) Upsert(ctx context.Context, record Record) (Record, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Fields == nil {
		record.Fields = map[string]any{}
	}
	record.UpdatedAt = r.now()

	_, err := r.db.NewInsert().
		Model(&record).
		On("CONFLICT (kind, slug, locale) DO UPDATE").
		Set("fields = EXCLUDED.fields").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("upsert %s@%s: %w", record.Key(), record.Locale, err)
	}
	return r.Get(ctx, record.Kind, record.Slug, record.Locale)
}

// SaveTranslation stores fields as the locale variant of source.
func (r *BunRepository) SaveTranslation(ctx context.Context, source Record, locale string, fields map[string]any) (Record, error) {
	return r.Upsert(ctx, Record{
		Kind:   source.Kind,
		Slug:   source.Slug,
		Locale: locale,
		Fields: fields,
	})
}

// CountByLocale returns the number of records per locale, optionally
// restricted to one kind.
func (r *BunRepository) CountByLocale(ctx context.Context, kind string) (map[string]int, error) {
	var rows []struct {
		Locale string `bun:"locale"`
		Count  int    `bun:"count"`
	}
	q := r.db.NewSelect().
		Model((*Record)(nil)).
		Column("locale").
		ColumnExpr("COUNT(*) AS count").
		Group("locale")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Locale] = row.Count
	}
	return counts, nil
}
