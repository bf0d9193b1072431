package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/lumenworks/sitetrans/artifact"
	"github.com/lumenworks/sitetrans/lockfile"
	"github.com/lumenworks/sitetrans/translate"
)

// SplitFields separates the fields sent for translation from the ones copied
// verbatim into every locale (images, ordering, icons).
func SplitFields(fields map[string]any, exclude []string) (translatable, kept map[string]any) {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	translatable = make(map[string]any, len(fields))
	kept = make(map[string]any)
	for name, value := range fields {
		if skip[name] {
			kept[name] = value
			continue
		}
		translatable[name] = value
	}
	return translatable, kept
}

// RecordSink persists a translated record tree as the target-locale row of
// Source, re-attaching the fields that were excluded from translation.
// When the repository write fails and Recovery is set, the merged fields are
// written there as artifact Name instead.
type RecordSink struct {
	Repo     Repository
	Source   Record
	Locale   string
	Keep     map[string]any
	Recovery artifact.Store
	Name     string
}

// Persist implements translate.Sink.
func (s RecordSink) Persist(ctx context.Context, tree any) (artifact.Receipt, error) {
	translated, ok := tree.(map[string]any)
	if !ok {
		return artifact.Receipt{}, fmt.Errorf("%w: record %s: merged tree is %T, want object", artifact.ErrPersistence, s.Source.Key(), tree)
	}

	fields := make(map[string]any, len(translated)+len(s.Keep))
	for name, value := range translated {
		fields[name] = value
	}
	for name, value := range s.Keep {
		fields[name] = value
	}

	stored, err := s.Repo.SaveTranslation(ctx, s.Source, s.Locale, fields)
	if err == nil {
		return artifact.Receipt{Path: fmt.Sprintf("content_records/%s@%s", stored.Key(), stored.Locale)}, nil
	}
	if s.Recovery == nil {
		return artifact.Receipt{}, fmt.Errorf("%w: %v", artifact.ErrPersistence, err)
	}

	rec, ferr := s.Recovery.PutArtifact(context.WithoutCancel(ctx), s.Name, fields)
	if ferr != nil {
		return artifact.Receipt{}, fmt.Errorf("%w: record %s@%s: %v (local fallback: %v)", artifact.ErrPersistence, s.Source.Key(), s.Locale, err, ferr)
	}
	rec.Fallback = true
	return rec, nil
}

// Jobs builds one record-budget job per (record, language) pair. Records are
// expected in the source locale; exclude names the verbatim fields. Records
// the repository refuses are written to recovery under the job's artifact name.
func Jobs(repo Repository, recovery artifact.Store, records []Record, exclude, langs []string) []translate.Job {
	var jobs []translate.Job
	for _, rec := range records {
		baseline, kept := SplitFields(rec.Fields, exclude)
		for _, lang := range langs {
			name := fmt.Sprintf("records/%s/%s.%s.json", rec.Kind, rec.Slug, lang)
			jobs = append(jobs, translate.Job{
				Scope:    lockfile.RecordScope(rec.Kind, rec.Slug),
				Lang:     lang,
				Baseline: baseline,
				Budget:   translate.BudgetRecord,
				Artifact: name,
				Sink: RecordSink{
					Repo:     repo,
					Source:   rec,
					Locale:   lang,
					Keep:     kept,
					Recovery: recovery,
					Name:     name,
				},
			})
		}
	}
	return jobs
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// ImportRecord is one element of an import file.
type ImportRecord struct {
	Kind   string         `json:"kind"`
	Slug   string         `json:"slug"`
	Locale string         `json:"locale"`
	Fields map[string]any `json:"fields"`
}

// Validate checks the identifying fields.
func (r ImportRecord) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required),
		validation.Field(&r.Slug, validation.Required),
		validation.Field(&r.Locale, validation.Required),
		validation.Field(&r.Fields, validation.Required),
	)
}

// Import upserts the records of a JSON array read from r and returns how
// many were stored. Every element is validated before anything is written.
func Import(ctx context.Context, repo Repository, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var items []ImportRecord
	if err := dec.Decode(&items); err != nil {
		return 0, fmt.Errorf("decode import: %w", err)
	}

	for i, item := range items {
		if err := item.Validate(); err != nil {
			return 0, fmt.Errorf("import item #%d: %w", i+1, err)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].Slug < items[j].Slug
	})

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := repo.Upsert(ctx, Record{
			Kind:   item.Kind,
			Slug:   item.Slug,
			Locale: item.Locale,
			Fields: item.Fields,
		}); err != nil {
			return i, err
		}
	}
	return len(items), nil
}
