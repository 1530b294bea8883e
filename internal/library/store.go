// Package library persists media items and their transcripts, analyses,
// sections and tags.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/mediaflow/internal/job"
)

var ErrMediaNotFound = errors.New("media item not found")

// Tag types and sources.
const (
	TagPeople = "people"
	TagTopic  = "topic"

	SourceAI   = "ai"
	SourceUser = "user"
)

type Library struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	ClipFolder string `db:"clip_folder"`
	Active     bool   `db:"active"`
	CreatedAt  string `db:"created_at"`
}

// Item is one media file in the library.
type Item struct {
	ID             string `db:"id"`
	LibraryID      string `db:"library_id"`
	Path           string `db:"path"`
	Filename       string `db:"filename"`
	Title          string `db:"title"`
	FileHash       string `db:"file_hash"`
	SizeBytes      int64  `db:"size_bytes"`
	UploadDate     string `db:"upload_date"`
	Description    string `db:"ai_description"`
	SuggestedTitle string `db:"suggested_title"`
	CreatedAt      string `db:"created_at"`
	UpdatedAt      string `db:"updated_at"`
}

type Transcript struct {
	MediaID  string `db:"media_id"`
	Text     string `db:"text"`
	SRT      string `db:"srt"`
	Language string `db:"language"`
}

type Analysis struct {
	MediaID       string  `db:"media_id"`
	Provider      string  `db:"provider"`
	Model         string  `db:"model"`
	Report        string  `db:"report"`
	TokensUsed    int     `db:"tokens_used"`
	EstimatedCost float64 `db:"estimated_cost"`
}

// Section is a stored analysis section with times in seconds.
type Section struct {
	StartSeconds float64
	EndSeconds   float64
	Category     string
	Description  string
	Quotes       []job.Quote
}

type Tag struct {
	Name   string `db:"name"`
	Type   string `db:"tag_type"`
	Source string `db:"source"`
}

// MediaState summarizes what has already been persisted for an item.
type MediaState struct {
	Item          Item
	HasTranscript bool
	HasAnalysis   bool
}

type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

const itemColumns = `id, library_id, path, filename, title, file_hash, size_bytes,
	upload_date, ai_description, suggested_title, created_at, updated_at`

// CreateLibrary registers a library. An active library becomes the only active one.
func (s *Store) CreateLibrary(ctx context.Context, name, clipFolder string, active bool) (*Library, error) {
	lib := &Library{
		ID:         uuid.NewString(),
		Name:       name,
		ClipFolder: clipFolder,
		Active:     active,
		CreatedAt:  s.timestamp(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if active {
		if _, err := tx.ExecContext(ctx, `UPDATE libraries SET active = 0`); err != nil {
			return nil, fmt.Errorf("failed to deactivate libraries: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO libraries (id, name, clip_folder, active, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		lib.ID, lib.Name, lib.ClipFolder, boolInt(active), lib.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create library: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit library: %w", err)
	}
	return lib, nil
}

// ActiveClipFolder returns the clip folder of the active library, or "" when no
// library is active.
func (s *Store) ActiveClipFolder(ctx context.Context) (string, error) {
	var folder string
	err := s.db.GetContext(ctx, &folder, `SELECT clip_folder FROM libraries WHERE active = 1 LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active library: %w", err)
	}
	return folder, nil
}

func (s *Store) activeLibraryID(ctx context.Context) string {
	var id string
	if err := s.db.GetContext(ctx, &id, `SELECT id FROM libraries WHERE active = 1 LIMIT 1`); err != nil {
		return ""
	}
	return id
}

func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	return s.getItem(ctx, `SELECT `+itemColumns+` FROM media_items WHERE id = ?`, id)
}

func (s *Store) FindByPath(ctx context.Context, path string) (*Item, error) {
	return s.getItem(ctx, `SELECT `+itemColumns+` FROM media_items WHERE path = ?`, filepath.Clean(path))
}

func (s *Store) getItem(ctx context.Context, query string, arg any) (*Item, error) {
	var item Item
	err := s.db.GetContext(ctx, &item, s.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media item: %w", err)
	}
	return &item, nil
}

// Import adds a file to the active library. A file already known by path or by
// content hash returns the existing item.
func (s *Store) Import(ctx context.Context, path string) (*Item, error) {
	path = filepath.Clean(path)
	if item, err := s.FindByPath(ctx, path); err == nil {
		return item, nil
	} else if !errors.Is(err, ErrMediaNotFound) {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", job.ErrImport, err)
	}
	hash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", job.ErrImport, err)
	}

	if existing, err := s.getItem(ctx, `SELECT `+itemColumns+` FROM media_items WHERE file_hash = ? LIMIT 1`, hash); err == nil {
		s.logger.Info("Import matched existing item by hash",
			slog.String("media_id", existing.ID),
			slog.String("path", path),
		)
		return existing, nil
	}

	return s.insertItem(ctx, path, job.TitleFromPath(path), hash, info.Size())
}

// CreateMinimal records a file that could not be imported, keyed by a pseudo-hash
// of its name, size and modification time.
func (s *Store) CreateMinimal(ctx context.Context, path, title string) (*Item, error) {
	path = filepath.Clean(path)
	var (
		size    int64
		modTime time.Time
	)
	if info, err := os.Stat(path); err == nil {
		size, modTime = info.Size(), info.ModTime()
	}
	if title == "" {
		title = job.TitleFromPath(path)
	}
	return s.insertItem(ctx, path, title, PseudoHash(filepath.Base(path), size, modTime), size)
}

func (s *Store) insertItem(ctx context.Context, path, title, hash string, size int64) (*Item, error) {
	now := s.timestamp()
	item := &Item{
		ID:         uuid.NewString(),
		LibraryID:  s.activeLibraryID(ctx),
		Path:       path,
		Filename:   filepath.Base(path),
		Title:      title,
		FileHash:   hash,
		SizeBytes:  size,
		UploadDate: InferUploadDate(path),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO media_items (`+itemColumns+`)
		VALUES (:id, :library_id, :path, :filename, :title, :file_hash, :size_bytes,
			:upload_date, :ai_description, :suggested_title, :created_at, :updated_at)`,
		item,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert media item: %w", err)
	}
	return item, nil
}

// UpdatePath moves an item to a new file path.
func (s *Store) UpdatePath(ctx context.Context, id, path string) error {
	path = filepath.Clean(path)
	return s.updateItem(ctx, `UPDATE media_items SET path = ?, filename = ?, updated_at = ? WHERE id = ?`,
		path, filepath.Base(path), s.timestamp(), id)
}

func (s *Store) SetDescription(ctx context.Context, id, description string) error {
	return s.updateItem(ctx, `UPDATE media_items SET ai_description = ?, updated_at = ? WHERE id = ?`,
		description, s.timestamp(), id)
}

func (s *Store) SetSuggestedTitle(ctx context.Context, id, title string) error {
	return s.updateItem(ctx, `UPDATE media_items SET suggested_title = ?, updated_at = ? WHERE id = ?`,
		title, s.timestamp(), id)
}

func (s *Store) updateItem(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update media item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMediaNotFound
	}
	return nil
}

func (s *Store) SaveTranscript(ctx context.Context, t Transcript) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO transcripts (media_id, text, srt, language, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (media_id) DO UPDATE SET
			text = excluded.text, srt = excluded.srt, language = excluded.language`),
		t.MediaID, t.Text, t.SRT, t.Language, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// Transcript returns the stored transcript or nil when there is none.
func (s *Store) Transcript(ctx context.Context, mediaID string) (*Transcript, error) {
	var t Transcript
	err := s.db.GetContext(ctx, &t, s.db.Rebind(
		`SELECT media_id, text, srt, language FROM transcripts WHERE media_id = ?`), mediaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &t, nil
}

func (s *Store) SaveAnalysis(ctx context.Context, a Analysis) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO analyses (media_id, provider, model, report, tokens_used, estimated_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_id) DO UPDATE SET
			provider = excluded.provider, model = excluded.model, report = excluded.report,
			tokens_used = excluded.tokens_used, estimated_cost = excluded.estimated_cost,
			created_at = excluded.created_at`),
		a.MediaID, a.Provider, a.Model, a.Report, a.TokensUsed, a.EstimatedCost, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// ReplaceSections swaps the stored sections of an item for the given ones.
func (s *Store) ReplaceSections(ctx context.Context, mediaID string, sections []Section) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM analysis_sections WHERE media_id = ?`), mediaID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	insert := tx.Rebind(`
		INSERT INTO analysis_sections
			(id, media_id, position, start_seconds, end_seconds, category, description, quotes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, sec := range sections {
		quotes, err := json.Marshal(sec.Quotes)
		if err != nil {
			return fmt.Errorf("failed to encode quotes: %w", err)
		}
		if sec.Quotes == nil {
			quotes = []byte("[]")
		}
		if _, err := tx.ExecContext(ctx, insert,
			uuid.NewString(), mediaID, i, sec.StartSeconds, sec.EndSeconds,
			sec.Category, sec.Description, string(quotes),
		); err != nil {
			return fmt.Errorf("failed to insert section: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Sections(ctx context.Context, mediaID string) ([]Section, error) {
	var rows []struct {
		StartSeconds float64 `db:"start_seconds"`
		EndSeconds   float64 `db:"end_seconds"`
		Category     string  `db:"category"`
		Description  string  `db:"description"`
		Quotes       string  `db:"quotes"`
	}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT start_seconds, end_seconds, category, description, quotes
		FROM analysis_sections WHERE media_id = ? ORDER BY position`), mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}

	out := make([]Section, 0, len(rows))
	for _, r := range rows {
		sec := Section{
			StartSeconds: r.StartSeconds,
			EndSeconds:   r.EndSeconds,
			Category:     r.Category,
			Description:  r.Description,
		}
		if err := json.Unmarshal([]byte(r.Quotes), &sec.Quotes); err != nil {
			return nil, fmt.Errorf("failed to decode quotes: %w", err)
		}
		out = append(out, sec)
	}
	return out, nil
}

// AddTags attaches tags, ignoring names the item already carries with that type.
func (s *Store) AddTags(ctx context.Context, mediaID, tagType, source string, names []string) error {
	query := s.db.Rebind(`
		INSERT INTO tags (media_id, name, tag_type, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (media_id, name, tag_type) DO NOTHING`)
	now := s.timestamp()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, query, mediaID, name, tagType, source, now); err != nil {
			return fmt.Errorf("failed to add tag %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Tags(ctx context.Context, mediaID string) ([]Tag, error) {
	var tags []Tag
	err := s.db.SelectContext(ctx, &tags, s.db.Rebind(`
		SELECT name, tag_type, source FROM tags WHERE media_id = ? ORDER BY tag_type, name`), mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// DeleteAIArtifacts purges everything a previous analysis produced for an item.
// User tags are kept.
func (s *Store) DeleteAIArtifacts(ctx context.Context, mediaID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM analyses WHERE media_id = ?`, []any{mediaID}},
		{`DELETE FROM analysis_sections WHERE media_id = ?`, []any{mediaID}},
		{`DELETE FROM tags WHERE media_id = ? AND source = ?`, []any{mediaID, SourceAI}},
		{`UPDATE media_items SET ai_description = '', suggested_title = '', updated_at = ? WHERE id = ?`,
			[]any{s.timestamp(), mediaID}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(st.query), st.args...); err != nil {
			return fmt.Errorf("failed to delete AI artifacts: %w", err)
		}
	}
	return tx.Commit()
}

// State reports what is already stored for an item.
func (s *Store) State(ctx context.Context, mediaID string) (*MediaState, error) {
	item, err := s.Get(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	var counts struct {
		Transcripts int `db:"transcripts"`
		Analyses    int `db:"analyses"`
	}
	err = s.db.GetContext(ctx, &counts, s.db.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM transcripts WHERE media_id = ?) AS transcripts,
			(SELECT COUNT(*) FROM analyses WHERE media_id = ?) AS analyses`), mediaID, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to get media state: %w", err)
	}

	return &MediaState{
		Item:          *item,
		HasTranscript: counts.Transcripts > 0,
		HasAnalysis:   counts.Analyses > 0,
	}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
