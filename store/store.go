// Package store persists post records in a local SQLite database, keyed by
// the post fingerprint so that repeated passes over the same feed never
// produce duplicate rows.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feedsnap/feedsnap/types"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. The path ":memory:" yields a throwaway in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself but not across pooled conns
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Exists reports whether a post with this fingerprint is already stored.
func (s *Store) Exists(postID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM posts WHERE post_id = ?`, postID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert inserts the record unless a row with the same post_id already
// exists. The existing row is left untouched; the result tells the caller
// which case occurred.
func (s *Store) Upsert(rec types.PostRecord) (types.UpsertResult, error) {
	res, err := s.db.Exec(`
		INSERT INTO posts
			(post_id, author, content, timestamp, post_url,
			 likes_count, comments_count, shares_count,
			 group_name, scraped_at, content_expanded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO NOTHING`,
		rec.PostID, rec.Author, rec.Content, rec.TimestampText, rec.PostURL,
		rec.LikesCount, rec.CommentsCount, rec.SharesCount,
		rec.GroupName, rec.ScrapedAt, rec.ContentExpanded)
	if err != nil {
		return types.Duplicate, fmt.Errorf("inserting post %s: %w", rec.PostID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Duplicate, err
	}
	if n == 0 {
		return types.Duplicate, nil
	}
	return types.Inserted, nil
}

// AttachScreenshot records the screenshot artifact on an existing row.
func (s *Store) AttachScreenshot(postID string, art types.ScreenshotArtifact) error {
	res, err := s.db.Exec(`UPDATE posts SET screenshot_path = ?, screenshot_at = ? WHERE post_id = ?`,
		art.Path, art.CapturedAt.Format(time.RFC3339), postID)
	if err != nil {
		return fmt.Errorf("attaching screenshot to %s: %w", postID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attaching screenshot: no post %s", postID)
	}
	return nil
}

const recordColumns = `post_id, author, content, timestamp, post_url,
	likes_count, comments_count, shares_count,
	group_name, scraped_at, content_expanded`

func scanRecords(rows *sql.Rows) ([]types.PostRecord, error) {
	defer rows.Close()
	var recs []types.PostRecord
	for rows.Next() {
		var rec types.PostRecord
		if err := rows.Scan(&rec.PostID, &rec.Author, &rec.Content, &rec.TimestampText,
			&rec.PostURL, &rec.LikesCount, &rec.CommentsCount, &rec.SharesCount,
			&rec.GroupName, &rec.ScrapedAt, &rec.ContentExpanded); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ListByGroup returns all stored posts for a group, newest first.
func (s *Store) ListByGroup(groupName string) ([]types.PostRecord, error) {
	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM posts WHERE group_name = ? ORDER BY id DESC`, groupName)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ListRecent returns the most recently stored posts, newest first. A limit
// of zero or less returns everything.
func (s *Store) ListRecent(limit, offset int) ([]types.PostRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM posts ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// Count returns the total number of stored posts.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

// Stats is a summary of the whole store.
type Stats struct {
	TotalPosts    int
	Groups        int
	LatestScraped string
}

func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT group_name), COALESCE(MAX(scraped_at), '')
		FROM posts`).Scan(&st.TotalPosts, &st.Groups, &st.LatestScraped)
	return st, err
}

// GroupStat is the per-group breakdown of the store.
type GroupStat struct {
	GroupName string
	Posts     int
	Expanded  int
}

func (s *Store) GroupStats() ([]GroupStat, error) {
	rows, err := s.db.Query(`
		SELECT group_name, COUNT(*), SUM(content_expanded)
		FROM posts GROUP BY group_name ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []GroupStat
	for rows.Next() {
		var st GroupStat
		if err := rows.Scan(&st.GroupName, &st.Posts, &st.Expanded); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// DeletePost removes a single post by fingerprint.
func (s *Store) DeletePost(postID string) error {
	_, err := s.db.Exec(`DELETE FROM posts WHERE post_id = ?`, postID)
	return err
}

// Clear removes all stored posts.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM posts`)
	return err
}

// exportRecord is a PostRecord plus its capture metadata, for export only.
type exportRecord struct {
	types.PostRecord
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	ScreenshotAt   string `json:"screenshot_timestamp,omitempty"`
}

// ExportJSON writes all stored posts to path as an indented JSON array,
// including capture metadata where a screenshot exists.
func (s *Store) ExportJSON(path string) error {
	rows, err := s.db.Query(`SELECT ` + recordColumns + `,
		COALESCE(screenshot_path, ''), COALESCE(screenshot_at, '')
		FROM posts ORDER BY id DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()
	recs := []exportRecord{}
	for rows.Next() {
		var rec exportRecord
		if err := rows.Scan(&rec.PostID, &rec.Author, &rec.Content, &rec.TimestampText,
			&rec.PostURL, &rec.LikesCount, &rec.CommentsCount, &rec.SharesCount,
			&rec.GroupName, &rec.ScrapedAt, &rec.ContentExpanded,
			&rec.ScreenshotPath, &rec.ScreenshotAt); err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
