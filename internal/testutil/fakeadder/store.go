// Package fakeadder is a minimal stand-in for the webext-adder helper, used
// by tests only. It speaks the same framing, lays the collection out the same
// way and rejects what the real helper rejects for the cases the tests use.
// It never touches the network: https downloads fail.
package fakeadder

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"grimm.is/adderprobe/internal/protocol"
)

// DatabaseFile is the collection database name inside the data home.
const DatabaseFile = "db.sqlite3"

// Schema is the subset of the collection schema the checks read.
const Schema = `
CREATE TABLE IF NOT EXISTS downloads (
	dwn_id   INTEGER PRIMARY KEY,
	dwn_path TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS artworks (
	art_artid    INTEGER PRIMARY KEY,
	art_platform TEXT NOT NULL,
	art_title    TEXT,
	art_desc     TEXT,
	art_rating   INTEGER,
	art_license  TEXT,
	art_pageno   INTEGER,
	art_postdate INTEGER,
	art_source   TEXT NOT NULL UNIQUE,
	art_dwnid    INTEGER REFERENCES downloads(dwn_id)
);
CREATE TABLE IF NOT EXISTS accounts (
	acc_arcoid   INTEGER PRIMARY KEY,
	acc_platid,
	acc_platform TEXT NOT NULL,
	acc_name     TEXT,
	acc_title    TEXT,
	acc_url      TEXT,
	UNIQUE (acc_platid, acc_platform)
);
CREATE TABLE IF NOT EXISTS tags (
	tag_arcoid   INTEGER PRIMARY KEY,
	tag_platid,
	tag_platform TEXT NOT NULL,
	tag_title    TEXT,
	tag_kind     TEXT,
	UNIQUE (tag_platid, tag_platform)
);
CREATE TABLE IF NOT EXISTS art_acc_links (
	art_artid   INTEGER NOT NULL,
	acc_arcoid  INTEGER NOT NULL,
	artacc_link TEXT NOT NULL,
	PRIMARY KEY (art_artid, acc_arcoid, artacc_link)
);
CREATE TABLE IF NOT EXISTS art_tag_links (
	art_artid  INTEGER NOT NULL,
	tag_arcoid INTEGER NOT NULL,
	PRIMARY KEY (art_artid, tag_arcoid)
);
`

// Store is a writable collection.
type Store struct {
	db       *sql.DB
	dataHome string
}

// OpenStore creates (if needed) and opens the collection under dataHome.
func OpenStore(dataHome string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataHome, "artworks"), 0o750); err != nil {
		return nil, fmt.Errorf("create data home: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataHome, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, dataHome: dataHome}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the database for tests that tamper with the collection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Add applies one request in a transaction and returns the response the
// helper would send. A rejected request leaves no rows and no files behind.
func (s *Store) Add(ctx context.Context, doc protocol.Document) protocol.Response {
	resp := protocol.Succeeded()
	if id, ok := doc["transaction_id"].(string); ok && id != "" {
		resp.TransactionID = &id
	}

	var written []string
	err := s.add(ctx, doc, &written)
	if err != nil {
		for _, p := range written {
			os.Remove(p)
		}
		reason := err.Error()
		resp.Success = false
		resp.Reason = &reason
	}
	return resp
}

// LeakLinks writes the artwork/account links of doc outside any
// transaction, with art_artid -1 for artworks that do not exist.
func (s *Store) LeakLinks(ctx context.Context, doc protocol.Document) error {
	req, err := protocol.ParseRequest(doc)
	if err != nil {
		return err
	}
	for _, a := range req.Accounts {
		if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO accounts (acc_platid, acc_platform, acc_name) VALUES (?, ?, ?)`,
			a.ID.Value(), req.Platform, a.Name); err != nil {
			return fmt.Errorf("leak account: %w", err)
		}
	}
	for _, l := range req.ArtAccLinks {
		_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO art_acc_links (art_artid, acc_arcoid, artacc_link)
			SELECT COALESCE((SELECT art_artid FROM artworks WHERE art_source = ?), -1), acc_arcoid, ?
			FROM accounts WHERE acc_platid = ? AND acc_platform = ?`,
			l.Artwork, l.Link, l.Account.Value(), req.Platform)
		if err != nil {
			return fmt.Errorf("leak link: %w", err)
		}
	}
	return nil
}

func (s *Store) add(ctx context.Context, doc protocol.Document, written *[]string) error {
	req, err := protocol.ParseRequest(doc)
	if err != nil {
		return err
	}
	if req.Platform == "" {
		return errors.New(`"platform" is missing`)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, a := range req.Artworks {
		if err := s.addArtwork(ctx, tx, req.Platform, i, a, written); err != nil {
			return err
		}
	}
	for _, a := range req.Accounts {
		_, err := tx.ExecContext(ctx, `INSERT INTO accounts (acc_platid, acc_platform, acc_name, acc_title, acc_url)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (acc_platid, acc_platform) DO UPDATE SET
				acc_name = excluded.acc_name, acc_title = excluded.acc_title, acc_url = excluded.acc_url`,
			a.ID.Value(), req.Platform, a.Name, a.Title, a.URL)
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
	}
	for _, t := range req.Tags {
		_, err := tx.ExecContext(ctx, `INSERT INTO tags (tag_platid, tag_platform, tag_title, tag_kind)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (tag_platid, tag_platform) DO UPDATE SET
				tag_title = excluded.tag_title, tag_kind = excluded.tag_kind`,
			t.ID.Value(), req.Platform, t.Title, t.Kind)
		if err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	for _, l := range req.ArtAccLinks {
		artid, err := lookup(ctx, tx, `SELECT art_artid FROM artworks WHERE art_source = ?`, l.Artwork)
		if err != nil {
			return fmt.Errorf("unknown artwork %s in art_acc_links: %w", l.Artwork, err)
		}
		accid, err := lookup(ctx, tx, `SELECT acc_arcoid FROM accounts WHERE acc_platid = ? AND acc_platform = ?`, l.Account.Value(), req.Platform)
		if err != nil {
			return fmt.Errorf("unknown account %s in art_acc_links: %w", l.Account, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO art_acc_links (art_artid, acc_arcoid, artacc_link) VALUES (?, ?, ?)`,
			artid, accid, l.Link); err != nil {
			return fmt.Errorf("failed to insert artwork/account link: %w", err)
		}
	}
	for _, l := range req.ArtTagLinks {
		artid, err := lookup(ctx, tx, `SELECT art_artid FROM artworks WHERE art_source = ?`, l.Artwork)
		if err != nil {
			return fmt.Errorf("unknown artwork %s in art_tag_links: %w", l.Artwork, err)
		}
		tagid, err := lookup(ctx, tx, `SELECT tag_arcoid FROM tags WHERE tag_platid = ? AND tag_platform = ?`, l.Tag.Value(), req.Platform)
		if err != nil {
			return fmt.Errorf("unknown tag %s in art_tag_links: %w", l.Tag, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO art_tag_links (art_artid, tag_arcoid) VALUES (?, ?)`,
			artid, tagid); err != nil {
			return fmt.Errorf("failed to insert artwork/tag link: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) addArtwork(ctx context.Context, tx *sql.Tx, platform string, index int, a protocol.Artwork, written *[]string) error {
	if a.Source == "" {
		return errors.New(`artwork "source" is missing`)
	}
	content, err := fetch(a.Data)
	if err != nil {
		return fmt.Errorf("artwork %s: %w", a.Source, err)
	}

	rel := filepath.ToSlash(filepath.Join("artworks", fmt.Sprintf("%s_%s", sanitize(platform), sanitize(a.Source))))
	abs := filepath.Join(s.dataHome, filepath.FromSlash(rel))
	if err := os.WriteFile(abs, content, 0o640); err != nil {
		return fmt.Errorf("artwork %s: %w", a.Source, err)
	}
	*written = append(*written, abs)

	res, err := tx.ExecContext(ctx, `INSERT INTO downloads (dwn_path) VALUES (?)`, rel)
	if err != nil {
		return fmt.Errorf("failed to insert download: %w", err)
	}
	dwnid, err := res.LastInsertId()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO artworks
		(art_platform, art_title, art_desc, art_rating, art_license, art_pageno, art_postdate, art_source, art_dwnid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (art_source) DO UPDATE SET
			art_title = excluded.art_title, art_desc = excluded.art_desc, art_license = excluded.art_license,
			art_pageno = excluded.art_pageno, art_postdate = excluded.art_postdate, art_dwnid = excluded.art_dwnid`,
		platform, a.Title, a.Desc, a.Rating, a.License, a.Pageno, a.Postdate, a.Source, dwnid)
	if err != nil {
		return fmt.Errorf("failed to insert artwork: %w", err)
	}
	return nil
}

func lookup(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("not found")
	}
	return id, err
}

// fetch resolves an artwork "data" value: a data URI, an https URL or a
// download-spec object carrying one of those under "data".
func fetch(data any) ([]byte, error) {
	var s string
	switch t := data.(type) {
	case string:
		s = t
	case map[string]any:
		v, ok := t["data"].(string)
		if !ok {
			return nil, errors.New(`download spec has no string "data"`)
		}
		s = v
	case nil:
		return nil, errors.New(`"data" is missing`)
	default:
		return nil, errors.New("invalid type for the download_spec (must be a string or an object)")
	}

	if strings.HasPrefix(s, "https://") {
		return nil, errors.New("network downloads are disabled")
	}
	if !strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("unsupported URL scheme in %q", s)
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed base64 in data URI: %w", err)
		}
		return b, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data URI: %w", err)
	}
	return []byte(text), nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, s)
}
