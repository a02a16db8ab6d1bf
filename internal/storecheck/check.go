package storecheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/adderprobe/internal/protocol"
)

// Mismatch is one stored field that differs from the request.
type Mismatch struct {
	Field    string
	Expected any
	Got      any
	// Diff is a unified diff for long or multi-line text fields.
	Diff string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s mismatch (expected: %s, got: %s)", m.Field, show(m.Expected), show(m.Got))
}

// Check is the outcome of one storage assertion.
type Check struct {
	Description string
	OK          bool
	// Message summarizes a failure or carries a count.
	Message    string
	Mismatches []Mismatch
}

// Count returns how many checks Verify produces for req.
func Count(req *protocol.Request) int {
	if req == nil {
		return 0
	}
	return 2*len(req.Artworks) + len(req.Accounts) + len(req.Tags) + len(req.ArtAccLinks) + len(req.ArtTagLinks)
}

// Verify checks every entity of a request the helper accepted, in this
// order: artworks, artwork checksums, accounts, tags, artwork/account links
// and artwork/tag links. Query errors fail the affected check only.
func (s *Store) Verify(ctx context.Context, req *protocol.Request) []Check {
	checks := make([]Check, 0, Count(req))
	for _, a := range req.Artworks {
		checks = append(checks, s.checkArtwork(ctx, req.Platform, a))
	}
	for _, a := range req.Artworks {
		checks = append(checks, s.checkChecksum(ctx, a))
	}
	for _, a := range req.Accounts {
		checks = append(checks, s.checkAccount(ctx, req.Platform, a))
	}
	for _, t := range req.Tags {
		checks = append(checks, s.checkTag(ctx, req.Platform, t))
	}
	for _, l := range req.ArtAccLinks {
		checks = append(checks, s.checkArtAccLink(ctx, l))
	}
	for _, l := range req.ArtTagLinks {
		checks = append(checks, s.checkArtTagLink(ctx, req.Platform, l))
	}
	return checks
}

func (s *Store) checkArtwork(ctx context.Context, platform string, a protocol.Artwork) Check {
	c := Check{Description: "Checking artwork " + a.Source}
	row, err := s.row(ctx, `SELECT art_platform, art_title, art_desc, art_rating, art_license, art_pageno, art_postdate
		FROM artworks WHERE art_source = ?`, a.Source)
	if failed(&c, row, err) {
		return c
	}
	c.Mismatches = compare([]field{
		{"art_platform", platform},
		{"art_title", deref(a.Title)},
		{"art_desc", deref(a.Desc)},
		{"art_rating", deref(a.Rating)},
		{"art_license", deref(a.License)},
		{"art_pageno", deref(a.Pageno)},
		{"art_postdate", deref(a.Postdate)},
	}, row)
	return settle(c)
}

func (s *Store) checkChecksum(ctx context.Context, a protocol.Artwork) Check {
	c := Check{Description: "Check checksum of artwork " + a.Source}
	row, err := s.row(ctx, `SELECT art_artid, dwn_path FROM artworks
		JOIN downloads ON art_dwnid = dwn_id WHERE art_source = ?`, a.Source)
	if failed(&c, row, err) {
		return c
	}
	if a.DataSHA256 == nil {
		c.Description = "Missing checksum for artwork " + a.Source
		c.Message = `add a "data.sha256": "<SHA-256>" in the artwork object`
		return c
	}

	rel, ok := normalize(row[1]).(string)
	if !ok || rel == "" {
		c.Message = "download has no path"
		return c
	}
	sum, err := fileSHA256(filepath.Join(s.dataHome, filepath.FromSlash(rel)))
	if err != nil {
		c.Message = err.Error()
		return c
	}
	want := strings.ToLower(*a.DataSHA256)
	if sum != want {
		c.Mismatches = []Mismatch{{Field: "sha256", Expected: want, Got: sum}}
	}
	return settle(c)
}

func (s *Store) checkAccount(ctx context.Context, platform string, a protocol.Account) Check {
	c := Check{Description: "Checking account " + a.ID.String()}
	row, err := s.row(ctx, `SELECT acc_platform, acc_name, acc_title, acc_url
		FROM accounts WHERE acc_platid = ?`, a.ID.Value())
	if failed(&c, row, err) {
		return c
	}
	c.Mismatches = compare([]field{
		{"acc_platform", platform},
		{"acc_name", deref(a.Name)},
		{"acc_title", deref(a.Title)},
		{"acc_url", deref(a.URL)},
	}, row)
	return settle(c)
}

func (s *Store) checkTag(ctx context.Context, platform string, t protocol.Tag) Check {
	c := Check{Description: "Checking tag " + t.ID.String()}
	row, err := s.row(ctx, `SELECT tag_title, tag_kind FROM tags
		WHERE tag_platid = ? AND tag_platform = ?`, t.ID.Value(), platform)
	if failed(&c, row, err) {
		return c
	}
	c.Mismatches = compare([]field{
		{"tag_title", deref(t.Title)},
		{"tag_kind", deref(t.Kind)},
	}, row)
	return settle(c)
}

func (s *Store) checkArtAccLink(ctx context.Context, l protocol.ArtAccLink) Check {
	c := Check{Description: fmt.Sprintf("Checking %s to %s %s link", l.Artwork, l.Account, l.Link)}
	n, err := s.countArtAccLinks(ctx, l)
	return exactlyOnce(c, n, err)
}

func (s *Store) checkArtTagLink(ctx context.Context, platform string, l protocol.ArtTagLink) Check {
	c := Check{Description: fmt.Sprintf("Checking %s tag on %s", l.Tag, l.Artwork)}
	n, err := s.count(ctx, `SELECT COUNT(*) FROM art_tag_links NATURAL JOIN artworks NATURAL JOIN tags
		WHERE art_source = ? AND tag_platid = ? AND tag_platform = ?`, l.Artwork, l.Tag.Value(), platform)
	return exactlyOnce(c, n, err)
}

func (s *Store) countArtAccLinks(ctx context.Context, l protocol.ArtAccLink) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM art_acc_links NATURAL JOIN artworks NATURAL JOIN accounts
		WHERE artacc_link = ? AND art_source = ? AND acc_platid = ?`, l.Link, l.Artwork, l.Account.Value())
}

// countStrayArtAccLinks counts the account's links of this kind that point
// at the artwork or at no artwork at all.
func (s *Store) countStrayArtAccLinks(ctx context.Context, platform string, l protocol.ArtAccLink) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM art_acc_links
		JOIN accounts USING (acc_arcoid)
		LEFT JOIN artworks USING (art_artid)
		WHERE artacc_link = ? AND acc_platid = ? AND acc_platform = ?
		AND (art_source = ? OR art_source IS NULL)`,
		l.Link, l.Account.Value(), platform, l.Artwork)
}

// VerifyAbsent checks that none of the links of a rejected request were
// stored, including rows left dangling to an artwork that was never added.
// One check per link.
func (s *Store) VerifyAbsent(ctx context.Context, platform string, links []protocol.ArtAccLink) []Check {
	checks := make([]Check, 0, len(links))
	for _, l := range links {
		c := Check{Description: fmt.Sprintf("No %s to %s %s link", l.Artwork, l.Account, l.Link)}
		n, err := s.countStrayArtAccLinks(ctx, platform, l)
		switch {
		case err != nil:
			c.Message = err.Error()
		case n != 0:
			c.Message = fmt.Sprintf("Found %d time(s)", n)
		default:
			c.OK = true
		}
		checks = append(checks, c)
	}
	return checks
}

// RowCounts compares the row count of each CountedTables entry with the
// number of entities the requests submitted.
func (s *Store) RowCounts(ctx context.Context, reqs []*protocol.Request) []Check {
	want := map[string]int64{}
	for _, r := range reqs {
		want["artworks"] += int64(len(r.Artworks))
		want["accounts"] += int64(len(r.Accounts))
		want["tags"] += int64(len(r.Tags))
		want["art_acc_links"] += int64(len(r.ArtAccLinks))
		want["art_tag_links"] += int64(len(r.ArtTagLinks))
	}

	checks := make([]Check, 0, len(CountedTables))
	for _, table := range CountedTables {
		c := Check{Description: "Checking row count in " + table + " table"}
		// table comes from CountedTables, never from input.
		got, err := s.count(ctx, "SELECT COUNT(*) FROM "+table)
		switch {
		case err != nil:
			c.Message = err.Error()
		case got != want[table]:
			c.Mismatches = []Mismatch{{Field: "rows", Expected: want[table], Got: got}}
		default:
			c.OK = true
		}
		checks = append(checks, c)
	}
	return checks
}

func failed(c *Check, row []any, err error) bool {
	switch {
	case err != nil:
		c.Message = err.Error()
		return true
	case row == nil:
		c.Message = "Not found in database"
		return true
	}
	return false
}

func exactlyOnce(c Check, n int64, err error) Check {
	if err != nil {
		c.Message = err.Error()
		return c
	}
	c.Message = fmt.Sprintf("Found %d time(s)", n)
	c.OK = n == 1
	return c
}

func settle(c Check) Check {
	c.OK = len(c.Mismatches) == 0 && c.Message == ""
	return c
}

type field struct {
	name     string
	expected any
}

func compare(fields []field, row []any) []Mismatch {
	var out []Mismatch
	for i, f := range fields {
		want, got := normalize(f.expected), normalize(row[i])
		if want == got {
			continue
		}
		m := Mismatch{Field: f.name, Expected: want, Got: got}
		if ws, ok := want.(string); ok {
			if gs, ok := got.(string); ok {
				m.Diff = textDiff(ws, gs)
			}
		}
		out = append(out, m)
	}
	return out
}

// normalize maps driver and fixture values onto nil, int64, float64 and string.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return normalize(f)
		}
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func show(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", t)
	}
	return fmt.Sprint(v)
}

// textDiff returns a unified diff for texts worth diffing, "" otherwise.
func textDiff(expected, got string) string {
	if len(expected) < 60 && len(got) < 60 && !strings.Contains(expected+got, "\n") {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(got),
		FromFile: "expected",
		ToFile:   "stored",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("downloaded file missing: %s", path)
		}
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

