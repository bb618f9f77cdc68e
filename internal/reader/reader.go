// Package reader implements the article-fetch and snippet-extraction
// component (F in spec.md's component table): resolving an archive
// entry, decoding its body, and reducing it to plain text.
package reader

import (
	"context"
	"fmt"
	"strings"

	"github.com/zimi-go/zimi/internal/htmltext"
	"github.com/zimi-go/zimi/internal/registry"
)

// defaultSnippetLen matches spec.md's "first 240 characters of body
// text" default for snippet().
const defaultSnippetLen = 240

// Article is the result of Read: a decoded, extracted entry.
type Article struct {
	Title string
	Text  string
	Mime  string
}

// Reader fetches and extracts archive entries under the registry's
// global lock, the only place native archive reads happen.
type Reader struct {
	reg *registry.Registry
}

// New creates a Reader over reg.
func New(reg *registry.Registry) *Reader {
	return &Reader{reg: reg}
}

// Read fetches archiveID's entry at path, decodes it, and extracts
// plain text truncated to maxLength on a word boundary. HTML bodies go
// through internal/htmltext; PDF bodies (mimetype
// "application/pdf") go through the pdfcpu fallback; anything else is
// decoded as UTF-8 text with no further extraction.
func (rd *Reader) Read(ctx context.Context, archiveID, path string, maxLength int) (*Article, error) {
	arc, ok := rd.reg.Get(archiveID)
	if !ok {
		return nil, fmt.Errorf("reader: unknown archive %q", archiveID)
	}
	h := arc.Handle()
	if h == nil {
		return nil, registry.ErrArchiveGone
	}

	rd.reg.GlobalLock.Lock()
	entry, err := h.GetEntryByPath(path)
	if err == nil {
		entry, err = h.Resolve(entry)
	}
	var data []byte
	if err == nil {
		data, err = entry.Read()
	}
	rd.reg.GlobalLock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reader: read %s/%s: %w", archiveID, path, err)
	}

	switch {
	case strings.HasPrefix(entry.Mimetype, "text/html"):
		title, text, err := htmltext.Extract(string(data), maxLength)
		if err != nil {
			return nil, fmt.Errorf("reader: extract html: %w", err)
		}
		if title == "" {
			title = entry.Title
		}
		return &Article{Title: title, Text: text, Mime: entry.Mimetype}, nil

	case entry.Mimetype == "application/pdf":
		text, err := extractPDF(data)
		if err != nil {
			return nil, fmt.Errorf("reader: extract pdf: %w", err)
		}
		return &Article{Title: entry.Title, Text: truncateWords(text, maxLength), Mime: entry.Mimetype}, nil

	default:
		return &Article{Title: entry.Title, Text: truncateWords(string(data), maxLength), Mime: entry.Mimetype}, nil
	}
}

// Snippet returns a short summary for archiveID's entry at path,
// preferring meta description / og:description over body text, per
// spec.md's snippet() contract.
func (rd *Reader) Snippet(ctx context.Context, archiveID, path string) (string, error) {
	arc, ok := rd.reg.Get(archiveID)
	if !ok {
		return "", fmt.Errorf("reader: unknown archive %q", archiveID)
	}
	h := arc.Handle()
	if h == nil {
		return "", registry.ErrArchiveGone
	}

	rd.reg.GlobalLock.Lock()
	entry, err := h.GetEntryByPath(path)
	if err == nil {
		entry, err = h.Resolve(entry)
	}
	var data []byte
	if err == nil {
		data, err = entry.Read()
	}
	rd.reg.GlobalLock.Unlock()
	if err != nil {
		return "", fmt.Errorf("reader: snippet %s/%s: %w", archiveID, path, err)
	}

	if !strings.HasPrefix(entry.Mimetype, "text/html") {
		return truncateWords(string(data), defaultSnippetLen), nil
	}
	return htmltext.Snippet(string(data), defaultSnippetLen)
}

// truncateWords is the plain-text equivalent of htmltext's
// word-boundary truncation, used for non-HTML bodies.
func truncateWords(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && r[cut] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = maxLen
	}
	return strings.TrimRight(string(r[:cut]), " ")
}
