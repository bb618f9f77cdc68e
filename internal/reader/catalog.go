package reader

import (
	"fmt"
	"strings"

	"github.com/zimi-go/zimi/internal/registry"
)

// Document is one entry in a zimgit-style PDF collection's metadata
// catalog (database.js).
type Document struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Path        string `json:"path,omitempty"`
}

// Catalog is the parsed document list for a single zimgit-style
// archive, returned by GET /catalog?zim=.
type Catalog struct {
	Zim       string     `json:"zim"`
	Documents []Document `json:"documents"`
	Count     int        `json:"count"`
}

// ErrNoCatalog is returned when the archive has no database.js entry,
// i.e. it is not a zimgit-style PDF collection.
var ErrNoCatalog = fmt.Errorf("reader: no catalog (database.js) in archive")

// Catalog parses archiveID's database.js, the metadata file zimgit
// uses to describe a collection of scanned PDFs bundled into a ZIM.
// The file holds a JS assignment wrapping a JSON-like array of
// objects keyed by short field codes (ti=title, dsc=description,
// aut=author, fp=file paths); the first listed file path becomes the
// document's readable path under the "files/" namespace.
func (rd *Reader) Catalog(archiveID string) (*Catalog, error) {
	arc, ok := rd.reg.Get(archiveID)
	if !ok {
		return nil, fmt.Errorf("reader: unknown archive %q", archiveID)
	}
	h := arc.Handle()
	if h == nil {
		return nil, registry.ErrArchiveGone
	}

	rd.reg.GlobalLock.Lock()
	entry, err := h.GetEntryByPath("database.js")
	var data []byte
	if err == nil {
		data, err = entry.Read()
	}
	rd.reg.GlobalLock.Unlock()
	if err != nil {
		return nil, ErrNoCatalog
	}

	items, err := parseDatabaseJS(string(data))
	if err != nil || len(items) == 0 {
		return nil, ErrNoCatalog
	}

	docs := make([]Document, 0, len(items))
	for _, it := range items {
		doc := Document{
			Title:       stringField(it, "ti", "?"),
			Description: stringField(it, "dsc", ""),
			Author:      stringField(it, "aut", ""),
		}
		if fps, ok := it["fp"].([]any); ok && len(fps) > 0 {
			if first, ok := fps[0].(string); ok {
				doc.Path = "files/" + first
			}
		}
		docs = append(docs, doc)
	}
	return &Catalog{Zim: archiveID, Documents: docs, Count: len(docs)}, nil
}

func stringField(m map[string]any, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// parseDatabaseJS strips database.js's "var DATABASE = ...;" wrapper
// and decodes the remaining JS-object-literal array via the
// single-quote-tolerant scanner in jsvalue.go. The upstream tool
// generates single-quoted keys/strings, which encoding/json rejects
// outright.
func parseDatabaseJS(src string) ([]map[string]any, error) {
	body := strings.TrimSpace(src)
	if idx := strings.Index(body, "="); idx >= 0 {
		body = body[idx+1:]
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, ";")

	val, err := parseJSValue(body)
	if err != nil {
		return nil, fmt.Errorf("reader: parse database.js: %w", err)
	}
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("reader: database.js root is not an array")
	}
	out := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}
