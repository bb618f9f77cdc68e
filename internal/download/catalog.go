// Package download implements the download manager (component G):
// resumable ZIM downloads from the Kiwix OPDS catalog, update
// detection, cancellation, and an auto-update scheduler.
package download

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/safeio"
)

// kiwixOPDSBase is the Kiwix library's OPDS search endpoint, grounded
// on original_source/zimi/server.py's KIWIX_OPDS_BASE.
const kiwixOPDSBase = "https://library.kiwix.org/catalog/search"

// CatalogItem is one entry from the Kiwix OPDS catalog, per
// spec.md §4.7 point 1 ("Resolve download URL from Kiwix catalog
// (OPDS)").
type CatalogItem struct {
	Name         string `json:"name"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Language     string `json:"language"`
	Category     string `json:"category"`
	Author       string `json:"author"`
	Date         string `json:"date"` // YYYY-MM-DD
	ArticleCount int    `json:"article_count"`
	MediaCount   int    `json:"media_count"`
	SizeBytes    int64  `json:"size_bytes"`
	DownloadURL  string `json:"download_url"`
	IconURL      string `json:"icon_url"`
	Installed    bool   `json:"installed"`
}

// opdsFeed models the subset of the OPDS (Atom) XML schema Zimi
// consumes, mirroring the field set original_source/zimi/server.py's
// ElementTree-based parser extracts, adapted to encoding/xml struct
// tags in the idiom of veille/internal/feed's RSS/Atom parser.
type opdsFeed struct {
	XMLName      xml.Name    `xml:"feed"`
	TotalResults int         `xml:"totalResults"`
	Entries      []opdsEntry `xml:"entry"`
}

type opdsEntry struct {
	Name         string     `xml:"name"`
	Title        string     `xml:"title"`
	Summary      string     `xml:"summary"`
	Language     string     `xml:"language"`
	Category     string     `xml:"category"`
	ArticleCount string     `xml:"articleCount"`
	MediaCount   string     `xml:"mediaCount"`
	Author       opdsAuthor `xml:"author"`
	Issued       string     `xml:"issued"` // dc:issued
	Links        []opdsLink `xml:"link"`
}

type opdsAuthor struct {
	Name string `xml:"name"`
}

type opdsLink struct {
	Rel    string `xml:"rel,attr"`
	Href   string `xml:"href,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

const (
	relAcquisition = "http://opds-spec.org/acquisition/open-access"
	relThumbnail   = "http://opds-spec.org/image/thumbnail"
	zimMimeType    = "application/x-zim"
)

// FetchCatalog fetches and parses one page of the Kiwix OPDS catalog,
// per spec.md §4.7 point 1. installedBases marks entries already
// present locally (matched by date-stripped filename).
func FetchCatalog(ctx context.Context, client *http.Client, query, lang string, count, start int, installedBases map[string]bool) (total int, items []CatalogItem, err error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	params.Set("start", strconv.Itoa(start))
	if query != "" {
		params.Set("q", query)
	}
	if lang != "" {
		params.Set("lang", lang)
	}
	reqURL := kiwixOPDSBase + "?" + params.Encode()

	if err := safeio.ValidateURL(reqURL); err != nil {
		return 0, nil, fmt.Errorf("download: catalog url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("download: new request: %w", err)
	}
	req.Header.Set("User-Agent", "Zimi/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("download: fetch catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("download: catalog http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, safeio.MaxResponseBody*10))
	if err != nil {
		return 0, nil, fmt.Errorf("download: read catalog body: %w", err)
	}

	var feed opdsFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return 0, nil, fmt.Errorf("download: parse catalog xml: %w", err)
	}

	items = make([]CatalogItem, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		item := CatalogItem{
			Name:     strings.TrimSpace(e.Name),
			Title:    strings.TrimSpace(e.Title),
			Summary:  strings.TrimSpace(e.Summary),
			Language: strings.TrimSpace(e.Language),
			Category: strings.TrimSpace(e.Category),
		}
		if a := strings.TrimSpace(e.Author.Name); a != "-" {
			item.Author = a
		}
		if len(e.Issued) >= 10 {
			item.Date = e.Issued[:10]
		}
		item.ArticleCount, _ = strconv.Atoi(e.ArticleCount)
		item.MediaCount, _ = strconv.Atoi(e.MediaCount)

		for _, l := range e.Links {
			switch {
			case l.Rel == relAcquisition && l.Type == zimMimeType:
				item.DownloadURL = l.Href
				if n, err := strconv.ParseInt(l.Length, 10, 64); err == nil {
					item.SizeBytes = n
				}
			case l.Rel == relThumbnail:
				if strings.HasPrefix(l.Href, "/") {
					item.IconURL = "https://library.kiwix.org" + l.Href
				} else {
					item.IconURL = l.Href
				}
			}
		}

		if item.DownloadURL != "" {
			base, _ := ExtractDateStamp(filenameFromURL(item.DownloadURL))
			item.Installed = installedBases[strings.ToLower(base)]
		}

		items = append(items, item)
	}

	return feed.TotalResults, items, nil
}

func filenameFromURL(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	return parts[len(parts)-1]
}

// dateStampRe matches the trailing "_YYYY-MM" flavor/date stamp Kiwix
// filenames carry (e.g. wikipedia_en_all_mini_2024-01.zim).
var dateStampRe = regexp.MustCompile(`^(.+)_(\d{4}-\d{2})$`)

// ExtractDateStamp splits a Kiwix filename into its base name and
// date stamp, mirroring original_source/zimi/server.py's
// _extract_zim_date.
func ExtractDateStamp(filename string) (base, date string) {
	stem := strings.TrimSuffix(strings.TrimSuffix(filename, ".meta4"), ".zim")
	if m := dateStampRe.FindStringSubmatch(stem); m != nil {
		return m[1], m[2]
	}
	return stem, ""
}

// Update describes a newer catalog version of an installed archive,
// per spec.md §4.7 ("Update detection").
type Update struct {
	Name          string `json:"name"`
	InstalledFile string `json:"installed_file"`
	InstalledDate string `json:"installed_date"`
	LatestDate    string `json:"latest_date"`
	DownloadURL   string `json:"download_url"`
	Title         string `json:"title"`
	SizeBytes     int64  `json:"size_bytes"`
}

// CheckUpdates compares every installed archive's date stamp against
// the full Kiwix catalog and returns the ones with a newer version
// available, per spec.md §4.7's periodic update-detection query.
func CheckUpdates(ctx context.Context, client *http.Client, reg *registry.Registry) ([]Update, error) {
	archives := reg.List()
	if len(archives) == 0 {
		return nil, nil
	}

	type installed struct {
		name, date, filename, stem string
	}
	var haveDates []installed
	for _, a := range archives {
		filename := filenameFromURL(a.Path)
		_, date := ExtractDateStamp(filename)
		if date == "" {
			continue
		}
		stem := strings.TrimSuffix(filename, ".zim")
		haveDates = append(haveDates, installed{name: a.ID, date: date, filename: filename, stem: stem})
	}
	if len(haveDates) == 0 {
		return nil, nil
	}

	const pageSize = 500
	var all []CatalogItem
	total, items, err := FetchCatalog(ctx, client, "", "eng", pageSize, 0, nil)
	if err != nil {
		return nil, err
	}
	all = append(all, items...)
	for len(all) < total {
		_, more, err := FetchCatalog(ctx, client, "", "eng", pageSize, len(all), nil)
		if err != nil || len(more) == 0 {
			break
		}
		all = append(all, more...)
	}

	type catEntry struct {
		base, date string
		item       CatalogItem
	}
	var index []catEntry
	for _, it := range all {
		if it.DownloadURL == "" || it.Date == "" {
			continue
		}
		base, _ := ExtractDateStamp(filenameFromURL(it.DownloadURL))
		yearMonth := it.Date
		if len(yearMonth) >= 7 {
			yearMonth = yearMonth[:7]
		}
		index = append(index, catEntry{base: base, date: yearMonth, item: it})
	}

	var updates []Update
	for _, inst := range haveDates {
		var best *catEntry
		bestLen := 0
		for i := range index {
			ce := &index[i]
			if strings.HasPrefix(inst.stem, ce.base+"_") && ce.date > inst.date && len(ce.base) > bestLen {
				best = ce
				bestLen = len(ce.base)
			}
		}
		if best != nil {
			updates = append(updates, Update{
				Name:          inst.name,
				InstalledFile: inst.filename,
				InstalledDate: inst.date,
				LatestDate:    best.date,
				DownloadURL:   best.item.DownloadURL,
				Title:         best.item.Title,
				SizeBytes:     best.item.SizeBytes,
			})
		}
	}
	return updates, nil
}
