// Package resolve maps external URLs (as found inside one archive's
// article HTML) onto entries in a sibling archive, so the reader can
// rewrite cross-site links to stay inside the offline library.
//
// Ported from original_source/zimi/server.py's
// _build_domain_zim_map/_resolve_url_to_zim: a host table built once
// from archive filenames/metadata, and a per-site candidate-path table
// consulted in a fixed order, exactly the "plain sorted slice, linear
// scan" strategy spec.md's Design Notes call for (candidate tables
// this small gain nothing from an index).
package resolve

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zimi-go/zimi/internal/registry"
	"github.com/zimi-go/zimi/internal/zimfmt"
)

// Result is one resolved (or unresolved) URL.
type Result struct {
	ArchiveID string `json:"archive"`
	Path      string `json:"path"`
	Found     bool   `json:"-"`
}

// batchConcurrency bounds concurrent candidate lookups in ResolveBatch,
// matching spec.md's "chunked, concurrency 8".
const batchConcurrency = 8

// Resolver holds the host→archive table built from the registry's
// currently open archives. Rebuild after every registry.Refresh.
type Resolver struct {
	reg *registry.Registry

	mu    sync.RWMutex
	hosts map[string]string // host -> archive id
}

// New creates a Resolver over reg. Call Rebuild once before serving.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg, hosts: map[string]string{}}
}

// Rebuild recomputes the host table from the registry's current
// archive list. Cheap enough to call after every Refresh.
func (r *Resolver) Rebuild() {
	hosts := buildHostMap(r.reg.List())
	r.mu.Lock()
	r.hosts = hosts
	r.mu.Unlock()
}

var wikimediaHosts = regexp.MustCompile(`wikipedia\.org$|wiktionary\.org$|wikivoyage\.org$|wikibooks\.org$|wikiversity\.org$|wikiquote\.org$|wikinews\.org$`)
var stackHosts = regexp.MustCompile(`stackexchange\.com$|stackoverflow\.com$|serverfault\.com$|superuser\.com$|askubuntu\.com$`)
var mediawikiPlainHosts = regexp.MustCompile(`rationalwiki\.org$|appropedia\.org$`)

var wikiPrefixRe = regexp.MustCompile(`^wiki/`)
var wikiIndexPhpRe = regexp.MustCompile(`^wiki/index\.php/`)
var wikimediaNamespaceRe = regexp.MustCompile(`^[A-Z][a-z]+:`)

// candidatePaths builds the ordered list of entry paths worth trying
// inside the resolved archive, mirroring _resolve_url_to_zim's
// per-site branch table.
func candidatePaths(host, urlPath string) []string {
	switch {
	case wikimediaHosts.MatchString(host):
		rest := wikiPrefixRe.ReplaceAllString(urlPath, "")
		out := []string{"A/" + rest, rest}
		if stripped := wikimediaNamespaceRe.ReplaceAllString(rest, ""); stripped != rest {
			out = append(out, stripped, "A/"+stripped)
		}
		return out
	case stackHosts.MatchString(host):
		return []string{"A/" + urlPath, urlPath}
	case mediawikiPlainHosts.MatchString(host):
		rest := wikiPrefixRe.ReplaceAllString(urlPath, "")
		return []string{rest, "A/" + rest}
	case strings.HasSuffix(host, "explainxkcd.com"):
		rest := wikiIndexPhpRe.ReplaceAllString(urlPath, "")
		return []string{rest, "A/" + rest}
	case strings.HasSuffix(host, "wikihow.com"):
		return []string{"A/" + urlPath, urlPath}
	default:
		out := []string{"A/" + urlPath, urlPath}
		if host != "" {
			out = append(out, host+"/"+urlPath)
		}
		return out
	}
}

// Resolve maps rawURL onto an archive+path, or Found=false if no
// installed archive's host table and candidate path both match.
func (r *Resolver) Resolve(rawURL string) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Result{}
	}

	r.mu.RLock()
	archiveID, ok := r.hosts[host]
	if !ok {
		archiveID, ok = r.hosts[strings.TrimPrefix(host, "www.")]
	}
	r.mu.RUnlock()
	if !ok {
		return Result{}
	}

	arc, ok := r.reg.Get(archiveID)
	if !ok || arc.Handle() == nil {
		return Result{}
	}

	urlPath := strings.TrimPrefix(u.Path, "/")
	if decoded, err := url.PathUnescape(urlPath); err == nil {
		urlPath = decoded
	}

	r.reg.GlobalLock.Lock()
	defer r.reg.GlobalLock.Unlock()
	for _, cand := range candidatePaths(host, urlPath) {
		if cand == "" {
			continue
		}
		if _, err := arc.Handle().GetEntryByPath(cand); err == nil {
			return Result{ArchiveID: archiveID, Path: cand, Found: true}
		} else if !errors.Is(err, zimfmt.ErrEntryNotFound) {
			return Result{}
		}
	}
	return Result{}
}

// ResolveBatch resolves every url in urls with at most
// batchConcurrency concurrent lookups, matching spec.md's
// "chunked, concurrency 8".
func (r *Resolver) ResolveBatch(ctx context.Context, urls []string) map[string]Result {
	out := make(map[string]Result, len(urls))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			res := r.Resolve(u)
			mu.Lock()
			out[u] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
