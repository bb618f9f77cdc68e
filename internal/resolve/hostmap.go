package resolve

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zimi-go/zimi/internal/registry"
)

// filenameDomainRe extracts a leading domain from a ZIM filename stem,
// e.g. "stackoverflow.com_en_all_2024-01" → "stackoverflow.com".
var filenameDomainRe = regexp.MustCompile(`^([a-zA-Z0-9.-]+\.[a-z]{2,})_`)

// wikiMobileRe matches a two/three-letter-language Wikimedia domain so
// its mobile (en.m.wikipedia.org) variant can be registered alongside it.
var wikiMobileRe = regexp.MustCompile(`^(\w{2,3})\.(wiki\w+\.org)$`)

// buildHostMap derives a host → archive-id table from every open
// archive's filename and Source metadata, plus a name-based guess for
// anything still unmapped. Ported from
// original_source/zimi/server.py's _build_domain_zim_map: filename
// extraction first, then Source metadata, then <name>.<tld> inference,
// each registering the www. and mobile variants of what it finds.
func buildHostMap(archives []*registry.Archive) map[string]string {
	hosts := map[string]string{}
	mapped := map[string]bool{}

	add := func(domain, id string) {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" || !strings.Contains(domain, ".") {
			return
		}
		if _, ok := hosts[domain]; !ok {
			hosts[domain] = id
		}
		if bare, ok := strings.CutPrefix(domain, "www."); ok {
			if _, ok := hosts[bare]; !ok {
				hosts[bare] = id
			}
		} else {
			www := "www." + domain
			if _, ok := hosts[www]; !ok {
				hosts[www] = id
			}
		}
		if m := wikiMobileRe.FindStringSubmatch(domain); m != nil {
			mobile := m[1] + ".m." + m[2]
			if _, ok := hosts[mobile]; !ok {
				hosts[mobile] = id
			}
		}
		if domain == "stackoverflow.com" || domain == "stackexchange.com" {
			mob := "m." + domain
			if _, ok := hosts[mob]; !ok {
				hosts[mob] = id
			}
		}
	}

	// 1. Filename.
	for _, a := range archives {
		stem := strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path))
		if m := filenameDomainRe.FindStringSubmatch(stem); m != nil {
			add(m[1], a.ID)
			mapped[a.ID] = true
		}
	}

	// 2. Source metadata.
	for _, a := range archives {
		if mapped[a.ID] {
			continue
		}
		h := a.Handle()
		if h == nil {
			continue
		}
		src := h.Metadata("Source")
		if src == "" {
			continue
		}
		var domain string
		if strings.Contains(src, "://") {
			if u, err := url.Parse(src); err == nil {
				domain = u.Hostname()
			}
		} else {
			domain = strings.SplitN(src, "/", 2)[0]
		}
		if domain != "" {
			add(domain, a.ID)
			mapped[a.ID] = true
		}
	}

	// 3. Name-based inference.
	for _, a := range archives {
		if mapped[a.ID] {
			continue
		}
		if strings.HasPrefix(a.ID, "zimgit") || strings.Contains(a.ID, "-en-") {
			continue
		}
		for _, tld := range []string{".com", ".org", ".io", ".net"} {
			add(a.ID+tld, a.ID)
		}
	}

	return hosts
}
