package resolve

import (
	"testing"

	"github.com/zimi-go/zimi/internal/registry"
)

func TestCandidatePathsWikimedia(t *testing.T) {
	got := candidatePaths("en.wikipedia.org", "wiki/Water")
	want := []string{"A/Water", "Water"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("candidatePaths = %v, want %v", got, want)
	}
}

func TestCandidatePathsWikimediaNamespace(t *testing.T) {
	got := candidatePaths("en.wikipedia.org", "wiki/Category:Chemistry")
	if len(got) != 4 {
		t.Fatalf("candidatePaths = %v, want 4 entries (namespace-stripped variants included)", got)
	}
	if got[2] != "Chemistry" || got[3] != "A/Chemistry" {
		t.Fatalf("candidatePaths = %v, want namespace-stripped tail", got)
	}
}

func TestCandidatePathsStackExchange(t *testing.T) {
	got := candidatePaths("stackoverflow.com", "questions/12345/title")
	want := []string{"A/questions/12345/title", "questions/12345/title"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("candidatePaths = %v, want %v", got, want)
	}
}

func TestCandidatePathsGeneralFallback(t *testing.T) {
	got := candidatePaths("apod.nasa.gov", "apod/ap240101.html")
	if len(got) != 3 || got[2] != "apod.nasa.gov/apod/ap240101.html" {
		t.Fatalf("candidatePaths = %v, want domain-prefixed fallback included", got)
	}
}

func TestBuildHostMapEmpty(t *testing.T) {
	hosts := buildHostMap(nil)
	if len(hosts) != 0 {
		t.Fatalf("buildHostMap(nil) = %v, want empty", hosts)
	}
}

func TestBuildHostMapFromFilename(t *testing.T) {
	archives := []*registry.Archive{
		{ID: "stackoverflow", Path: "/zims/stackoverflow.com_en_all_2024-01.zim"},
	}
	hosts := buildHostMap(archives)

	if hosts["stackoverflow.com"] != "stackoverflow" {
		t.Fatalf("hosts[stackoverflow.com] = %q, want stackoverflow", hosts["stackoverflow.com"])
	}
	if hosts["www.stackoverflow.com"] != "stackoverflow" {
		t.Fatal("www. variant not registered")
	}
	if hosts["m.stackoverflow.com"] != "stackoverflow" {
		t.Fatal("mobile variant not registered")
	}
}

func TestBuildHostMapWikimediaMobileVariant(t *testing.T) {
	archives := []*registry.Archive{
		{ID: "wikipedia", Path: "/zims/en.wikipedia.org_all_mini_2024-01.zim"},
	}
	hosts := buildHostMap(archives)

	if hosts["en.wikipedia.org"] != "wikipedia" {
		t.Fatalf("hosts[en.wikipedia.org] = %q, want wikipedia", hosts["en.wikipedia.org"])
	}
	if hosts["en.m.wikipedia.org"] != "wikipedia" {
		t.Fatal("mobile wikimedia variant not registered")
	}
}

func TestBuildHostMapNameInferenceFallback(t *testing.T) {
	archives := []*registry.Archive{
		{ID: "wikihow", Path: "/zims/wikihow.zim"},
	}
	hosts := buildHostMap(archives)

	if hosts["wikihow.com"] != "wikihow" {
		t.Fatalf("hosts[wikihow.com] = %q, want wikihow", hosts["wikihow.com"])
	}
}
