package reader

import "testing"

func TestParseJSValueSingleQuotedObjectArray(t *testing.T) {
	src := `[{'ti': 'Flood Response', 'dsc': 'A guide', 'aut': 'WHO', 'fp': ['flood.pdf']}]`
	val, err := parseJSValue(src)
	if err != nil {
		t.Fatalf("parseJSValue: %v", err)
	}
	arr, ok := val.([]any)
	if !ok || len(arr) != 1 {
		t.Fatalf("expected one-element array, got %#v", val)
	}
	m, ok := arr[0].(map[string]any)
	if !ok {
		t.Fatalf("expected object element, got %#v", arr[0])
	}
	if m["ti"] != "Flood Response" || m["aut"] != "WHO" {
		t.Fatalf("unexpected fields: %#v", m)
	}
	fps, ok := m["fp"].([]any)
	if !ok || len(fps) != 1 || fps[0] != "flood.pdf" {
		t.Fatalf("unexpected fp field: %#v", m["fp"])
	}
}

func TestParseDatabaseJSStripsAssignmentWrapper(t *testing.T) {
	src := `var DATABASE = [{'ti': 'A', 'dsc': '', 'aut': '', 'fp': ['a.pdf']}];`
	items, err := parseDatabaseJS(src)
	if err != nil {
		t.Fatalf("parseDatabaseJS: %v", err)
	}
	if len(items) != 1 || items[0]["ti"] != "A" {
		t.Fatalf("unexpected items: %#v", items)
	}
}

func TestStringFieldFallsBackToDefault(t *testing.T) {
	m := map[string]any{"ti": "Title"}
	if got := stringField(m, "dsc", "fallback"); got != "fallback" {
		t.Fatalf("stringField = %q, want fallback", got)
	}
	if got := stringField(m, "ti", "fallback"); got != "Title" {
		t.Fatalf("stringField = %q, want Title", got)
	}
}
