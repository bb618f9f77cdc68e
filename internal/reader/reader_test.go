package reader

import "testing"

func TestTruncateWordsBacksOffToBoundary(t *testing.T) {
	got := truncateWords("word word word word", 10)
	if got != "word word" {
		t.Fatalf("truncateWords = %q, want %q", got, "word word")
	}
}

func TestTruncateWordsNoOpUnderLimit(t *testing.T) {
	got := truncateWords("short", 100)
	if got != "short" {
		t.Fatalf("truncateWords = %q, want unchanged", got)
	}
}

func TestExtractTextFromStreamTj(t *testing.T) {
	stream := []byte("(Hello World) Tj\n")
	got := extractTextFromStream(stream)
	if got != "Hello World" {
		t.Fatalf("extractTextFromStream = %q, want %q", got, "Hello World")
	}
}

func TestExtractTextFromStreamEscapes(t *testing.T) {
	stream := []byte(`(Line one\nLine two) Tj` + "\n")
	got := extractTextFromStream(stream)
	if got != "Line one Line two" {
		t.Fatalf("extractTextFromStream = %q, want escape-decoded + whitespace-collapsed text", got)
	}
}

func TestDecodePDFStringOctalEscape(t *testing.T) {
	got := decodePDFString([]byte(`A\040B`))
	if got != "A B" {
		t.Fatalf("decodePDFString = %q, want %q", got, "A B")
	}
}
