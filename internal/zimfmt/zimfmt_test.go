package zimfmt

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type testEntry struct {
	ns          byte
	path, title string
	mime        string
	data        []byte
}

// buildTestZIM assembles a minimal, valid single-cluster ZIM file with
// the given content entries, for exercising the reader without a real
// archive fixture on disk.
func buildTestZIM(t *testing.T, entries []testEntry) string {
	t.Helper()

	mimeTypes := []string{}
	mimeIdx := map[string]int{}
	for _, e := range entries {
		if _, ok := mimeIdx[e.mime]; !ok {
			mimeIdx[e.mime] = len(mimeTypes)
			mimeTypes = append(mimeTypes, e.mime)
		}
	}

	// Build one cluster containing every entry's blob. Blob table
	// offsets are absolute from the start of the cluster body
	// (table included), per the ZIM cluster layout: offset[0] equals
	// the table's own byte size, since blob 0 starts right after it.
	tableSize := uint32((len(entries) + 1) * 4)
	offsets := []uint32{tableSize}
	var blobBody bytes.Buffer
	cum := tableSize
	for _, e := range entries {
		blobBody.Write(e.data)
		cum += uint32(len(e.data))
		offsets = append(offsets, cum)
	}
	var blobTable bytes.Buffer
	for _, off := range offsets {
		binary.Write(&blobTable, binary.LittleEndian, off)
	}
	clusterBody := append(blobTable.Bytes(), blobBody.Bytes()...)

	var clusterSection bytes.Buffer
	clusterSection.WriteByte(byte(compZstd)) // flag byte: no extended bit, zstd
	enc, _ := zstd.NewWriter(&clusterSection)
	enc.Write(clusterBody)
	enc.Close()

	type sortKey struct {
		full string
		i    int
	}
	keys := make([]sortKey, len(entries))
	for i, e := range entries {
		keys[i] = sortKey{full: string(e.ns) + "/" + e.path, i: i}
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j].full < keys[i].full {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}

	titleKeys := make([]sortKey, len(entries))
	copy(titleKeys, keys)
	for i := 0; i < len(titleKeys); i++ {
		for j := i + 1; j < len(titleKeys); j++ {
			if entries[titleKeys[j].i].title < entries[titleKeys[i].i].title {
				titleKeys[i], titleKeys[j] = titleKeys[j], titleKeys[i]
			}
		}
	}

	var dirents bytes.Buffer
	direntOffsets := make([]uint32, len(entries))
	// header + mimelist placeholder computed after we know mimelist length
	var mimeList bytes.Buffer
	for _, m := range mimeTypes {
		mimeList.WriteString(m)
		mimeList.WriteByte(0)
	}
	mimeList.WriteByte(0)

	const headerLen = headerSize
	mimeListPos := uint64(headerLen)
	direntStart := mimeListPos + uint64(mimeList.Len())

	for _, k := range keys {
		e := entries[k.i]
		direntOffsets[k.i] = uint32(direntStart) + uint32(dirents.Len())
		binary.Write(&dirents, binary.LittleEndian, uint16(mimeIdx[e.mime]))
		dirents.WriteByte(0) // parameter len
		dirents.WriteByte(e.ns)
		binary.Write(&dirents, binary.LittleEndian, uint32(0)) // revision
		binary.Write(&dirents, binary.LittleEndian, uint32(0)) // cluster (all in cluster 0)
		binary.Write(&dirents, binary.LittleEndian, uint32(k.i))
		dirents.WriteString(e.path)
		dirents.WriteByte(0)
		dirents.WriteString(e.title)
		dirents.WriteByte(0)
	}

	urlPtrPos := direntStart + uint64(dirents.Len())
	var urlPtrs bytes.Buffer
	for _, k := range keys {
		binary.Write(&urlPtrs, binary.LittleEndian, uint64(direntOffsets[k.i]))
	}

	titlePtrPos := urlPtrPos + uint64(urlPtrs.Len())
	var titlePtrs bytes.Buffer
	posOf := map[int]uint32{}
	for pos, k := range keys {
		posOf[k.i] = uint32(pos)
	}
	for _, tk := range titleKeys {
		binary.Write(&titlePtrs, binary.LittleEndian, posOf[tk.i])
	}

	clusterPtrPos := titlePtrPos + uint64(titlePtrs.Len())
	clusterOffset := clusterPtrPos + 8 // one cluster pointer, 8 bytes
	var clusterPtrs bytes.Buffer
	binary.Write(&clusterPtrs, binary.LittleEndian, uint64(clusterOffset))

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, magicNumber)
	binary.Write(&hdr, binary.LittleEndian, uint16(6))
	binary.Write(&hdr, binary.LittleEndian, uint16(1))
	hdr.Write(make([]byte, 16)) // uuid
	binary.Write(&hdr, binary.LittleEndian, uint32(len(entries)))
	binary.Write(&hdr, binary.LittleEndian, uint32(1))
	binary.Write(&hdr, binary.LittleEndian, urlPtrPos)
	binary.Write(&hdr, binary.LittleEndian, titlePtrPos)
	binary.Write(&hdr, binary.LittleEndian, clusterPtrPos)
	binary.Write(&hdr, binary.LittleEndian, mimeListPos)
	binary.Write(&hdr, binary.LittleEndian, uint32(0xffffffff))
	binary.Write(&hdr, binary.LittleEndian, uint32(0xffffffff))
	binary.Write(&hdr, binary.LittleEndian, uint64(0))

	var out bytes.Buffer
	out.Write(hdr.Bytes())
	out.Write(mimeList.Bytes())
	out.Write(dirents.Bytes())
	out.Write(urlPtrs.Bytes())
	out.Write(titlePtrs.Bytes())
	out.Write(clusterPtrs.Bytes())
	out.Write(clusterSection.Bytes())

	path := filepath.Join(t.TempDir(), "test.zim")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("write test zim: %v", err)
	}
	return path
}

func TestOpenAndReadEntry(t *testing.T) {
	path := buildTestZIM(t, []testEntry{
		{ns: 'C', path: "home", title: "Home Page", mime: "text/html", data: []byte("<html>hello</html>")},
		{ns: 'C', path: "about", title: "About Us", mime: "text/html", data: []byte("<html>about</html>")},
	})

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if a.EntryCount() != 2 {
		t.Fatalf("EntryCount = %d, want 2", a.EntryCount())
	}

	e, err := a.GetEntryByPath("C/home")
	if err != nil {
		t.Fatalf("GetEntryByPath: %v", err)
	}
	if e.Title != "Home Page" {
		t.Errorf("Title = %q, want Home Page", e.Title)
	}
	data, err := e.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "<html>hello</html>" {
		t.Errorf("Read = %q, want hello content", data)
	}
}

func TestGetEntryByPathNotFound(t *testing.T) {
	path := buildTestZIM(t, []testEntry{
		{ns: 'C', path: "home", title: "Home", mime: "text/html", data: []byte("x")},
	})
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if _, err := a.GetEntryByPath("C/missing"); err != ErrEntryNotFound {
		t.Errorf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestOpenRejectsNonZIM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zim.bin")
	if err := os.WriteFile(path, []byte("not a zim file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err != ErrNotZIM {
		t.Errorf("err = %v, want ErrNotZIM", err)
	}
}

func TestEntriesIteratesContentOnly(t *testing.T) {
	path := buildTestZIM(t, []testEntry{
		{ns: 'C', path: "a", title: "Alpha", mime: "text/html", data: []byte("a")},
		{ns: 'M', path: "Title", title: "Title", mime: "text/plain", data: []byte("Test Archive")},
		{ns: 'C', path: "b", title: "Beta", mime: "text/html", data: []byte("b")},
	})
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	var got []string
	if err := a.Entries(func(e Entry) (bool, error) {
		got = append(got, e.Path)
		return true, nil
	}); err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("iterated %d entries, want 2 content entries", len(got))
	}
}

func TestMetadata(t *testing.T) {
	path := buildTestZIM(t, []testEntry{
		{ns: 'M', path: "Title", title: "Title", mime: "text/plain", data: []byte("Test Archive")},
		{ns: 'C', path: "a", title: "A", mime: "text/html", data: []byte("a")},
	})
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if got := a.Metadata("Title"); got != "Test Archive" {
		t.Errorf("Metadata(Title) = %q, want Test Archive", got)
	}
	if got := a.Metadata("Missing"); got != "" {
		t.Errorf("Metadata(Missing) = %q, want empty", got)
	}
}
