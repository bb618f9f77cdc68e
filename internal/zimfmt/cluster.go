package zimfmt

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

type compressionType byte

const (
	compNone1 compressionType = 1 // stored, uncompressed
	compNone2 compressionType = 2 // reserved, treated as stored
	compZlib  compressionType = 3 // deprecated, rarely seen in the wild
	compLZMA2 compressionType = 4 // deprecated pre-2020 default
	compZstd  compressionType = 5 // current default since libzim 7.0
)

// clusterInfo is the decoded blob table for one cluster: byte ranges
// within the decompressed cluster body for each blob index.
type clusterInfo struct {
	body       []byte
	blobOffset []uint32
	extended   bool
}

// readCluster loads and decompresses the cluster at index idx,
// caching nothing — callers (Entry.Read) re-decompress per read since
// Zimi's own result cache (internal/cache) sits above this layer.
func (a *Archive) readCluster(idx int) (clusterInfo, error) {
	if idx < 0 || idx >= len(a.clusters) {
		return clusterInfo{}, fmt.Errorf("zimfmt: cluster %d out of range", idx)
	}
	start := int64(a.clusters[idx])
	var end int64 = -1
	if idx+1 < len(a.clusters) {
		end = int64(a.clusters[idx+1])
	}

	flag := make([]byte, 1)
	if _, err := a.f.ReadAt(flag, start); err != nil {
		return clusterInfo{}, fmt.Errorf("zimfmt: read cluster flag: %w", err)
	}
	extended := flag[0]&0x10 != 0
	comp := compressionType(flag[0] & 0x0f)

	var body []byte
	if end < 0 {
		// Last cluster: read to EOF.
		fi, err := a.f.Stat()
		if err != nil {
			return clusterInfo{}, err
		}
		end = fi.Size()
	}
	raw := make([]byte, end-start-1)
	if _, err := a.f.ReadAt(raw, start+1); err != nil {
		return clusterInfo{}, fmt.Errorf("zimfmt: read cluster body: %w", err)
	}

	switch comp {
	case compNone1, compNone2:
		body = raw
	case compZstd:
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return clusterInfo{}, fmt.Errorf("zimfmt: zstd init: %w", err)
		}
		defer dec.Close()
		body, err = io.ReadAll(dec)
		if err != nil {
			return clusterInfo{}, fmt.Errorf("zimfmt: zstd decode: %w", err)
		}
	case compZlib:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return clusterInfo{}, fmt.Errorf("zimfmt: zlib init: %w", err)
		}
		defer zr.Close()
		body, err = io.ReadAll(zr)
		if err != nil {
			return clusterInfo{}, fmt.Errorf("zimfmt: zlib decode: %w", err)
		}
	default:
		return clusterInfo{}, fmt.Errorf("%w: type %d", ErrUnsupportedCompression, comp)
	}

	return parseClusterBlobs(body, extended)
}

// parseClusterBlobs reads the blob offset table at the head of a
// decompressed cluster body (4-byte offsets, or 8-byte for "extended"
// clusters carrying content over 4GiB, never seen in practice but
// part of the format).
func parseClusterBlobs(body []byte, extended bool) (clusterInfo, error) {
	width := 4
	if extended {
		width = 8
	}
	if len(body) < width {
		return clusterInfo{}, fmt.Errorf("zimfmt: cluster body too short for blob table")
	}
	// The first table entry is itself the byte size of the table (it
	// points to the start of blob 0, which follows immediately), so
	// the blob count is that value divided by the entry width, minus
	// the table's own placeholder entry.
	first := readUint(body[0:width], extended)
	n := int(first)/width - 1
	if n <= 0 || (n+1)*width > len(body) {
		return clusterInfo{}, fmt.Errorf("zimfmt: invalid blob count %d", n)
	}
	offsets := make([]uint32, n+1)
	for i := 0; i <= n; i++ {
		offsets[i] = uint32(readUint(body[i*width:(i+1)*width], extended))
	}
	return clusterInfo{body: body, blobOffset: offsets, extended: extended}, nil
}

func readUint(b []byte, extended bool) uint64 {
	if extended {
		return binary.LittleEndian.Uint64(b)
	}
	return uint64(binary.LittleEndian.Uint32(b))
}

func (c clusterInfo) blob(idx int) ([]byte, error) {
	if idx < 0 || idx+1 >= len(c.blobOffset) {
		return nil, fmt.Errorf("zimfmt: blob %d out of range", idx)
	}
	return c.body[c.blobOffset[idx]:c.blobOffset[idx+1]], nil
}

// Read decompresses and returns the entry's content. Redirect entries
// return ErrEntryNotFound; callers should follow RedirectTo instead.
func (e Entry) Read() ([]byte, error) {
	if e.IsRedirect {
		return nil, fmt.Errorf("%w: entry %q is a redirect", ErrEntryNotFound, e.Path)
	}
	e.arc.mu.Lock()
	defer e.arc.mu.Unlock()

	c, err := e.arc.readCluster(int(e.dirent.cluster))
	if err != nil {
		return nil, err
	}
	return c.blob(int(e.dirent.blob))
}

// Resolve follows redirect chains (bounded to guard against cycles in
// a malformed archive) and returns the terminal content entry.
func (a *Archive) Resolve(e Entry) (Entry, error) {
	seen := map[int]bool{}
	for e.IsRedirect {
		if seen[e.Index] {
			return Entry{}, fmt.Errorf("zimfmt: redirect cycle at index %d", e.Index)
		}
		seen[e.Index] = true
		a.mu.Lock()
		next, err := a.entryByURLIndex(e.RedirectTo)
		a.mu.Unlock()
		if err != nil {
			return Entry{}, err
		}
		e = next
	}
	return e, nil
}
