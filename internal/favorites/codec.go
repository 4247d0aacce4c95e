package favorites

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
)

// Snapshot files start with this magic so foreign blobs are rejected
// before decompression.
var snapshotMagic = []byte("SGFAV1")

// EncodeDoc serializes a document into the compressed snapshot format used
// on disk and by sync providers.
func EncodeDoc(doc *Doc) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(snapshotMagic)

	zw := lz4.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		return nil, fmt.Errorf("favorites: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("favorites: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDoc parses a snapshot produced by EncodeDoc.
func DecodeDoc(data []byte) (*Doc, error) {
	if !bytes.HasPrefix(data, snapshotMagic) {
		return nil, fmt.Errorf("favorites: decode: not a favorites snapshot")
	}

	zr := lz4.NewReader(bytes.NewReader(data[len(snapshotMagic):]))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("favorites: decode: %w", err)
	}
	doc := NewDoc()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("favorites: decode: %w", err)
	}
	doc.normalize()
	return doc, nil
}
