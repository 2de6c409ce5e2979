// Package snapshot converts session state to and from the portable snapshot
// file: a JSON object of whitelisted keys, optionally gzip-compressed.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// Document is the logical content of a snapshot.
type Document map[string]any

// Format selects the byte encoding of a document.
type Format string

const (
	FormatJSON Format = "json"
	FormatGzip Format = "gzip"
)

// Ext returns the file extension for f.
func (f Format) Ext() string {
	if f == FormatGzip {
		return ".json.gz"
	}
	return ".json"
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatGzip {
		return "application/gzip"
	}
	return "application/json"
}

// ParseFormat accepts "json", "gzip" or "gz".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "gzip", "gz":
		return FormatGzip, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", s)
}

// Export projects the store through the persistable whitelist.
func Export(store *state.Store) Document {
	doc := make(Document)
	store.View(func(tx *state.Tx) {
		tx.Each(func(k state.Key, v any) {
			if stage.IsPersistable(string(k)) {
				doc[string(k)] = v
			}
		})
	})
	return doc
}

// Encode serializes doc as compact UTF-8 JSON, gzip-compressed at the
// fastest level for FormatGzip. Both formats carry identical JSON bytes.
func Encode(doc Document, f Format) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	raw := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if f != FormatGzip {
		return raw, nil
	}

	var gz bytes.Buffer
	zw, err := gzip.NewWriterLevel(&gz, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	return gz.Bytes(), nil
}

// IsGzip reports whether data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// Decode parses snapshot bytes. Compression is detected from the content,
// never from a file name. Every failure is a *DecodeError.
func Decode(data []byte) (Document, error) {
	if IsGzip(data) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &DecodeError{Kind: KindCompression, Err: err}
		}
		plain, err := io.ReadAll(zr)
		if err != nil {
			return nil, &DecodeError{Kind: KindCompression, Err: err}
		}
		if err := zr.Close(); err != nil {
			return nil, &DecodeError{Kind: KindCompression, Err: err}
		}
		data = plain
	}

	if !utf8.Valid(data) {
		return nil, &DecodeError{Kind: KindEncoding, Err: errors.New("content is not valid UTF-8")}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, syntaxError(data, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		line, col := position(data, dec.InputOffset())
		return nil, &DecodeError{Kind: KindSyntax, Line: line, Column: col, Err: errors.New("extra data after the document")}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &DecodeError{Kind: KindShape, Err: fmt.Errorf("top level is %s, not an object", kindOf(v))}
	}
	return Document(obj), nil
}

func syntaxError(data []byte, err error) *DecodeError {
	var se *json.SyntaxError
	switch {
	case errors.As(err, &se):
		line, col := position(data, se.Offset)
		return &DecodeError{Kind: KindSyntax, Line: line, Column: col, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		line, col := position(data, int64(len(data)))
		return &DecodeError{Kind: KindSyntax, Line: line, Column: col, Err: errors.New("unexpected end of input")}
	}
	return &DecodeError{Kind: KindSyntax, Line: 1, Column: 1, Err: err}
}

// position converts a byte offset into a 1-based line and column, counting
// columns in runes.
func position(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if offset < 0 {
		offset = 0
	}
	head := data[:offset]
	line = bytes.Count(head, []byte("\n")) + 1
	start := bytes.LastIndexByte(head, '\n') + 1
	col = utf8.RuneCount(head[start:]) + 1
	return line, col
}

func kindOf(v any) string {
	switch v.(type) {
	case []any:
		return "an array"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
