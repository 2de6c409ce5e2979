// Package hashid derives deterministic identifiers from content. The same
// bytes always produce the same id, which lets callers recognise content
// they have already processed.
package hashid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Generate produces a 10-character hex id from the given parts. Parts are
// length-prefixed before hashing so ["a|b"] and ["a", "b"] differ.
func Generate(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s", len(p), p)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:5])
}

// Signature identifies an uploaded file by name, size and content hash, in
// the form "name:size:sha256hex".
func Signature(name string, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%d:%s", name, len(data), hex.EncodeToString(sum[:]))
}
