package table

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Digest computes a deterministic SHA-256 over the table's schema and values
// and returns it as a lowercase hex string (length 64).
//
// Canonicalization rules:
//   - Columns are visited in order; each contributes its name, kind and row
//     count before its values.
//   - Floats are encoded by their IEEE-754 bit pattern, so two tables with the
//     same Digest are bit-identical (including NaN payloads and signed zeros).
//   - Strings are length-prefixed so adjacent values cannot run together.
//
// Digest is what the pipeline logs and stores as "catalog_sha256" metadata; a
// rerun with the same seeds and engine output must reproduce it.
func Digest(t *Table) string {
	h := sha256.New()
	var buf [8]byte

	putUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	putString := func(s string) {
		putUint(uint64(len(s)))
		_, _ = h.Write([]byte(s))
	}

	putUint(uint64(len(t.cols)))
	for _, c := range t.cols {
		putString(c.Name)
		putUint(uint64(c.Kind))
		putUint(uint64(c.Len()))
		switch c.Kind {
		case Float:
			for _, v := range c.floats {
				putUint(math.Float64bits(v))
			}
		case Int:
			for _, v := range c.ints {
				putUint(uint64(v))
			}
		default:
			for _, v := range c.strings {
				putString(v)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
