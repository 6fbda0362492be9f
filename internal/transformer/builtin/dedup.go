// Package builtin contains the in-memory transforms applied between parsing
// and loading.
//
// DeDup removes exact duplicate access records before they reach the
// database. Two records are duplicates when every field matches
// (record.AccessRecord.Equal); the first occurrence is kept and input order is
// otherwise preserved.
//
// Records are bucketed by an xxh3 hash of a canonical key so the pass is
// linear; hash collisions are resolved with a full structural comparison, so
// a collision can never merge two distinct records.
package builtin

import (
	"strconv"

	"github.com/zeebo/xxh3"

	"accesslog/internal/record"
)

// DeDup implements keep-first de-duplication of access records.
type DeDup struct {
	// Hash overrides the key hash. Nil uses xxh3.
	Hash func([]byte) uint64
}

// Apply returns the records with later duplicates removed and the number of
// records dropped. The input slice is not modified. Apply is idempotent.
func (d DeDup) Apply(in []record.AccessRecord) ([]record.AccessRecord, int) {
	if len(in) == 0 {
		return in, 0
	}
	hash := d.Hash
	if hash == nil {
		hash = xxh3.Hash
	}

	out := make([]record.AccessRecord, 0, len(in))
	buckets := make(map[uint64][]int, len(in)) // hash -> indexes into out
	var key []byte

	for _, r := range in {
		key = appendKey(key[:0], r)
		h := hash(key)

		dup := false
		for _, idx := range buckets[h] {
			if out[idx].Equal(r) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		buckets[h] = append(buckets[h], len(out))
		out = append(out, r)
	}
	return out, len(in) - len(out)
}

// appendKey writes the canonical key of r: fields joined by \x1f, timestamp
// as Unix nanoseconds so equal instants hash alike regardless of offset.
func appendKey(b []byte, r record.AccessRecord) []byte {
	const sep = '\x1f'
	b = append(b, r.ClientAddress...)
	b = append(b, sep)
	b = strconv.AppendInt(b, r.Timestamp.UnixNano(), 10)
	b = append(b, sep)
	b = append(b, r.Method...)
	b = append(b, sep)
	b = append(b, r.URL...)
	b = append(b, sep)
	b = strconv.AppendInt(b, int64(r.StatusCode), 10)
	b = append(b, sep)
	b = strconv.AppendInt(b, r.ResponseSize, 10)
	b = append(b, sep)
	b = append(b, r.QueryParameters...)
	return b
}
