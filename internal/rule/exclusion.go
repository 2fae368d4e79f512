package rule

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Exclusion is an immutable set of owner ids already on the compilation
// path. With returns a new set, so sibling branches never observe each
// other's additions.
type Exclusion struct {
	ids *roaring64.Bitmap
}

// NewExclusion builds a set from ids.
func NewExclusion(ids ...int64) Exclusion {
	bm := roaring64.New()
	for _, id := range ids {
		bm.Add(uint64(id))
	}
	return Exclusion{ids: bm}
}

// With returns a copy of e that also contains id.
func (e Exclusion) With(id int64) Exclusion {
	var bm *roaring64.Bitmap
	if e.ids == nil {
		bm = roaring64.New()
	} else {
		bm = e.ids.Clone()
	}
	bm.Add(uint64(id))
	return Exclusion{ids: bm}
}

// Contains reports whether id is excluded.
func (e Exclusion) Contains(id int64) bool {
	return e.ids != nil && e.ids.Contains(uint64(id))
}

// Len returns the number of excluded ids.
func (e Exclusion) Len() int {
	if e.ids == nil {
		return 0
	}
	return int(e.ids.GetCardinality())
}

// IDs returns the excluded ids in ascending order.
func (e Exclusion) IDs() []int64 {
	if e.ids == nil {
		return nil
	}
	raw := e.ids.ToArray()
	out := make([]int64, len(raw))
	for i, v := range raw {
		out[i] = int64(v)
	}
	return out
}

// Fingerprint is a stable digest of the set, empty for the empty set.
func (e Exclusion) Fingerprint() string {
	if e.Len() == 0 {
		return ""
	}
	h := sha256.New()
	var buf [8]byte
	for _, id := range e.IDs() {
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
