// Package fingerprint derives the content identity of a generation request.
//
// Two requests with the same fingerprint are expected to produce visually
// equivalent images, so the cache may serve one for the other. Only
// allow-listed attributes participate; names and free-form metadata never do.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Appraisily/image-generation-service/internal/profile"
)

// Size is the fingerprint length in bytes.
const Size = 16

// Fingerprint is a 128-bit content hash rendered as lowercase hex.
type Fingerprint string

// AllowList names, per entity type, the attributes that determine the image.
type AllowList map[profile.EntityType][]string

// DefaultAllowList is used when configuration does not provide one.
func DefaultAllowList() AllowList {
	return AllowList{
		profile.Appraiser: {"gender", "specialization", "age", "ethnicity", "style"},
		profile.Location:  {"locationType", "city", "state", "style"},
	}
}

// Fields returns the normalized, sorted, de-duplicated attribute names for t.
func (a AllowList) Fields(t profile.EntityType) []string {
	src := a[t]
	out := make([]string, 0, len(src))
	for _, f := range src {
		f = normalizeKey(f)
		if f != "" {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Compute hashes the entity type, the allow-listed attributes and the prompt
// override of req. It is pure and never fails. Absent attributes hash the
// same as empty ones. Keys that differ only by case resolve as in
// profile.GenerationRequest.Attr.
func Compute(req profile.GenerationRequest, allow AllowList) Fingerprint {
	h := blake3.New()
	writeField(h, "entityType", strings.ToLower(string(req.EntityType)))
	for _, f := range allow.Fields(req.EntityType) {
		writeField(h, f, req.Attr(f))
	}
	if req.PromptOverride != "" {
		writeField(h, "\x00override", req.PromptOverride)
	}

	sum := h.Sum(nil)
	return Fingerprint(hex.EncodeToString(sum[:Size]))
}

// writeField length-prefixes name and value so adjacent fields cannot
// run into each other.
func writeField(h *blake3.Hasher, name, value string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(name)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(name))
	binary.BigEndian.PutUint64(n[:], uint64(len(value)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(value))
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
