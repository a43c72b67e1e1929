package providers

import (
	"hash/fnv"

	"github.com/penwyp/tokencat/models"
)

// Dedup drops duplicate records across files. Tools that resume or branch
// sessions copy earlier messages into new transcript files, so the same
// API call can appear more than once; the first occurrence wins.
//
// Identity is (tool, message id, request id). Records missing both ids are
// kept as-is since nothing ties them to a specific API call.
func Dedup(records []models.UsageRecord) []models.UsageRecord {
	seen := make(map[uint64]bool, len(records))
	out := records[:0]

	for i := range records {
		r := records[i]
		if r.MessageID == "" && r.RequestID == "" {
			out = append(out, r)
			continue
		}
		h := recordHash(&r)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, r)
	}

	return out
}

func recordHash(r *models.UsageRecord) uint64 {
	h := fnv.New64a()
	h.Write([]byte(r.Tool))
	h.Write([]byte{0})
	h.Write([]byte(r.MessageID))
	h.Write([]byte{0})
	h.Write([]byte(r.RequestID))
	return h.Sum64()
}
