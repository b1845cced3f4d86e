package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// AssociationKey derives a deterministic key for a cluster that does not
// overlap any persisted origin. The key depends only on the seed pick, so a
// cluster that grows by later picks keeps its key across poll cycles.
func AssociationKey(c Cluster) string {
	seed := c.Seed()
	input := fmt.Sprintf("%s|%d|%d", seed.StationKey(), seed.ID, c.ReferenceTime.UTC().UnixMilli())
	hash := sha256.Sum256([]byte(input))
	return "evt-" + hex.EncodeToString(hash[:8])
}

// ResolveAssociationKey picks the key for a cluster given which persisted
// origin (by key) currently holds each of its picks. The origin holding the
// most picks wins, ties going to the smallest key; a cluster with no
// persisted overlap gets a fresh AssociationKey.
func ResolveAssociationKey(c Cluster, holders map[int64]string) string {
	counts := make(map[string]int)
	for _, p := range c.Picks {
		if key, ok := holders[p.ID]; ok {
			counts[key]++
		}
	}
	if len(counts) == 0 {
		return AssociationKey(c)
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best
}
