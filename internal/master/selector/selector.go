// Package selector ranks shards by how many applications they host.
package selector

import (
	"fmt"
	"sort"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// Ranked is a shard with its current application count.
type Ranked struct {
	Shard models.Shard
	Count int
}

// Rank orders shards by ascending load, then by name. Shards missing from
// load have a count of zero; load entries for unknown shards are ignored.
func Rank(shards []models.Shard, load []models.ShardLoad) []Ranked {
	counts := make(map[string]int, len(load))
	for _, l := range load {
		counts[l.Shard] = l.Count
	}

	ranked := make([]Ranked, 0, len(shards))
	for _, s := range shards {
		ranked = append(ranked, Ranked{Shard: s, Count: counts[s.Name]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count < ranked[j].Count
		}
		return ranked[i].Shard.Name < ranked[j].Shard.Name
	})
	return ranked
}

// Pick returns the least loaded shard that still has capacity.
func Pick(ranked []Ranked) (Ranked, error) {
	if len(ranked) == 0 {
		return Ranked{}, common.ErrNoShardsAvailable
	}
	for _, r := range ranked {
		if r.Shard.HasCapacity(r.Count) {
			return r, nil
		}
	}
	return Ranked{}, fmt.Errorf("%w: all %d shards are at capacity", common.ErrNoShardsAvailable, len(ranked))
}

// Candidates returns every shard with spare capacity in rank order.
func Candidates(ranked []Ranked) []Ranked {
	out := make([]Ranked, 0, len(ranked))
	for _, r := range ranked {
		if r.Shard.HasCapacity(r.Count) {
			out = append(out, r)
		}
	}
	return out
}
