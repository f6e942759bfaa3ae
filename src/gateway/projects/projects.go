// Package projects is the static registry of ecosystem projects that
// can receive votes. The registry is built at init from literal data;
// lookups are explicit (Project, bool) rather than failing on access.
package projects

import (
	"sort"
	"strconv"
)

type Project struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

// MaxID bounds accepted project ids; anything above is rejected before
// the registry is even consulted.
const MaxID = 1_000_000

var registry = map[uint32]Project{
	1:  {1, "Fluffle Den", "community", "https://den.fluffle.tools"},
	2:  {2, "MegaSwap", "dex", "https://megaswap.example.org"},
	3:  {3, "Rabbit Hole Market", "marketplace", "https://rabbithole.market"},
	5:  {5, "BurrowFi", "lending", "https://burrow.finance"},
	8:  {8, "Warren Works", "tooling", "https://warren.works"},
	12: {12, "Hopscotch Bridge", "bridge", "https://hopscotch.bridge"},
	13: {13, "CarrotCache", "infra", "https://carrotcache.io"},
	17: {17, "Thumper Analytics", "analytics", "https://thumper.xyz"},
	21: {21, "Fluffle Quests", "gaming", "https://quests.fluffle.tools"},
	27: {27, "MegaLens", "explorer", "https://megalens.io"},
	31: {31, "Burrow Bazaar", "marketplace", "https://bazaar.burrow.gg"},
	34: {34, "HareMail", "social", "https://haremail.app"},
	42: {42, "Lapin Labs", "tooling", "https://lapinlabs.dev"},
	48: {48, "CottonTail Pay", "payments", "https://cottontail.pay"},
	55: {55, "Velvet Ears DAO", "dao", "https://velvetears.dao"},
}

// Lookup returns the project for id when it is registered.
func Lookup(id uint32) (Project, bool) {
	p, ok := registry[id]
	return p, ok
}

// All returns registered projects in id order.
func All() []Project {
	out := make([]Project, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParseID validates and parses a project id parameter: it must be a
// positive integer no greater than MaxID and present in the registry.
func ParseID(s string) (uint32, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 || n > MaxID {
		return 0, false
	}
	id := uint32(n)
	if _, ok := registry[id]; !ok {
		return 0, false
	}
	return id, true
}
