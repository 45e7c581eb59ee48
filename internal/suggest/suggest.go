// Package suggest finds the tool name(s) most likely meant when a model
// calls a tool the registry does not recognize.
package suggest

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestions bounds how many near-miss names are offered back.
const maxSuggestions = 3

// maxDistance is the largest edit distance still worth suggesting; beyond
// this the candidate is probably an unrelated name.
const maxDistance = 3

// Names returns up to maxSuggestions entries from candidates ordered by
// ascending edit distance to want (ties broken lexicographically), dropping
// any candidate whose distance exceeds maxDistance. If want itself carries a
// dot-suffix (e.g. "github.list_files"), the bare suffix after the last dot
// is also scored and can surface candidates that match it exactly.
func Names(want string, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}

	altWant := ""
	if idx := strings.LastIndexByte(want, '.'); idx != -1 {
		altWant = want[idx+1:]
	}

	var results []scored
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(want, c)
		if altWant != "" {
			if ad := levenshtein.ComputeDistance(altWant, c); ad < d {
				d = ad
			}
		}
		if d > maxDistance {
			continue
		}
		results = append(results, scored{name: c, dist: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].dist != results[j].dist {
			return results[i].dist < results[j].dist
		}
		return results[i].name < results[j].name
	})

	if len(results) > maxSuggestions {
		results = results[:maxSuggestions]
	}

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.name
	}
	return out
}
