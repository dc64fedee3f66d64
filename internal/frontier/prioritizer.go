package frontier

import "math"

// SeedPriority is assigned to the run's start URL.
const SeedPriority = 100

// Prioritizer assigns priorities to discovered links.
//
// Without adaptive crawling the score only depends on depth, which drains the
// frontier breadth first. With it, the parent's priority, the link relevance
// hint, and the parent page's change significance all push the score up.
type Prioritizer struct {
	Adaptive bool
}

// Child scores a link found at depth on a page with parentPriority.
// relevance is in [0,1]; significance is in [0,100].
func (p Prioritizer) Child(parentPriority float64, depth int, relevance, significance float64) float64 {
	base := 100 - 10*float64(depth)
	if !p.Adaptive {
		return base
	}
	relevance = clamp(relevance, 0, 1)
	significance = clamp(significance, 0, 100)
	score := 0.5*parentPriority + 0.5*base + 20*relevance + 15*significance/100
	return math.Round(score*1000) / 1000
}

// Rediscovery is the priority boost for a link that is already queued when
// another page links to it again. It is zero without adaptive crawling.
func (p Prioritizer) Rediscovery(relevance, significance float64) float64 {
	if !p.Adaptive {
		return 0
	}
	boost := 10*clamp(relevance, 0, 1) + 10*clamp(significance, 0, 100)/100
	return math.Round(boost*1000) / 1000
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
