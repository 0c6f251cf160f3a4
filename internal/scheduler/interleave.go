package scheduler

import "github.com/pagewarden/dispatch/internal/model"

// interleave pops position 0 of each domain's page queue in insertion
// order, then position 1, and so on, dropping a domain once its queue is
// exhausted. This is the round-robin fairness step of spec.md §4.4.1 —
// per-domain queues popped in lockstep, never a sort of the union (§9
// design note: sorting by (score, domain) would reintroduce the
// head-of-line monopoly the design exists to prevent).
func interleave(perDomain [][]model.Page) []model.Page {
	out := make([]model.Page, 0, totalLen(perDomain))
	remaining := make([][]model.Page, len(perDomain))
	copy(remaining, perDomain)

	for {
		progressed := false
		for i, queue := range remaining {
			if len(queue) == 0 {
				continue
			}
			out = append(out, queue[0])
			remaining[i] = queue[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

func totalLen(perDomain [][]model.Page) int {
	n := 0
	for _, q := range perDomain {
		n += len(q)
	}
	return n
}
