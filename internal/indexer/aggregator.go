package indexer

import (
	"sort"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
)

// SortCanonical orders candidate records into the canonical arrival order:
// ascending block height, ties broken by ascending log index. This is the
// order used for storage and continuation logic.
func SortCanonical(events []*models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

// MaxBlock returns the highest block height among the records, and false
// when the set is empty.
func MaxBlock(events []*models.Event) (uint64, bool) {
	if len(events) == 0 {
		return 0, false
	}
	max := events[0].BlockNumber
	for _, e := range events[1:] {
		if e.BlockNumber > max {
			max = e.BlockNumber
		}
	}
	return max, true
}
