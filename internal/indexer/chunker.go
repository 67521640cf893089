package indexer

import (
	"fmt"

	"github.com/smartdevs17/evm-event-indexer/pkg/utils"
)

// BlockRange is a closed interval of block heights.
type BlockRange struct {
	From uint64 `json:"from,string"`
	To   uint64 `json:"to,string"`
}

// Len returns the number of blocks covered by the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// SplitRange splits [fromBlock, toBlock] into ordered, contiguous,
// non-overlapping sub-ranges of at most maxWindow blocks each. Requests whose
// total span exceeds maxSpan are rejected before any chunk is produced, to
// bound total run time against a rate-limited provider.
func SplitRange(fromBlock, toBlock, maxWindow, maxSpan uint64) ([]BlockRange, error) {
	if fromBlock > toBlock {
		return nil, utils.NewAppError(utils.ErrCodeValidation,
			"Invalid block range",
			fmt.Sprintf("fromBlock %d is greater than toBlock %d", fromBlock, toBlock))
	}
	if maxWindow == 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Max block window must be positive")
	}

	span := toBlock - fromBlock + 1
	if maxSpan > 0 && span > maxSpan {
		return nil, utils.NewAppError(utils.ErrCodeRangeTooLarge,
			"Requested block range is too large",
			fmt.Sprintf("span of %d blocks exceeds the ceiling of %d", span, maxSpan))
	}

	chunks := make([]BlockRange, 0, (span+maxWindow-1)/maxWindow)
	for start := fromBlock; ; {
		end := start + maxWindow - 1
		if end > toBlock || end < start { // second clause guards uint64 wrap at the top of the range
			end = toBlock
		}
		chunks = append(chunks, BlockRange{From: start, To: end})
		if end == toBlock {
			break
		}
		start = end + 1
	}

	return chunks, nil
}
