package apr

import (
	"time"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

const (
	// SecondsPerDay is used for every per-day conversion
	SecondsPerDay = 60 * 60 * 24

	// DefaultLookback is how many blocks back the rate sample is taken
	DefaultLookback uint64 = 10000

	// DefaultFloorBlock keeps the sample block away from genesis
	DefaultFloorBlock uint64 = 500
)

// SampleBlockNumber picks the historical block for the rate estimate:
// max(current-lookback, floor), without unsigned underflow.
func SampleBlockNumber(current, lookback, floor uint64) uint64 {
	if current <= lookback {
		return floor
	}
	if sample := current - lookback; sample > floor {
		return sample
	}
	return floor
}

// EstimateBlocksPerDay derives the chain's block production rate from two samples.
// Only the differences between the samples matter.
func EstimateBlocksPerDay(current, sample model.BlockSample) (float64, error) {
	if sample.Number >= current.Number {
		return 0, model.Errorf(model.KindInvalidSampleWindow, "block rate",
			"sample block %d is not before current block %d", sample.Number, current.Number)
	}
	if current.Timestamp <= sample.Timestamp {
		return 0, model.Errorf(model.KindInvalidSampleWindow, "block rate",
			"non-positive elapsed time: current=%d sample=%d", current.Timestamp, sample.Timestamp)
	}

	blocks := float64(current.Number - sample.Number)
	elapsed := float64(current.Timestamp - sample.Timestamp)
	return blocks / elapsed * SecondsPerDay, nil
}

// AverageBlockTime converts a blocks/day rate back to a block interval.
func AverageBlockTime(blocksPerDay float64) time.Duration {
	if blocksPerDay <= 0 {
		return 0
	}
	return time.Duration(SecondsPerDay / blocksPerDay * float64(time.Second))
}
