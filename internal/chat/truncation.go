package chat

import "fmt"

// truncationTolerance absorbs provider counting drift: some providers report
// a token or two above or below the requested cap when they stop at it.
const truncationTolerance = 64

// IsTruncated reports whether a completed turn was cut off by the requested
// output token cap rather than a natural stop. True when outputTokens landed
// at (or within tolerance of) maxTokensRequested while the model itself could
// have produced more. A zero modelLimit means the model's cap is unknown and
// only the requested cap is considered.
func IsTruncated(outputTokens, maxTokensRequested, modelLimit int) bool {
	if outputTokens <= 0 || maxTokensRequested <= 0 {
		return false
	}
	if modelLimit > 0 && maxTokensRequested >= modelLimit {
		return false
	}
	return outputTokens >= maxTokensRequested-truncationTolerance
}

// TruncationWarning derives the advisory text shown alongside a truncated
// turn.
func TruncationWarning(maxTokensRequested int) string {
	return fmt.Sprintf("Response was cut off at the %d output token limit. Raise max_output_tokens or ask for a shorter answer.", maxTokensRequested)
}
