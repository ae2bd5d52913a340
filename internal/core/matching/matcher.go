package matching

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable is returned when the matching service could not answer
// within the retry and time budget. It wraps the last underlying cause.
var ErrUnavailable = errors.New("semantic matcher unavailable")

// Result is the best candidate for one source statement. Index is -1 and
// Matched is false when nothing matched.
type Result struct {
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
	Matched    bool    `json:"matched"`
}

func NoMatch() Result {
	return Result{Index: -1}
}

type Matcher interface {
	Match(ctx context.Context, source string, candidates []string) (Result, error)
}

// BatchMatcher answers several source statements against the same
// candidates in one call. Results are positional with sources.
type BatchMatcher interface {
	Matcher
	MatchBatch(ctx context.Context, sources []string, candidates []string) ([]Result, error)
}

// Validate turns a raw provider answer into a Result. Out-of-range indices,
// confidences outside [0,1] and NaN yield NoMatch.
func Validate(index int, confidence float64, candidates int) Result {
	if index < 0 || index >= candidates {
		return NoMatch()
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		return NoMatch()
	}
	return Result{Index: index, Confidence: confidence, Matched: true}
}
