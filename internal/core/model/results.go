package model

type ImportError struct {
	Index   int    `json:"index"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

type ImportResult struct {
	ProductID string        `json:"product_id"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Retired   int           `json:"retired"`
	Failed    int           `json:"failed"`
	Errors    []ImportError `json:"errors,omitempty"`
}

// PairResult counts the outcome of mapping one source product onto one target.
// Skipped includes Rejected, Unavailable and blank-text controls.
type PairResult struct {
	SourceProductID string `json:"source_product_id"`
	TargetProductID string `json:"target_product_id"`
	Accepted        int    `json:"accepted"`
	Skipped         int    `json:"skipped"`
	Rejected        int    `json:"rejected"`
	Unavailable     int    `json:"unavailable"`
}

type PairOutcome struct {
	PairResult
	Error string `json:"error,omitempty"`
}

type BatchResult struct {
	Pairs   []PairOutcome `json:"pairs"`
	Ignored []string      `json:"ignored,omitempty"`
	Failed  int           `json:"failed"`
}

type RemapResult struct {
	ProductID    string        `json:"product_id"`
	Counterparts []PairOutcome `json:"counterparts"`
	Cleared      int64         `json:"cleared"`
}
