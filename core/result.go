package core

// Outcome classifies how a submission resolved.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// Result is delivered once per submission on its completion channel.
// Leaderboard is set for committed submissions, Err for failed ones.
type Result struct {
	Entry       ScoreEntry  `json:"entry"`
	Outcome     Outcome     `json:"outcome"`
	Leaderboard Leaderboard `json:"leaderboard"`
	Err         error       `json:"-"`
}

func (r Result) Committed() bool { return r.Outcome == OutcomeCommitted }
func (r Result) Aborted() bool   { return r.Outcome == OutcomeAborted }
func (r Result) Failed() bool    { return r.Outcome == OutcomeFailed }

// Resolved wraps a result in an already completed channel.
func Resolved(r Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- r
	close(ch)
	return ch
}

// AsError folds the outcome into an error: nil when committed, ErrAborted when aborted
// and Err otherwise.
func (r Result) AsError() error {
	switch r.Outcome {
	case OutcomeCommitted:
		return nil
	case OutcomeAborted:
		return ErrAborted
	}
	if r.Err == nil {
		return ErrTransactionFailed
	}
	return r.Err
}
