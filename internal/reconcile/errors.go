package reconcile

import "errors"

var (
	// ErrEmptyTranscript is returned when the primary STT pass produced no
	// words. There is nothing to reconcile, so this is fatal for the request.
	ErrEmptyTranscript = errors.New("primary pass produced an empty transcript")

	// ErrCapabilityUnavailable indicates a secondary STT engine or LLM was
	// requested but is not configured or reachable. Recovered locally: the
	// orchestrator degrades to the best available output.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrAlignmentDegenerate indicates the aligner gave up on a full DP
	// alignment (inputs too large) and fell back to a one-sided mapping.
	// Callers may ignore it; the returned pairs are always usable.
	ErrAlignmentDegenerate = errors.New("alignment degenerate, one-sided fallback")
)
