// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (e.g., Deepgram's prerecorded
// API or a local whisper.cpp model) and exposes a uniform batch interface:
// one completed audio span in, one timed transcript out. Tandem deliberately
// avoids streaming here: the reconciliation engine operates on finished
// transcript outputs for a bounded span, so partial results have no consumer.
//
// Implementations must be safe for concurrent use. The orchestrator issues
// overlapping Transcribe calls against the same Provider (two full passes in
// parallel mode, several span re-transcriptions in confidence mode).
package stt

import (
	"context"

	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/types"
)

// RecognitionConfig carries the per-call recognition hints for a Transcribe
// request. The zero value is valid: providers fall back to their configured
// defaults.
type RecognitionConfig struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "de-DE"). An empty string lets the provider auto-detect, if supported.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for uncommon terms. Providers without recognition biasing
	// ignore this field; the fuzzy hotword pass still runs downstream.
	Keywords []types.KeywordBoost
}

// Provider is the abstraction over any STT backend.
//
// Per-word confidence is required for confidence-triggered re-transcription
// to function meaningfully. A provider whose engine cannot report confidence
// must set 1.0 on every word, which degenerates confidence mode to a
// primary-only pass. By contract that is never an error.
type Provider interface {
	// Transcribe runs a full recognition pass over span and returns the timed
	// transcript. Word timestamps are relative to the start of span, not to
	// any larger recording span may have been clipped from.
	//
	// An empty result (no words) is a valid return, not an error. Silence
	// transcribes to nothing. Errors are reserved for engine failures and
	// context cancellation.
	Transcribe(ctx context.Context, span audio.Span, cfg RecognitionConfig) (types.Transcript, error)
}
