// Package engine implements the streaming conversation and document-edit
// reconciliation core: chunk accumulation, tool-call resolution, patch
// location, reflection, conversation history, and the version ledger.
package engine

import (
	"errors"
)

var (
	// ErrEditNotLocated is returned when the patch locator exhausts its
	// matching cascade without finding the snippet.
	ErrEditNotLocated = errors.New("edit snippet not located in document")

	// ErrNoChangesToSave is returned by manual save when the content is
	// identical to the current version.
	ErrNoChangesToSave = errors.New("no changes to save")

	// ErrExchangeInFlight is returned when a send/edit/retry/reset arrives
	// while an exchange is already streaming. Only one outbound exchange
	// may be in flight per session.
	ErrExchangeInFlight = errors.New("an exchange is already in flight")

	// ErrBadTurnIndex is returned when an edit/retry targets an index that
	// is out of range or has the wrong role.
	ErrBadTurnIndex = errors.New("message index out of range or wrong role")

	// ErrEmptyPrompt is returned when a send has no non-whitespace content.
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Fixed user-visible texts for terminal exchange states.
const (
	apologyText = "Sorry, something went wrong while generating a response. Please try again."

	notLocatedText = "I couldn't find the passage I was asked to change in the current document. " +
		"Try selecting a larger span of text, or ask for a full rewrite instead."

	toolUsedText = "I've updated the document."
)
