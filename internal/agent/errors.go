package agent

import "errors"

var (
	// ErrInvalidUtterance means the user message is empty, too large or not UTF-8.
	ErrInvalidUtterance = errors.New("utterance must be non-empty UTF-8 of at most 100000 bytes")

	// ErrEmptyAnswer means a resolution carried no answer.
	ErrEmptyAnswer = errors.New("answer is required")
)
