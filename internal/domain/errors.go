package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a test session does not exist or
	// is owned by another user (the questions read deliberately does not
	// distinguish the two).
	ErrSessionNotFound = errors.New("test session not found")
	// ErrForbidden is returned when a submit targets another user's session.
	ErrForbidden = errors.New("test session belongs to another user")
	// ErrInvalidSection indicates an unknown section code.
	ErrInvalidSection = errors.New("invalid section")
	// ErrNoTopicsFound indicates the requested topic labels resolve to nothing.
	ErrNoTopicsFound = errors.New("no topics found")
	// ErrNoAnswers indicates an empty submission.
	ErrNoAnswers = errors.New("no answers provided")
	// ErrAnswerTooLong indicates a malformed open-ended answer.
	ErrAnswerTooLong = errors.New("answer too long")
	// ErrTooManyAnswers indicates more answer items than any question allows.
	ErrTooManyAnswers = errors.New("too many answer items")
	// ErrAnswerItemTooLong indicates an oversized answer item.
	ErrAnswerItemTooLong = errors.New("answer item too long")
)
