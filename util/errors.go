package util

import (
	"errors"
	"fmt"
)

// buffer pool
var (
	ErrBufferExhausted = errors.New("buffer exhausted")
	ErrBlockLocked     = errors.New("block is locked")
	ErrStaleHandle     = errors.New("stale block handle")
	ErrNotHeld         = errors.New("block not held by caller")
)

// file block io
var (
	ErrFileExists      = errors.New("file already exists")
	ErrFileNotFound    = errors.New("file not found")
	ErrFileClosed      = errors.New("file closed")
	ErrBlockOutOfRange = errors.New("block out of range")
	ErrShortBlock      = errors.New("short block")
)

// index
var (
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrDuplicateTid      = errors.New("duplicate tid")
	ErrKeyNotFound       = errors.New("key not found")
	ErrRemoveIncomplete  = errors.New("could not remove all tids")
	ErrUniqueMultiRemove = errors.New("removing multiple tids from a unique key")
	ErrIndexExists       = errors.New("index already initialized")
	ErrReadOnly          = errors.New("index opened read-only")
	ErrPageTooSmall      = errors.New("block too small for index entries")
	ErrKeyTooLong        = errors.New("key too long")
	ErrKeyType           = errors.New("key type mismatch")
	ErrMetaMismatch      = errors.New("index metadata mismatch")
	ErrUnknownKind       = errors.New("unknown index kind")
)

// structural, these mean a bug rather than bad input
var (
	ErrLockStack   = errors.New("lock stack invariant violated")
	ErrCorruptPage = errors.New("corrupt index page")
)

func NewError(err error, format string, args ...any) *SeqdbError {
	return &SeqdbError{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *SeqdbError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *SeqdbError) Unwrap() error {
	return e.Err
}

type SeqdbError struct {
	Message string
	Err     error
}
