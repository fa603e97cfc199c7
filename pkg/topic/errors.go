package topic

import "errors"

// Topic name validation errors.
var (
	ErrEmptyTopic     = errors.New("topic must not be empty")
	ErrTopicTooLong   = errors.New("topic exceeds maximum length")
	ErrNullCharacter  = errors.New("topic must not contain null character")
	ErrInvalidUTF8    = errors.New("topic must be valid UTF-8")
	ErrWildcardInName = errors.New("topic name must not contain wildcards")
	ErrReservedPrefix = errors.New("topics starting with $ are reserved for the server")
)
