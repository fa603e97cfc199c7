// Package topic checks the topic names a client may publish to, such as
// the will topic of a CONNECT. MQTT 3.1.1 Section 4.7
package topic

import "unicode/utf8"

const (
	// MaxLength is the longest topic name a UTF-8 string field can carry.
	MaxLength = 65535

	multiWildcard  = '#'
	singleWildcard = '+'
	reservedPrefix = '$'
)

// ValidateName reports whether a client may publish to name.
func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrEmptyTopic
	}
	if len(name) > MaxLength {
		return ErrTopicTooLong
	}
	if !utf8.ValidString(name) {
		return ErrInvalidUTF8
	}
	if name[0] == reservedPrefix {
		return ErrReservedPrefix
	}

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case multiWildcard, singleWildcard:
			return ErrWildcardInName
		case 0:
			return ErrNullCharacter
		}
	}
	return nil
}
