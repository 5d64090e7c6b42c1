package query

import "strings"

// Key identifies a cached read: the operation name followed by its parameters.
type Key []string

func NewKey(operation string, params ...string) Key {
	k := make(Key, 0, 1+len(params))
	k = append(k, operation)
	return append(k, params...)
}

func (k Key) Operation() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// HasPrefix reports whether every element of prefix matches the start of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return strings.Join(k, "/")
}

func (k Key) id() string {
	return strings.Join(k, "\x00")
}
