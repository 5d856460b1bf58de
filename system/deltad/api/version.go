package api

import (
	"strconv"
	"strings"
)

// Version is the position of a patch in a log. Versions are assigned by
// the log on append and increase by one per patch, starting after Init.
type Version int64

const (
	// Init is the version of a dataset before any patch has been applied.
	Init Version = 0
	// Unset is the current version of a log with no entries.
	Unset Version = -1
)

// Next returns v+1.
func (v Version) Next() Version {
	return v + 1
}

// IsUnset reports whether v is the unset marker.
func (v Version) IsUnset() bool {
	return v == Unset
}

func (v Version) String() string {
	if v == Unset {
		return "unset"
	}
	return strconv.FormatInt(int64(v), 10)
}

// ParseVersion parses the decimal form of a version or the word "unset".
func ParseVersion(text string) (Version, error) {
	s := strings.TrimSpace(text)
	if s == "unset" {
		return Unset, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, Errorf(ErrCodeMalformedVersion, "not a version: %q", text)
	}
	if n < 0 {
		if Version(n) == Unset {
			return Unset, nil
		}
		return 0, Errorf(ErrCodeMalformedVersion, "negative version: %q", text)
	}
	return Version(n), nil
}
