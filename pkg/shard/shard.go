// Package shard parses and renders the fixed-width shard naming convention
// used by HuggingFace-style sharded datasets, e.g. `validation-00000-of-00128`.
// The shard index and the total count are zero-padded to the same width,
// which is at least 5 digits and grows with the total count.
package shard

import (
	"fmt"
	"strconv"
	"strings"
)

// Split is the dataset partition a shard belongs to.
type Split string

const (
	SplitTrain      Split = "train"
	SplitValidation Split = "validation"
)

// ParseSplit validates a user-supplied split name.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case SplitTrain, SplitValidation:
		return Split(s), nil
	}
	return "", fmt.Errorf("invalid split %q, must be one of: %s, %s", s, SplitTrain, SplitValidation)
}

func (s Split) String() string {
	return string(s)
}

// The naming convention zero-pads to at least 5 digits, even for small
// shard counts (`00128`, not `128`).
const minDigits = 5

// Digits returns the zero-padding width used for both the shard index and
// the total count of a dataset sharded `total` ways.
func Digits(total int) int {
	d := len(strconv.Itoa(total))
	if d < minDigits {
		return minDigits
	}
	return d
}

// Name renders the source-side shard filename `<split>-NNNNN-of-MMMMM`.
func Name(split Split, index, total int) string {
	w := Digits(total)
	return fmt.Sprintf("%s-%0*d-of-%0*d", split, w, index, w, total)
}

// File is one parsed shard name. Padded holds the index text exactly as it
// appeared in the source name; output names preserve that width.
type File struct {
	Index  int
	Padded string
}

// Parse matches name against `<split>-NNNNN-of-<total>` with an anchored,
// positional match. The index must be exactly as wide as the convention
// demands for `total`, all digits, and less than `total`; the total suffix
// must be the zero-padded rendering of `total` with nothing trailing it.
// Anything else is reported as a non-match, never an error.
func Parse(name string, split Split, total int) (File, bool) {
	rest, ok := strings.CutPrefix(name, string(split)+"-")
	if !ok {
		return File{}, false
	}

	w := Digits(total)
	if len(rest) != w+len("-of-")+w {
		return File{}, false
	}

	padded, rest := rest[:w], rest[w:]
	for i := 0; i < len(padded); i++ {
		if padded[i] < '0' || padded[i] > '9' {
			return File{}, false
		}
	}

	rest, ok = strings.CutPrefix(rest, "-of-")
	if !ok {
		return File{}, false
	}
	if rest != fmt.Sprintf("%0*d", w, total) {
		return File{}, false
	}

	index, err := strconv.Atoi(padded)
	if err != nil || index >= total {
		return File{}, false
	}

	return File{Index: index, Padded: padded}, true
}

// PartName renders the target-side filename `part-NNNNN`, keeping the digit
// width of the source name.
func (f File) PartName() string {
	return "part-" + f.Padded
}
