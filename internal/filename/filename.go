package filename

import (
	"strconv"
	"strings"
)

// Rule accepts names shaped as prefix + decimal number + suffix.
type Rule struct {
	prefix string
	suffix string
}

// New returns the rule for names shaped prefix + number + suffix.
func New(prefix, suffix string) Rule {
	return Rule{prefix: prefix, suffix: suffix}
}

// Matches reports whether name carries the prefix, the suffix and only ASCII
// digits in between. Signs and empty middles are rejected.
func (r Rule) Matches(name string) bool {
	_, ok := r.SequenceNumber(name)
	return ok
}

// SequenceNumber returns the number embedded in name.
func (r Rule) SequenceNumber(name string) (int, bool) {
	middle, ok := r.middle(name)
	if !ok || middle == "" {
		return 0, false
	}
	for i := 0; i < len(middle); i++ {
		if middle[i] < '0' || middle[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(middle)
	if err != nil {
		// out of range
		return 0, false
	}
	return n, true
}

// middle strips prefix and suffix; they may not overlap.
func (r Rule) middle(name string) (string, bool) {
	if len(name) < len(r.prefix)+len(r.suffix) {
		return "", false
	}
	if !strings.HasPrefix(name, r.prefix) || !strings.HasSuffix(name, r.suffix) {
		return "", false
	}
	return name[len(r.prefix) : len(name)-len(r.suffix)], true
}

// OutputName returns the document name for a supplier bundle, e.g. Sony7.
func OutputName(supplier string, seq int) string {
	return supplier + strconv.Itoa(seq)
}
