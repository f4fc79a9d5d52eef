package harness

import (
	"fmt"
	"strings"
)

// Family is the stdin/stdout shape a harness implements.
type Family int

const (
	// SingleArray reads "[1,2,3]" and calls f(array).
	SingleArray Family = iota
	// TwoArgument reads "[1,2,3],9" and calls f(array, scalar).
	TwoArgument
	// LinkedList reads "[1,2,3]" into a singly linked list and calls f(head).
	LinkedList
)

func (f Family) String() string {
	switch f {
	case TwoArgument:
		return "two-argument"
	case LinkedList:
		return "linked-list"
	default:
		return "single-array"
	}
}

// Arity is the number of parameters the family passes.
func (f Family) Arity() int {
	if f == TwoArgument {
		return 2
	}
	return 1
}

// Tags form the controlled problem vocabulary.
var Tags = []string{
	"array", "linked-list", "hash-table", "two-pointers", "binary-search",
	"sorting", "math", "greedy", "dynamic-programming", "prefix-sum", "stack",
}

var twoArgumentTags = map[string]bool{
	"hash-table":    true,
	"two-pointers":  true,
	"binary-search": true,
}

// IsKnownTag reports whether tag belongs to the vocabulary.
func IsKnownTag(tag string) bool {
	for _, t := range Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FamilyForTags is the family implied by tags alone, used to check test inputs
// before any source is seen.
func FamilyForTags(tags []string) Family {
	for _, tag := range tags {
		if normalizeTag(tag) == "linked-list" {
			return LinkedList
		}
	}
	for _, tag := range tags {
		if twoArgumentTags[normalizeTag(tag)] {
			return TwoArgument
		}
	}
	return SingleArray
}

// selectFamily combines the tags with the callable's arity.
// A linked-list tag always wins; otherwise two parameters select the two-argument family.
func selectFamily(tags []string, c *Callable) (Family, error) {
	family := FamilyForTags(tags)
	if family == SingleArray && len(c.Params) == 2 {
		family = TwoArgument
	}
	if len(c.Params) != family.Arity() {
		return family, fmt.Errorf("%s harness passes %d argument(s) but %s declares %d",
			family, family.Arity(), c.Name, len(c.Params))
	}
	return family, nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
