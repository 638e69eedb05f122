package reinforcement

import (
	"fmt"
	"strings"
)

// UpdateRule selects which occurrences of a state within one trajectory contribute to its
// value, and how their returns are aggregated.
type UpdateRule int

const (
	FIRST_VISIT UpdateRule = iota
	EVERY_VISIT
	LAST_VISIT
	LAST_VISIT_BEST
)

var ruleNames = map[UpdateRule]string{
	FIRST_VISIT:     "first_visit",
	EVERY_VISIT:     "every_visit",
	LAST_VISIT:      "last_visit",
	LAST_VISIT_BEST: "last_visit_best",
}

func (rule UpdateRule) String() string {
	if name, ok := ruleNames[rule]; ok {
		return name
	}
	return fmt.Sprintf("UpdateRule(%d)", int(rule))
}

// ParseUpdateRule maps a configured rule name onto its UpdateRule.
func ParseUpdateRule(name string) (UpdateRule, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for rule, ruleName := range ruleNames {
		if ruleName == name {
			return rule, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRule, name)
}

// EveryOccurrence is true for rules that update a state each time it occurs in a trajectory,
// rather than once per trajectory.
func (rule UpdateRule) EveryOccurrence() bool {
	return rule == EVERY_VISIT
}
