package alignment

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPlaceholderPatterns recognise template slots that hold filler text
// rather than a negotiated value. Values are NFKC-normalised before matching,
// so full-width underscores and brackets are covered by the ASCII forms.
var DefaultPlaceholderPatterns = []string{
	`^_{2,}$`,
	`^\[.*\]$`,
	`^XX+$`,
	`^YYYY`,
	`^【.*】$`,
	`^〔.*〕$`,
}

// ActionClassifier decides between inserting into an empty slot and
// overriding a slot that already holds a value.
type ActionClassifier struct {
	patterns []*regexp.Regexp
	policies map[TermCategory]ActionType
}

// NewActionClassifier compiles the default placeholder patterns plus extra.
func NewActionClassifier(extra []string, policies map[TermCategory]ActionType) (*ActionClassifier, error) {
	all := append(append([]string(nil), DefaultPlaceholderPatterns...), extra...)
	patterns, err := compilePlaceholderPatterns(all)
	if err != nil {
		return nil, err
	}
	c := &ActionClassifier{patterns: patterns, policies: make(map[TermCategory]ActionType, len(policies))}
	for cat, action := range policies {
		if action != ActionInsert && action != ActionOverride {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidPolicy, cat, action)
		}
		c.policies[cat] = action
	}
	return c, nil
}

func compilePlaceholderPatterns(raw []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Classify returns the action for placing term into seg (which may be nil).
func (c *ActionClassifier) Classify(term *ExtractedTerm, seg *FillableSegment) ActionType {
	if action, ok := c.policies[term.Category]; ok {
		return action
	}
	if seg == nil || !seg.HasValue() {
		return ActionInsert
	}
	if c.IsPlaceholder(*seg.CurrentValue) {
		return ActionInsert
	}
	return ActionOverride
}

// IsPlaceholder reports whether value is filler text.
func (c *ActionClassifier) IsPlaceholder(value string) bool {
	v := strings.TrimSpace(NormalizeText(value))
	for _, re := range c.patterns {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}
