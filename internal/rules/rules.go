// Package rules evaluates user-defined pattern rules against captures.
package rules

import (
	"fmt"
	"regexp"

	"github.com/hpungsan/clipnest/internal/capture"
)

// Field selects which candidate attribute a rule matches against.
type Field string

const (
	FieldText Field = "text"
	FieldURL  Field = "url"
	FieldApp  Field = "app"
	FieldType Field = "type"
)

// Action is what happens when a rule matches.
type Action string

const (
	ActionTag    Action = "tag"
	ActionIgnore Action = "ignore"
	ActionMerge  Action = "merge"
)

// Rule is a user-defined pattern rule.
type Rule struct {
	Pattern string  `json:"pattern"`
	Field   Field   `json:"field"`
	Action  Action  `json:"action"`
	Tag     *string `json:"tag,omitempty"`
}

// Candidate is the view of a capture that rules can inspect.
type Candidate struct {
	Text        string
	SourceURL   *string
	SourceApp   *string
	CaptureType capture.Type
}

// Result accumulates the effects of every matching rule.
type Result struct {
	Tags   []string
	Ignore bool
	// Merge is carried to callers; nothing resolves it yet.
	Merge bool
}

// Validate checks a rule's vocabulary. Pattern syntax is not checked here;
// uncompilable patterns are skipped at evaluation time.
func Validate(r Rule) error {
	switch r.Field {
	case FieldText, FieldURL, FieldApp, FieldType:
	default:
		return fmt.Errorf("unknown field %q (want text|url|app|type)", r.Field)
	}
	switch r.Action {
	case ActionTag:
		if r.Tag == nil || *r.Tag == "" {
			return fmt.Errorf("tag action requires a tag")
		}
	case ActionIgnore, ActionMerge:
	default:
		return fmt.Errorf("unknown action %q (want tag|ignore|merge)", r.Action)
	}
	return nil
}

// Set is a compiled, ordered rule list.
type Set struct {
	rules    []Rule
	compiled []*regexp.Regexp // nil where the pattern failed to compile
}

// Compile prepares rules for evaluation. Rules with invalid patterns are
// kept in place and skipped, so declaration order is preserved.
func Compile(rules []Rule) *Set {
	s := &Set{
		rules:    append([]Rule(nil), rules...),
		compiled: make([]*regexp.Regexp, len(rules)),
	}
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			continue
		}
		s.compiled[i] = re
	}
	return s
}

// Rules returns a copy of the rules in declaration order.
func (s *Set) Rules() []Rule {
	if s == nil {
		return []Rule{}
	}
	return append([]Rule{}, s.rules...)
}

// Invalid returns the rules whose patterns failed to compile.
func (s *Set) Invalid() []Rule {
	if s == nil {
		return nil
	}
	var out []Rule
	for i, re := range s.compiled {
		if re == nil {
			out = append(out, s.rules[i])
		}
	}
	return out
}

// Evaluate runs every rule in declaration order. All rules are evaluated
// even after an ignore so tag accumulation is deterministic.
func (s *Set) Evaluate(c Candidate) Result {
	res := Result{Tags: []string{}}
	if s == nil {
		return res
	}
	for i, r := range s.rules {
		re := s.compiled[i]
		if re == nil {
			continue
		}
		if !re.MatchString(fieldValue(c, r.Field)) {
			continue
		}
		switch r.Action {
		case ActionTag:
			if r.Tag != nil && *r.Tag != "" {
				res.Tags = append(res.Tags, *r.Tag)
			}
		case ActionIgnore:
			res.Ignore = true
		case ActionMerge:
			res.Merge = true
		}
	}
	return res
}

// Evaluate compiles rules and evaluates them against c.
func Evaluate(c Candidate, rules []Rule) Result {
	return Compile(rules).Evaluate(c)
}

func fieldValue(c Candidate, f Field) string {
	switch f {
	case FieldText:
		return c.Text
	case FieldURL:
		return deref(c.SourceURL)
	case FieldApp:
		return deref(c.SourceApp)
	case FieldType:
		return string(c.CaptureType)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
