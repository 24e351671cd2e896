package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SegaraRai/uabxautomate/internal/bundle"
	"github.com/SegaraRai/uabxautomate/internal/decoder"
)

// Spec is the uncompiled form of a rule as it appears in configuration.
type Spec struct {
	Type     string
	Template string
	Match    string
	Dest     string
}

// Rule is a compiled extraction target.
type Rule struct {
	Index    int
	Type     bundle.TypeTag
	Template string
	Pattern  *regexp.Regexp
	Dest     string
}

// Group is one capture group of a match. Matched is false when the group did
// not participate, which is distinct from matching the empty string.
type Group struct {
	Value   string
	Matched bool
}

// Match is a successful (object, rule) evaluation.
type Match struct {
	Rule       *Rule
	Identifier string
	// Groups holds capture groups 1..n at indices 0..n-1.
	Groups []Group
}

// Compile validates and compiles specs, keeping declaration order.
func Compile(specs []Spec) ([]Rule, error) {
	compiled := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		rule, err := compileOne(i, spec)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

func compileOne(index int, spec Spec) (Rule, error) {
	tag, err := bundle.ParseTypeTag(spec.Type)
	if err != nil {
		return Rule{}, err
	}
	if !decoder.Supported(tag) {
		return Rule{}, fmt.Errorf("type %q has no decoder", spec.Type)
	}
	if strings.TrimSpace(spec.Template) == "" {
		return Rule{}, fmt.Errorf("template is required")
	}
	if spec.Match == "" {
		return Rule{}, fmt.Errorf("match is required")
	}
	if strings.TrimSpace(spec.Dest) == "" {
		return Rule{}, fmt.Errorf("dest is required")
	}
	pattern, err := regexp.Compile(spec.Match)
	if err != nil {
		return Rule{}, fmt.Errorf("match: %w", err)
	}
	if err := CheckDest(pattern, spec.Dest); err != nil {
		return Rule{}, fmt.Errorf("dest: %w", err)
	}
	return Rule{
		Index:    index,
		Type:     tag,
		Template: spec.Template,
		Pattern:  pattern,
		Dest:     spec.Dest,
	}, nil
}

// MatchObject evaluates every rule against entry in declaration order. Rules
// whose type differs from the entry's never run their pattern.
func MatchObject(entry bundle.ObjectEntry, bundlePath string, rules []Rule) []Match {
	var matches []Match
	for i := range rules {
		rule := &rules[i]
		if rule.Type != entry.Type {
			continue
		}
		identifier := Identifier(rule.Template, entry, bundlePath)
		loc := rule.Pattern.FindStringSubmatchIndex(identifier)
		if loc == nil {
			continue
		}
		groups := make([]Group, rule.Pattern.NumSubexp())
		for g := range groups {
			start, end := loc[2*(g+1)], loc[2*(g+1)+1]
			if start < 0 {
				continue
			}
			groups[g] = Group{Value: identifier[start:end], Matched: true}
		}
		matches = append(matches, Match{Rule: rule, Identifier: identifier, Groups: groups})
	}
	return matches
}
