package rules

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrTemplate marks a destination template that cannot be rendered for a
	// match.
	ErrTemplate = errors.New("template error")
	// ErrPathEscape marks a rendered destination that would leave the
	// destination root.
	ErrPathEscape = errors.New("path escapes destination root")
)

var groupNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ref is a parsed "$" reference. Exactly one of literal, number or name is
// meaningful.
type ref struct {
	literal string
	number  int
	name    string
}

// parseDest splits a destination template into literal text and capture
// references. Supported forms are $n, ${n}, ${name} and $$. A bare $n takes
// every following digit, so "$12" is group twelve; write "${1}2" for group
// one followed by a literal 2.
func parseDest(dest string) ([]ref, error) {
	var parts []ref
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, ref{literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(dest); i++ {
		c := dest[i]
		if c != '$' {
			lit.WriteByte(c)
			continue
		}
		if i+1 >= len(dest) {
			return nil, fmt.Errorf("%w: trailing $ in %q", ErrTemplate, dest)
		}
		next := dest[i+1]
		switch {
		case next == '$':
			lit.WriteByte('$')
			i++
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(dest) && dest[j] >= '0' && dest[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(dest[i+1 : j])
			if err != nil {
				return nil, fmt.Errorf("%w: group reference %q", ErrTemplate, dest[i:j])
			}
			flush()
			parts = append(parts, ref{number: n})
			i = j - 1
		case next == '{':
			end := strings.IndexByte(dest[i+2:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated ${ in %q", ErrTemplate, dest)
			}
			body := dest[i+2 : i+2+end]
			flush()
			if n, err := strconv.Atoi(body); err == nil && n >= 0 {
				parts = append(parts, ref{number: n})
			} else if groupNamePattern.MatchString(body) {
				parts = append(parts, ref{name: body, number: -1})
			} else {
				return nil, fmt.Errorf("%w: invalid group reference ${%s}", ErrTemplate, body)
			}
			i += 2 + end
		default:
			return nil, fmt.Errorf("%w: unescaped $ at offset %d in %q (use $$)", ErrTemplate, i, dest)
		}
	}
	flush()
	return parts, nil
}

// CheckDest verifies that every reference in dest names a group pattern
// declares. Group 0 is never valid because it is the whole identifier.
func CheckDest(pattern *regexp.Regexp, dest string) error {
	parts, err := parseDest(dest)
	if err != nil {
		return err
	}
	for _, part := range parts {
		if part.literal != "" {
			continue
		}
		if part.name != "" {
			if pattern.SubexpIndex(part.name) < 0 {
				return fmt.Errorf("%w: pattern has no group named %q", ErrTemplate, part.name)
			}
			continue
		}
		if part.number < 1 || part.number > pattern.NumSubexp() {
			return fmt.Errorf("%w: group $%d out of range (pattern has %d)", ErrTemplate, part.number, pattern.NumSubexp())
		}
	}
	return nil
}

// Render expands m.Rule.Dest with the match's capture groups. The result is a
// slash separated path relative to the destination root.
func Render(m Match) (string, error) {
	return RenderTemplate(m.Rule.Dest, m.Rule.Pattern, m.Groups)
}

// RenderTemplate expands dest against groups captured by pattern. References
// to group 0, groups the pattern lacks, or groups that did not participate in
// the match fail with ErrTemplate. The rendered path must stay relative and
// free of ".." segments or it fails with ErrPathEscape.
func RenderTemplate(dest string, pattern *regexp.Regexp, groups []Group) (string, error) {
	parts, err := parseDest(dest)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, part := range parts {
		if part.literal != "" {
			b.WriteString(part.literal)
			continue
		}
		n := part.number
		label := "$" + strconv.Itoa(n)
		if part.name != "" {
			n = pattern.SubexpIndex(part.name)
			label = "${" + part.name + "}"
			if n < 0 {
				return "", fmt.Errorf("%w: no group named %q", ErrTemplate, part.name)
			}
		}
		if n < 1 || n > len(groups) {
			return "", fmt.Errorf("%w: %s out of range (%d groups)", ErrTemplate, label, len(groups))
		}
		group := groups[n-1]
		if !group.Matched {
			return "", fmt.Errorf("%w: %s did not participate in the match", ErrTemplate, label)
		}
		b.WriteString(group.Value)
	}
	return normalizeRelative(b.String())
}

var drivePrefix = regexp.MustCompile(`^[A-Za-z]:`)

// normalizeRelative converts backslashes, rejects absolute paths and ".."
// segments, and cleans the result.
func normalizeRelative(rendered string) (string, error) {
	slashed := strings.ReplaceAll(rendered, `\`, "/")
	if strings.TrimSpace(slashed) == "" {
		return "", fmt.Errorf("%w: destination rendered empty", ErrTemplate)
	}
	if strings.HasPrefix(slashed, "/") || drivePrefix.MatchString(slashed) {
		return "", fmt.Errorf("%w: %q is absolute", ErrPathEscape, rendered)
	}
	for _, segment := range strings.Split(slashed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q contains ..", ErrPathEscape, rendered)
		}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", fmt.Errorf("%w: destination %q names no file", ErrTemplate, rendered)
	}
	return cleaned, nil
}
