package descriptor

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
)

// Rule is a compiled transformation rule. Use lists transformer identifiers in
// declaration order; they are applied last to first.
type Rule struct {
	Index   int
	Test    string
	Include string
	Exclude string
	Use     []string

	test    *regexp.Regexp
	exclude *regexp.Regexp
}

func compileRule(i int, rc RuleConfig) (Rule, error) {
	if rc.Test == "" {
		return Rule{}, fmt.Errorf("%w: rule %d has no test pattern", ErrInvalidPattern, i)
	}
	if len(rc.Use) == 0 || slices.Contains(rc.Use, "") {
		return Rule{}, fmt.Errorf("%w: rule %d (%s)", ErrNoTransformers, i, rc.Test)
	}

	test, err := regexp.Compile(rc.Test)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %d test %q: %v", ErrInvalidPattern, i, rc.Test, err)
	}

	r := Rule{
		Index:   i,
		Test:    rc.Test,
		Exclude: rc.Exclude,
		Use:     slices.Clone(rc.Use),
		test:    test,
	}

	if rc.Exclude != "" {
		r.exclude, err = regexp.Compile(rc.Exclude)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: rule %d exclude %q: %v", ErrInvalidPattern, i, rc.Exclude, err)
		}
	}

	if rc.Include != "" {
		r.Include = cleanDir(rc.Include)
		if r.exclude != nil && r.exclude.MatchString(r.Include) {
			return Rule{}, fmt.Errorf("%w: rule %d exclude %q matches include %q",
				ErrSelfDefeatingRule, i, rc.Exclude, r.Include)
		}
	}

	return r, nil
}

// Excludes reports whether the rule's exclude pattern matches p.
func (r Rule) Excludes(p string) bool {
	return r.exclude != nil && r.exclude.MatchString(p)
}

// applies expects p relative to the context, slash separated.
func (r Rule) applies(p string) bool {
	if r.test == nil || !r.test.MatchString(p) {
		return false
	}
	if r.Include != "" && r.Include != "." && p != r.Include && !strings.HasPrefix(p, r.Include+"/") {
		return false
	}
	return !r.Excludes(p)
}

func (r Rule) clone() Rule {
	r.Use = slices.Clone(r.Use)
	return r
}

func cleanDir(dir string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(dir, "\\", "/")), "./")
}
