// Package hipaa holds the privacy controls applied before patient data leaves
// the system: redaction at graded anonymization levels, pseudonyms,
// differential-privacy noise, the PHI guard and the disclosure log.
package hipaa

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Anonymizer redacts rendered patient context.
type Anonymizer struct {
	pseudonyms *Pseudonymizer
}

func NewAnonymizer(pseudonyms *Pseudonymizer) *Anonymizer {
	if pseudonyms == nil {
		pseudonyms = NewPseudonymizer(NewMemoryPseudonymStore())
	}
	return &Anonymizer{pseudonyms: pseudonyms}
}

// Pseudonyms exposes the pseudonym generator backing the statistical level.
func (a *Anonymizer) Pseudonyms() *Pseudonymizer {
	return a.pseudonyms
}

// Anonymize applies level to text. STATISTICAL replaces the text with a
// categorical summary keyed by the patient's pseudonym.
func (a *Anonymizer) Anonymize(ctx context.Context, text, patientID string, level Level) (string, error) {
	switch level {
	case LevelMinimal, LevelModerate, LevelAggressive:
		return redact(text, level), nil
	case LevelStatistical:
		return a.statisticalSummary(ctx, text, patientID)
	default:
		return "", fmt.Errorf("unknown anonymization level %d", int(level))
	}
}

// span is one replacement over text[start:end]. prio is the index of the
// rule that produced it; lower wins when spans overlap.
type span struct {
	start, end int
	repl       string
	prio       int
}

// redactionSpans matches every rule of level against the original text and
// merges overlapping matches. Matching the original rather than the output
// of earlier rules keeps each level's redactions a superset of the previous
// level's.
func redactionSpans(text string, level Level) []span {
	var spans []span
	addresses := addressPattern.FindAllStringIndex(text, -1)
	for prio, r := range rulesFor(level) {
		for _, idx := range r.pattern.FindAllStringSubmatchIndex(text, -1) {
			if r.outsideAddresses && within(addresses, idx[0], idx[1]) {
				continue
			}
			groups := submatches(text, idx)
			repl, ok := r.replace(groups)
			if !ok {
				continue
			}
			spans = append(spans, span{start: idx[0], end: idx[1], repl: repl, prio: prio})
		}
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start >= last.end {
			merged = append(merged, s)
			continue
		}
		if s.end > last.end {
			last.end = s.end
		}
		if s.prio < last.prio {
			last.prio = s.prio
			last.repl = s.repl
		}
	}
	return merged
}

func within(ranges [][]int, start, end int) bool {
	for _, r := range ranges {
		if start >= r[0] && end <= r[1] {
			return true
		}
	}
	return false
}

func submatches(text string, idx []int) []string {
	groups := make([]string, len(idx)/2)
	for i := range groups {
		if idx[2*i] >= 0 {
			groups[i] = text[idx[2*i]:idx[2*i+1]]
		}
	}
	return groups
}

func redact(text string, level Level) string {
	spans := redactionSpans(text, level)
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, s := range spans {
		b.WriteString(text[pos:s.start])
		b.WriteString(s.repl)
		pos = s.end
	}
	b.WriteString(text[pos:])
	return b.String()
}

// Section headers of a rendered context, in output order.
var summaryCategories = []struct {
	label  string
	header string
}{
	{"Vitals", "RECENT VITALS:"},
	{"Medications", "CURRENT MEDICATIONS:"},
	{"Clinical notes", "RECENT CLINICAL NOTES:"},
	{"Mood and pain logs", "RECENT MOOD & PAIN LOGS:"},
	{"Allergies", "KNOWN ALLERGIES:"},
}

var ageLinePattern = regexp.MustCompile(`(?m)^\s*Age:\s*(\d{1,3})\b`)

func (a *Anonymizer) statisticalSummary(ctx context.Context, text, patientID string) (string, error) {
	pseudo, err := a.pseudonyms.Pseudonym(ctx, patientID, "patient")
	if err != nil {
		return "", err
	}

	group := "unknown"
	if m := ageLinePattern.FindStringSubmatch(text); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			group = AgeGroup(age)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PATIENT: %s\n", pseudo)
	fmt.Fprintf(&b, "AGE GROUP: %s\n", group)
	b.WriteString("DATA CATEGORIES:\n")
	for _, c := range summaryCategories {
		state := "absent"
		if strings.Contains(text, c.header) {
			state = "present"
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.label, state)
	}
	return b.String(), nil
}

// AgeGroup buckets an age by decade, with everything above 89 pooled.
func AgeGroup(age int) string {
	switch {
	case age < 0:
		return "unknown"
	case age < 18:
		return "0-17"
	case age < 30:
		return "18-29"
	case age > 89:
		return ">89"
	default:
		lo := age / 10 * 10
		return fmt.Sprintf("%d-%d", lo, lo+9)
	}
}

// ContainsPHI reports whether text still carries a name, SSN, phone number,
// email address or street address.
func ContainsPHI(text string) bool {
	for _, p := range []*regexp.Regexp{ssnPattern, phonePattern, emailPattern, addressPattern} {
		if p.MatchString(text) {
			return true
		}
	}
	for _, m := range namePattern.FindAllString(text, -1) {
		if !isClinicalPair(m) {
			return true
		}
	}
	return false
}
