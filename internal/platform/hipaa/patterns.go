package hipaa

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	PlaceholderName     = "[NAME]"
	PlaceholderSSN      = "[SSN]"
	PlaceholderPhone    = "[PHONE]"
	PlaceholderEmail    = "[EMAIL]"
	PlaceholderAddress  = "[ADDRESS]"
	PlaceholderDate     = "[DATE]"
	PlaceholderFacility = "[FACILITY]"
	PlaceholderTime     = "[TIME]"
)

const nameWord = `[A-Z](?:[a-z]+(?:['’\-]?[A-Z]?[a-z]+)*|['’][A-Z][a-z]+(?:-[A-Z][a-z]+)*)`

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\(\d{3}\)\s?|\b\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`)

	// A run of two or three capitalized words, optionally with a middle
	// initial, or a title and surname. Words may carry inner capitals,
	// apostrophes or hyphens (McAllister, O'Brien, Smith-Jones).
	namePattern = regexp.MustCompile(`\b(?:(?:Dr|Mr|Mrs|Ms|Miss)\.?[ \t]+` + nameWord +
		`|` + nameWord + `(?:[ \t]+(?:[A-Z]\.[ \t]+)?` + nameWord + `){1,2})\b`)

	addressPattern = regexp.MustCompile(`\b\d{1,6}[ \t]+(?:[A-Z][A-Za-z]*[ \t]+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl|Terrace|Parkway|Pkwy)\b\.?`)

	datePattern = regexp.MustCompile(`\b(?:(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)

	facilityPattern = regexp.MustCompile(`\b(?:[A-Z][A-Za-z'.]*[ \t]+){1,4}(?:Hospital|Clinic|Medical Center|Health Center|Nursing Home|Care Center|Hospice|Infirmary)\b`)

	timePattern = regexp.MustCompile(`(?i)\b(?:[01]?\d|2[0-3]):[0-5]\d(?::[0-5]\d)?(?:\s?[ap]\.?m\.?)?`)

	precisePattern  = regexp.MustCompile(`\b\d+\.\d{3,}\b`)
	ageYearsPattern = regexp.MustCompile(`(?i)\b(\d{2,3})\s*-?\s*(?:years?|yrs?)(?:[\s\-]+old)?\b`)
	ageFieldPattern = regexp.MustCompile(`(?i)\b(age:\s*)(\d{2,3})\b`)

	decimalPattern = regexp.MustCompile(`\b\d+\.\d+\b`)
)

// clinicalTerms are capitalized words that commonly pair up in medical text
// without naming a person. A pair made only of these words is not a name.
var clinicalTerms = map[string]bool{
	"blood": true, "pressure": true, "heart": true, "rate": true, "sugar": true,
	"glucose": true, "body": true, "temperature": true, "oxygen": true,
	"saturation": true, "respiratory": true, "weight": true, "height": true,
	"pain": true, "level": true, "mood": true, "score": true, "once": true,
	"twice": true, "daily": true, "weekly": true, "morning": true, "evening": true,
	"night": true, "as": true, "needed": true, "with": true, "food": true,
	"clinical": true, "notes": true, "known": true, "allergies": true,
	"current": true, "medications": true, "recent": true, "vitals": true,
	"physical": true, "therapy": true, "type": true, "diabetes": true,
	"severe": true, "moderate": true, "mild": true, "reaction": true,
	"patient": true, "reports": true, "feeling": true, "doing": true,
	"gender": true, "female": true, "male": true, "age": true, "data": true,
	"categories": true, "group": true, "unknown": true, "present": true,
	"absent": true, "peanut": true, "shellfish": true, "penicillin": true,
}

func isClinicalPair(match string) bool {
	for _, w := range strings.Fields(match) {
		if !clinicalTerms[strings.ToLower(strings.TrimSuffix(w, "."))] {
			return false
		}
	}
	return true
}

// drugClasses generalizes specific drug names at the aggressive level.
var drugClasses = map[string]string{
	"lisinopril":    "ACE inhibitor",
	"enalapril":     "ACE inhibitor",
	"losartan":      "angiotensin receptor blocker",
	"metformin":     "biguanide antidiabetic",
	"glipizide":     "sulfonylurea antidiabetic",
	"insulin":       "insulin",
	"atorvastatin":  "statin",
	"simvastatin":   "statin",
	"rosuvastatin":  "statin",
	"amlodipine":    "calcium channel blocker",
	"metoprolol":    "beta blocker",
	"atenolol":      "beta blocker",
	"carvedilol":    "beta blocker",
	"warfarin":      "anticoagulant",
	"apixaban":      "anticoagulant",
	"clopidogrel":   "antiplatelet",
	"aspirin":       "antiplatelet",
	"furosemide":    "loop diuretic",
	"sertraline":    "SSRI antidepressant",
	"fluoxetine":    "SSRI antidepressant",
	"escitalopram":  "SSRI antidepressant",
	"omeprazole":    "proton pump inhibitor",
	"pantoprazole":  "proton pump inhibitor",
	"levothyroxine": "thyroid hormone",
	"ibuprofen":     "NSAID",
	"naproxen":      "NSAID",
	"acetaminophen": "analgesic",
	"oxycodone":     "opioid analgesic",
	"tramadol":      "opioid analgesic",
	"gabapentin":    "anticonvulsant",
	"prednisone":    "corticosteroid",
	"albuterol":     "bronchodilator",
	"amoxicillin":   "penicillin antibiotic",
	"donepezil":     "cholinesterase inhibitor",
}

var drugPattern = func() *regexp.Regexp {
	names := make([]string, 0, len(drugClasses))
	for name := range drugClasses {
		names = append(names, regexp.QuoteMeta(name))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(names, "|") + `)\b`)
}()

// rule replaces every match of pattern. replace receives the submatches and
// reports false to leave a match untouched.
type rule struct {
	pattern *regexp.Regexp
	replace func(groups []string) (string, bool)
	// outsideAddresses drops matches lying inside a street address, so an
	// address survives levels that do not redact it and the guard sees it.
	outsideAddresses bool
}

func fixed(p *regexp.Regexp, placeholder string) rule {
	return rule{pattern: p, replace: func([]string) (string, bool) { return placeholder, true }}
}

var (
	nameRule = rule{pattern: namePattern, replace: func(g []string) (string, bool) {
		if isClinicalPair(g[0]) {
			return "", false
		}
		return PlaceholderName, true
	}, outsideAddresses: true}

	minimalRules = []rule{
		fixed(emailPattern, PlaceholderEmail),
		fixed(ssnPattern, PlaceholderSSN),
		fixed(phonePattern, PlaceholderPhone),
		nameRule,
	}

	moderateRules = []rule{
		fixed(addressPattern, PlaceholderAddress),
		fixed(datePattern, PlaceholderDate),
		fixed(facilityPattern, PlaceholderFacility),
		fixed(timePattern, PlaceholderTime),
	}

	aggressiveRules = []rule{
		{pattern: precisePattern, replace: func(g []string) (string, bool) {
			f, err := strconv.ParseFloat(g[0], 64)
			if err != nil {
				return "", false
			}
			return fmt.Sprintf("%.2f", f), true
		}},
		{pattern: ageYearsPattern, replace: func(g []string) (string, bool) {
			if n, _ := strconv.Atoi(g[1]); n > 89 {
				return ">89 years old", true
			}
			return "", false
		}},
		{pattern: ageFieldPattern, replace: func(g []string) (string, bool) {
			if n, _ := strconv.Atoi(g[2]); n > 89 {
				return g[1] + ">89", true
			}
			return "", false
		}},
		{pattern: drugPattern, replace: func(g []string) (string, bool) {
			class, ok := drugClasses[strings.ToLower(g[0])]
			return class, ok
		}},
	}
)

// rulesFor lists the rules of a level, highest priority first.
func rulesFor(level Level) []rule {
	switch level {
	case LevelMinimal:
		return minimalRules
	case LevelModerate:
		return concatRules(moderateRules, minimalRules)
	case LevelAggressive:
		return concatRules(moderateRules, minimalRules, aggressiveRules)
	default:
		return nil
	}
}

func concatRules(sets ...[]rule) []rule {
	var out []rule
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}
