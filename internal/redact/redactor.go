package redact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultAgeThreshold is the age above which exact ages are masked.
// Ages up to the threshold are common eligibility data and stay intact.
const DefaultAgeThreshold = 89

// Rule masks one category of identifying spans. Matches are replaced by the
// category placeholder, e.g. [EMAIL].
type Rule struct {
	Category string
	Pattern  *regexp.Regexp

	// replace overrides the default placeholder substitution. Used by the
	// age rule, which must compare the matched value against a threshold.
	replace func(match string) string
}

// Redactor masks personally identifying spans in patient text. It is
// deterministic for a fixed rule set and never touches clinically relevant
// tokens: every rule targets an identifier shape, not medical vocabulary.
type Redactor struct {
	rules []Rule
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phonePattern = regexp.MustCompile(`(\+?1[-.\s]?)?\(\d{3}\)[-.\s]?\d{3}[-.\s]?\d{4}\b|\b\d{3}[-.]\d{3}[-.]\d{4}\b`)
	mrnPattern   = regexp.MustCompile(`(?i)\b(?:MRN|medical record number|record (?:no\.?|number))[:#\s]*[A-Za-z0-9-]+`)

	isoDatePattern     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	numericDatePattern = regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b`)
	monthNamePattern   = regexp.MustCompile(`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`)

	agePattern = regexp.MustCompile(`\b(\d{1,3})(?:[-\s]year[-\s]old|\s*y/?o\b|\s+years?\s+(?:old|of\s+age))`)

	namePattern    = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`)
	addressPattern = regexp.MustCompile(`\b\d+\s+[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)*\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Court|Ct)\b\.?`)
	zipPattern     = regexp.MustCompile(`\b[A-Z]{2},?\s+\d{5}(?:-\d{4})?\b`)
)

// New creates a Redactor with the default rule set. The threshold controls
// the age rule; values <= 0 fall back to DefaultAgeThreshold.
func New(ageThreshold int) *Redactor {
	if ageThreshold <= 0 {
		ageThreshold = DefaultAgeThreshold
	}

	return &Redactor{
		rules: []Rule{
			{Category: "EMAIL", Pattern: emailPattern},
			{Category: "SSN", Pattern: ssnPattern},
			{Category: "PHONE", Pattern: phonePattern},
			{Category: "MRN", Pattern: mrnPattern},
			{Category: "DATE", Pattern: isoDatePattern},
			{Category: "DATE", Pattern: numericDatePattern},
			{Category: "DATE", Pattern: monthNamePattern},
			{Category: "AGE", Pattern: agePattern, replace: ageReplacer(ageThreshold)},
			{Category: "NAME", Pattern: namePattern},
			{Category: "ADDRESS", Pattern: addressPattern},
			{Category: "LOCATION", Pattern: zipPattern},
		},
	}
}

// WithRules appends custom rules after the defaults and returns the redactor.
func (r *Redactor) WithRules(rules ...Rule) *Redactor {
	r.rules = append(r.rules, rules...)
	return r
}

// Mask replaces identifying spans with category placeholders. Empty input
// yields empty output.
func (r *Redactor) Mask(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	for _, rule := range r.rules {
		if rule.replace != nil {
			text = rule.Pattern.ReplaceAllStringFunc(text, rule.replace)
			continue
		}
		text = rule.Pattern.ReplaceAllString(text, placeholder(rule.Category))
	}

	return text
}

func placeholder(category string) string {
	return fmt.Sprintf("[%s]", strings.ToUpper(category))
}

// ageReplacer masks exact ages strictly above the threshold. Ages at or
// below it pass through untouched since they carry eligibility signal.
func ageReplacer(threshold int) func(string) string {
	return func(match string) string {
		sub := agePattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}

		age, err := strconv.Atoi(sub[1])
		if err != nil || age <= threshold {
			return match
		}

		return strings.Replace(match, sub[1], placeholder("AGE"), 1)
	}
}
