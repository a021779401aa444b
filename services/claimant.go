package services

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ClaimantFields are the claimant details found in a court-process document.
// Every field is empty when not found.
type ClaimantFields struct {
	Name          string `json:"name,omitempty"`
	CPF           string `json:"cpf,omitempty"`
	RG            string `json:"rg,omitempty"`
	Profession    string `json:"profession,omitempty"`
	RequestDate   string `json:"request_date,omitempty"` // DER, dd/mm/yyyy
	BirthDate     string `json:"birth_date,omitempty"`   // dd/mm/yyyy
	BenefitNumber string `json:"benefit_number,omitempty"`
	PriorDecision string `json:"prior_decision,omitempty"`
	// Fallbacks names the fields that only matched a relaxed pattern
	Fallbacks []string `json:"fallbacks,omitempty"`
}

type claimantPattern struct {
	primary  *regexp.Regexp
	fallback *regexp.Regexp
}

var (
	namePattern = claimantPattern{
		primary: regexp.MustCompile(`Terceiro Vinculado\s+([^(\n]+)`),
	}
	cpfPattern = claimantPattern{
		primary:  regexp.MustCompile(`(?i)CPF(?: Nº)?:\s*([\d.\-]+)`),
		fallback: regexp.MustCompile(`CPF[^:\d]{0,6}[:\s]*([\d.\-]{11,})`),
	}
	rgPattern = claimantPattern{
		primary:  regexp.MustCompile(`(?i)RG(?: Nº)?:\s*([\w/.\-]+)`),
		fallback: regexp.MustCompile(`RG[^:\d]{0,6}[:\s]*([\w/.\-]{5,})`),
	}
	professionPattern = claimantPattern{
		primary: regexp.MustCompile(`(?i)Profiss(?:a|ã)o:[ \t]*(.+)`),
	}
	requestDatePattern = claimantPattern{
		primary:  regexp.MustCompile(`(?i)DER:\s*(\d{2}/\d{2}/\d{4})`),
		fallback: regexp.MustCompile(`(?i)Data de Entrada do Requerimento\s*[:\-]?\s*(\d{2}/\d{2}/\d{4})`),
	}
	birthDatePattern = claimantPattern{
		primary:  regexp.MustCompile(`(?i)Nasc(?:imento)?:\s*(\d{2}/\d{2}/\d{4})`),
		fallback: regexp.MustCompile(`(\d{2}/\d{2}/\d{4})`),
	}
	benefitNumberPattern = claimantPattern{
		primary: regexp.MustCompile(`(?i)NB[.:]?\s*(\d{3}\.\d{5}\.\d{2}|\d{10})`),
	}
	priorDecisionPattern = regexp.MustCompile(`(?i)(?:concedido|indeferido|nega[du]?)[\s\p{L}\p{N}_,]*benef(?:i|í)cio`)
)

// find returns the first capture, trying the relaxed pattern second
func (p claimantPattern) find(text string) (string, bool) {
	if m := p.primary.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), false
	}
	if p.fallback != nil {
		if m := p.fallback.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// ExtractClaimantFields applies the labeled patterns to the document text.
// Newlines in text bound single-line values such as the profession.
func ExtractClaimantFields(text string) ClaimantFields {
	var out ClaimantFields
	for _, f := range []struct {
		name    string
		pattern claimantPattern
		dst     *string
	}{
		{"name", namePattern, &out.Name},
		{"cpf", cpfPattern, &out.CPF},
		{"rg", rgPattern, &out.RG},
		{"profession", professionPattern, &out.Profession},
		{"request_date", requestDatePattern, &out.RequestDate},
		{"birth_date", birthDatePattern, &out.BirthDate},
		{"benefit_number", benefitNumberPattern, &out.BenefitNumber},
	} {
		value, relaxed := f.pattern.find(text)
		*f.dst = value
		if value != "" && relaxed {
			out.Fallbacks = append(out.Fallbacks, f.name)
		}
	}

	if m := priorDecisionPattern.FindString(text); m != "" {
		out.PriorDecision = capitalizeFirst(collapseWhitespace(m))
	}
	return out
}

// AgeOn returns the claimant's age in whole years on the given day
func (c ClaimantFields) AgeOn(day time.Time) (int, bool) {
	born, err := ParseBRDate(c.BirthDate)
	if err != nil {
		return 0, false
	}
	age := day.Year() - born.Year()
	if day.Month() < born.Month() || (day.Month() == born.Month() && day.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// capitalizeFirst upper-cases the first rune and lower-cases the rest
func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
