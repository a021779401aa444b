package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"meu_perito_go/models"
)

// PartyNotIdentified is stored when no party name could be recognized
const PartyNotIdentified = "Não identificado"

type caseNumberPattern struct {
	name string
	re   *regexp.Regexp
}

// Most specific first: the national unified (CNJ) numbering, then the
// federal and state numberings used before it.
var caseNumberPatterns = []caseNumberPattern{
	{"cnj", regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`)},
	{"federal_legacy", regexp.MustCompile(`\b\d{4}\.\d{2}\.\d{2}\.\d{6}-\d\b`)},
	{"state_legacy", regexp.MustCompile(`\b\d{3}\.\d{2}\.\d{4}\.\d{6}-\d\b`)},
}

var nameConnectors = map[string]bool{"da": true, "de": true, "do": true, "das": true, "dos": true, "e": true}

// maxNameWords bounds how far back a party-name run may reach
const maxNameWords = 12

// CandidateFields is the best-effort output of the recognizer. Every value is
// a suggestion awaiting human confirmation.
type CandidateFields struct {
	CaseNumber        string                 `json:"case_number"`
	CaseNumberPattern string                 `json:"case_number_pattern,omitempty"`
	PartyName         string                 `json:"party_name"`
	BenefitType       models.BenefitType     `json:"benefit_type"`
	Confidence        models.FieldConfidence `json:"confidence"`
	Claimant          ClaimantFields         `json:"claimant"`
	PageCount         int                    `json:"page_count"`
}

// Snapshot converts the candidates into the record kept on an extracted case
func (c CandidateFields) Snapshot(sourceKey string) models.ExtractionSnapshot {
	return models.ExtractionSnapshot{
		CaseNumber:        c.CaseNumber,
		CaseNumberPattern: c.CaseNumberPattern,
		PartyName:         c.PartyName,
		BenefitType:       c.BenefitType,
		Confidence:        c.Confidence,
		SourceDocumentKey: sourceKey,
	}
}

// Recognizer runs the pattern cascade over extracted document text
type Recognizer struct {
	cfg RecognizerConfig

	labels   map[string]bool
	headings map[string]bool
	noise    *regexp.Regexp

	sickness           *regexp.Regexp
	assistance         *regexp.Regexp
	trafficInsurance   *regexp.Regexp
	tieBreakSickness   *regexp.Regexp
	tieBreakAssistance *regexp.Regexp
}

// NewRecognizer compiles the keyword data of cfg
func NewRecognizer(cfg RecognizerConfig) (*Recognizer, error) {
	if len(cfg.Benefit.Sickness) == 0 || len(cfg.Benefit.Assistance) == 0 {
		return nil, fmt.Errorf("recognizer needs sickness and assistance keywords")
	}
	if cfg.Party.MaxLength <= 0 {
		cfg.Party.MaxLength = 50
	}
	if cfg.FirstPageChars <= 0 {
		cfg.FirstPageChars = 3000
	}

	r := &Recognizer{
		cfg:                cfg,
		labels:             make(map[string]bool, len(cfg.Party.Labels)),
		headings:           make(map[string]bool, len(cfg.Party.Headings)),
		noise:              keywordPattern(cfg.Party.Noise),
		sickness:           keywordPattern(cfg.Benefit.Sickness),
		assistance:         keywordPattern(cfg.Benefit.Assistance),
		trafficInsurance:   keywordPattern(cfg.Benefit.TrafficInsurance),
		tieBreakSickness:   keywordPattern(cfg.Benefit.TieBreakSickness),
		tieBreakAssistance: keywordPattern(cfg.Benefit.TieBreakAssistance),
	}
	for _, l := range cfg.Party.Labels {
		r.labels[matchForm(l)] = true
	}
	for _, h := range cfg.Party.Headings {
		r.headings[matchForm(h)] = true
	}
	return r, nil
}

// matchForm folds case and accents and turns punctuation into single spaces
func matchForm(s string) string {
	folded := foldText(s)
	return collapseWhitespace(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded))
}

// keywordPattern builds a whole-word alternation; nil when there are no keywords
func keywordPattern(keywords []string) *regexp.Regexp {
	var alts []string
	for _, k := range keywords {
		if k = matchForm(k); k != "" {
			alts = append(alts, regexp.QuoteMeta(k))
		}
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
}

func countMatches(re *regexp.Regexp, text string) int {
	if re == nil {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}

// Recognize never fails: missing fields degrade to empty or sentinel values
func (r *Recognizer) Recognize(doc *ExtractedText) CandidateFields {
	if doc == nil {
		doc = &ExtractedText{}
	}
	full := doc.Text()
	flat := collapseWhitespace(full)

	fields := CandidateFields{PageCount: len(doc.Pages)}

	fields.CaseNumber, fields.CaseNumberPattern = recognizeCaseNumber(flat)
	fields.Confidence.CaseNumber = models.ConfidenceMatched
	if fields.CaseNumber == "" {
		fields.Confidence.CaseNumber = models.ConfidenceMissing
	}

	fields.PartyName = r.recognizePartyName(flat)
	fields.Confidence.PartyName = models.ConfidenceMatched
	if fields.PartyName == "" {
		fields.PartyName = PartyNotIdentified
		fields.Confidence.PartyName = models.ConfidenceMissing
	}

	excerpt := doc.FirstPage()
	if len(doc.Pages) <= 1 {
		excerpt = truncateRunes(full, r.cfg.FirstPageChars)
	}
	fields.BenefitType, fields.Confidence.BenefitType = r.classifyBenefit(full, excerpt)

	fields.Claimant = ExtractClaimantFields(full)
	return fields
}

// recognizeCaseNumber returns the first match of the most specific pattern
func recognizeCaseNumber(text string) (string, string) {
	for _, p := range caseNumberPatterns {
		if m := p.re.FindString(text); m != "" {
			return m, p.name
		}
	}
	return "", ""
}

// recognizePartyName looks for a capitalized run of words right before a
// party label ("JOÃO DA SILVA RÉU", "Maria Souza (autora)").
func (r *Recognizer) recognizePartyName(text string) string {
	tokens := strings.Fields(text)

	for i, tok := range tokens {
		if !r.isLabel(tok) {
			continue
		}

		var run []string
		for j := i - 1; j >= 0 && len(run) < maxNameWords; j-- {
			word := strings.Trim(tokens[j], "()[],;-–")
			if word == "" || strings.HasSuffix(word, ":") || r.isLabel(word) || r.headings[matchForm(word)] {
				break
			}
			if !isNameWord(word) && !nameConnectors[strings.ToLower(word)] {
				break
			}
			run = append([]string{word}, run...)
		}

		for len(run) > 0 && nameConnectors[strings.ToLower(run[0])] {
			run = run[1:]
		}
		if countNameWords(run) < 2 {
			continue
		}

		candidate := strings.Join(run, " ")
		if r.noise != nil && r.noise.MatchString(matchForm(candidate)) {
			continue
		}
		return truncateRunes(candidate, r.cfg.Party.MaxLength)
	}
	return ""
}

func (r *Recognizer) isLabel(token string) bool {
	t := matchForm(token)
	t = strings.TrimSuffix(t, " a") // "Autor(a)"
	return r.labels[t]
}

func isNameWord(word string) bool {
	first := true
	for _, c := range word {
		if unicode.IsDigit(c) {
			return false
		}
		if first {
			if !unicode.IsUpper(c) {
				return false
			}
			first = false
		}
	}
	return !first
}

func countNameWords(run []string) int {
	n := 0
	for _, w := range run {
		if !nameConnectors[strings.ToLower(w)] {
			n++
		}
	}
	return n
}

// classifyBenefit implements the three-way policy: a single category wins;
// both categories go to the first-page tie-break, whose own tie is reported
// as ambiguous; neither category is unidentified unless traffic-insurance
// keywords are present.
func (r *Recognizer) classifyBenefit(full, excerpt string) (models.BenefitType, models.Confidence) {
	text := matchForm(full)
	hasSickness := countMatches(r.sickness, text) > 0
	hasAssistance := countMatches(r.assistance, text) > 0

	switch {
	case hasSickness && !hasAssistance:
		return models.BenefitSickness, models.ConfidenceMatched
	case hasAssistance && !hasSickness:
		return models.BenefitAssistance, models.ConfidenceMatched
	case hasSickness && hasAssistance:
		first := matchForm(excerpt)
		sick := countMatches(r.tieBreakSickness, first)
		assist := countMatches(r.tieBreakAssistance, first)
		switch {
		case assist > sick:
			return models.BenefitAssistance, models.ConfidenceFallback
		case sick > assist:
			return models.BenefitSickness, models.ConfidenceFallback
		}
		return models.BenefitAmbiguous, models.ConfidenceAmbiguous
	}

	if countMatches(r.trafficInsurance, text) > 0 {
		return models.BenefitTrafficInsurance, models.ConfidenceMatched
	}
	return models.BenefitUnidentified, models.ConfidenceMissing
}
