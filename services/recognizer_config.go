package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RecognizerConfig holds the keyword data of the field recognizer. Every list
// is matched against case-folded, accent-free text.
type RecognizerConfig struct {
	Benefit BenefitKeywords `yaml:"benefit"`
	Party   PartyKeywords   `yaml:"party"`
	// FirstPageChars bounds the tie-break excerpt when the document has a
	// single page (or came without page structure)
	FirstPageChars int `yaml:"first_page_chars"`
}

// BenefitKeywords are the disjoint keyword sets per benefit category
type BenefitKeywords struct {
	Sickness           []string `yaml:"sickness"`
	Assistance         []string `yaml:"assistance"`
	TrafficInsurance   []string `yaml:"traffic_insurance"`
	TieBreakSickness   []string `yaml:"tiebreak_sickness"`
	TieBreakAssistance []string `yaml:"tiebreak_assistance"`
}

// PartyKeywords drive party-name recognition. Headings are document heading
// words ("PROCEDIMENTO COMUM CÍVEL") that end the backward name run.
type PartyKeywords struct {
	Labels    []string `yaml:"labels"`
	Noise     []string `yaml:"noise"`
	Headings  []string `yaml:"headings"`
	MaxLength int      `yaml:"max_length"`
}

// DefaultRecognizerConfig returns the built-in keyword data
func DefaultRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		Benefit: BenefitKeywords{
			Sickness: []string{
				"auxilio doenca",
				"auxilio por incapacidade temporaria",
				"incapacidade temporaria",
				"aposentadoria por invalidez",
				"aposentadoria por incapacidade permanente",
				"beneficio por incapacidade",
				"restabelecimento de auxilio",
			},
			Assistance: []string{
				"loas",
				"bpc",
				"beneficio de prestacao continuada",
				"amparo assistencial",
				"beneficio assistencial",
				"lei organica da assistencia social",
			},
			TrafficInsurance: []string{
				"dpvat",
				"seguro obrigatorio",
				"acidente de transito",
			},
			TieBreakSickness: []string{
				"auxilio doenca",
				"incapacidade laborativa",
				"incapacidade laboral",
				"segurado",
				"qualidade de segurado",
				"carencia",
			},
			TieBreakAssistance: []string{
				"loas",
				"assistencial",
				"bpc",
				"deficiencia",
				"pessoa com deficiencia",
				"idoso",
				"miserabilidade",
				"renda per capita",
			},
		},
		Party: PartyKeywords{
			Labels: []string{"reu", "autor", "autora", "requerente", "requerido", "requerida"},
			Noise: []string{
				"advogado",
				"advogada",
				"procurador",
				"procuradora",
				"oab",
				"data de entrada",
				"parte",
				"polo",
				"instituto nacional",
				"inss",
			},
			Headings: []string{
				"procedimento", "comum", "civel", "cumprimento", "sentenca",
				"juizado", "especial", "federal", "vara", "justica", "secao",
				"subsecao", "judiciaria", "tribunal", "regional", "poder",
				"judiciario", "processo", "classe", "assunto", "acao",
				"previdenciario", "previdenciaria", "peticao", "inicial",
			},
			MaxLength: 50,
		},
		FirstPageChars: 3000,
	}
}

// LoadRecognizerConfig reads a YAML file over the defaults. Lists present in
// the file replace the default list; absent ones keep it.
func LoadRecognizerConfig(path string) (RecognizerConfig, error) {
	cfg := DefaultRecognizerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read recognizer config: %w", err)
	}

	var file RecognizerConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse recognizer config yaml: %w", err)
	}

	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	override(&cfg.Benefit.Sickness, file.Benefit.Sickness)
	override(&cfg.Benefit.Assistance, file.Benefit.Assistance)
	override(&cfg.Benefit.TrafficInsurance, file.Benefit.TrafficInsurance)
	override(&cfg.Benefit.TieBreakSickness, file.Benefit.TieBreakSickness)
	override(&cfg.Benefit.TieBreakAssistance, file.Benefit.TieBreakAssistance)
	override(&cfg.Party.Labels, file.Party.Labels)
	override(&cfg.Party.Noise, file.Party.Noise)
	override(&cfg.Party.Headings, file.Party.Headings)
	if file.Party.MaxLength > 0 {
		cfg.Party.MaxLength = file.Party.MaxLength
	}
	if file.FirstPageChars > 0 {
		cfg.FirstPageChars = file.FirstPageChars
	}
	return cfg, nil
}
