package models

import "time"

// CaseStatus is the lifecycle state of a case record
type CaseStatus string

// Case status constants
const (
	CaseStatusPreReport    CaseStatus = "PRE_REPORT"
	CaseStatusInProduction CaseStatus = "IN_PRODUCTION"
	CaseStatusCompleted    CaseStatus = "COMPLETED"
	CaseStatusAbsent       CaseStatus = "ABSENT"
)

var caseStatusLabels = map[CaseStatus]string{
	CaseStatusPreReport:    "Pré-laudo",
	CaseStatusInProduction: "Em produção",
	CaseStatusCompleted:    "Concluído",
	CaseStatusAbsent:       "Ausente",
}

// ParseCaseStatus accepts only the four known statuses
func ParseCaseStatus(value string) (CaseStatus, bool) {
	status := CaseStatus(value)
	_, ok := caseStatusLabels[status]
	return status, ok
}

// IsTerminal reports whether no transition may leave the status
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusCompleted || s == CaseStatusAbsent
}

// Label returns the pt-BR display name
func (s CaseStatus) Label() string {
	return caseStatusLabels[s]
}

// BenefitType is the claim category associated with a case
type BenefitType string

const (
	BenefitSickness         BenefitType = "SICKNESS"
	BenefitAssistance       BenefitType = "ASSISTANCE"
	BenefitTrafficInsurance BenefitType = "TRAFFIC_INSURANCE"
	// BenefitAmbiguous means both categories matched and the tie-break failed
	BenefitAmbiguous BenefitType = "AMBIGUOUS"
	// BenefitUnidentified means no category keyword was found
	BenefitUnidentified BenefitType = "UNIDENTIFIED"
)

var benefitLabels = map[BenefitType]string{
	BenefitSickness:         "Auxílio-doença",
	BenefitAssistance:       "BPC/LOAS",
	BenefitTrafficInsurance: "DPVAT",
	BenefitAmbiguous:        "Ambíguo (escolher manualmente)",
	BenefitUnidentified:     "Nenhum tipo identificado",
}

// ParseBenefitType accepts only known benefit types; empty maps to unidentified
func ParseBenefitType(value string) (BenefitType, bool) {
	if value == "" {
		return BenefitUnidentified, true
	}
	bt := BenefitType(value)
	_, ok := benefitLabels[bt]
	return bt, ok
}

// Label returns the pt-BR display name
func (b BenefitType) Label() string {
	return benefitLabels[b]
}

// Origin records where a case record's fields came from
type Origin string

const (
	OriginManual    Origin = "MANUAL"
	OriginExtracted Origin = "EXTRACTED"
)

// ParseOrigin defaults to manual entry when empty
func ParseOrigin(value string) (Origin, bool) {
	switch Origin(value) {
	case "", OriginManual:
		return OriginManual, true
	case OriginExtracted:
		return OriginExtracted, true
	}
	return "", false
}

// Confidence describes how a recognized field was obtained
type Confidence string

const (
	ConfidenceMatched   Confidence = "MATCHED"
	ConfidenceFallback  Confidence = "FALLBACK"
	ConfidenceAmbiguous Confidence = "AMBIGUOUS"
	ConfidenceMissing   Confidence = "MISSING"
)

// FieldConfidence holds the per-field recognition state
type FieldConfidence struct {
	CaseNumber  Confidence `json:"case_number"`
	PartyName   Confidence `json:"party_name"`
	BenefitType Confidence `json:"benefit_type"`
}

// ExtractionSnapshot preserves the values recognized from a source document
// until a human confirms or edits the record.
type ExtractionSnapshot struct {
	CaseNumber        string          `json:"case_number"`
	CaseNumberPattern string          `json:"case_number_pattern,omitempty"`
	PartyName         string          `json:"party_name"`
	BenefitType       BenefitType     `json:"benefit_type"`
	Confidence        FieldConfidence `json:"confidence"`
	SourceDocumentKey string          `json:"source_document_key,omitempty"`

	Confirmed   bool       `json:"confirmed"`
	ConfirmedBy string     `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// CaseRecord represents one party's case (processo) booked into a slot of a session
type CaseRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	CaseNumber  string      `json:"case_number"`
	PartyName   string      `json:"party_name"`
	BenefitType BenefitType `json:"benefit_type"`
	TimeSlot    Slot        `json:"time_slot"`

	Status     CaseStatus          `json:"status"`
	Origin     Origin              `json:"origin"`
	Extraction *ExtractionSnapshot `json:"extraction,omitempty"`

	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedBy       string     `json:"updated_by"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StatusChangedBy *string    `json:"status_changed_by,omitempty"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
}

// PendingConfirmation reports whether extracted values still await human review
func (c *CaseRecord) PendingConfirmation() bool {
	return c.Origin == OriginExtracted && c.Extraction != nil && !c.Extraction.Confirmed
}
