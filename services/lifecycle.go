package services

import "meu_perito_go/models"

// allowedTransitions lists every permitted status change
var allowedTransitions = map[models.CaseStatus][]models.CaseStatus{
	models.CaseStatusPreReport: {
		models.CaseStatusInProduction,
		models.CaseStatusCompleted,
		models.CaseStatusAbsent,
	},
	models.CaseStatusInProduction: {
		models.CaseStatusCompleted,
		models.CaseStatusAbsent,
	},
}

// TransitionResult describes the outcome of a status change request
type TransitionResult struct {
	From    models.CaseStatus `json:"from"`
	To      models.CaseStatus `json:"to"`
	Changed bool              `json:"changed"`
	// AbsenceRecorded is set only when this call moved the case into Absent
	AbsenceRecorded bool           `json:"absence_recorded"`
	AbsenceNotice   *AbsenceNotice `json:"absence_notice,omitempty"`
}

// AbsenceNotice holds what an absence certificate prints about the case
type AbsenceNotice struct {
	CaseID       string             `json:"case_id"`
	CaseNumber   string             `json:"case_number"`
	PartyName    string             `json:"party_name"`
	BenefitType  models.BenefitType `json:"benefit_type"`
	TimeSlot     models.Slot        `json:"time_slot"`
	Date         string             `json:"date"`
	LocationID   string             `json:"location_id"`
	LocationName string             `json:"location_name"`
}

// CanTransition reports whether from -> to is permitted. Re-entering the
// current terminal state is accepted as an idempotent no-op.
func CanTransition(from, to models.CaseStatus) bool {
	if from == to {
		return from.IsTerminal()
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ApplyTransition validates a transition without side effects
func ApplyTransition(from, to models.CaseStatus) (TransitionResult, error) {
	if _, ok := models.ParseCaseStatus(string(to)); !ok {
		return TransitionResult{}, newDocketError(ErrInvalidTransition, "status", "unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return TransitionResult{}, newDocketError(ErrInvalidTransition, "status", "cannot move case from %s to %s", from, to)
	}

	changed := from != to
	return TransitionResult{
		From:            from,
		To:              to,
		Changed:         changed,
		AbsenceRecorded: changed && to == models.CaseStatusAbsent,
	}, nil
}
