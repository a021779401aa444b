package services

import (
	"testing"

	"meu_perito_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []models.CaseStatus{
		models.CaseStatusPreReport,
		models.CaseStatusInProduction,
		models.CaseStatusCompleted,
		models.CaseStatusAbsent,
	}
	allowed := map[[2]models.CaseStatus]bool{
		{models.CaseStatusPreReport, models.CaseStatusInProduction}: true,
		{models.CaseStatusPreReport, models.CaseStatusCompleted}:    true,
		{models.CaseStatusPreReport, models.CaseStatusAbsent}:       true,
		{models.CaseStatusInProduction, models.CaseStatusCompleted}: true,
		{models.CaseStatusInProduction, models.CaseStatusAbsent}:    true,
		{models.CaseStatusCompleted, models.CaseStatusCompleted}:    true,
		{models.CaseStatusAbsent, models.CaseStatusAbsent}:          true,
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, allowed[[2]models.CaseStatus{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestApplyTransition(t *testing.T) {
	t.Run("entering absent flags the absence", func(t *testing.T) {
		result, err := ApplyTransition(models.CaseStatusInProduction, models.CaseStatusAbsent)
		require.NoError(t, err)
		assert.True(t, result.Changed)
		assert.True(t, result.AbsenceRecorded)
	})

	t.Run("terminal re-entry is a no-op", func(t *testing.T) {
		result, err := ApplyTransition(models.CaseStatusCompleted, models.CaseStatusCompleted)
		require.NoError(t, err)
		assert.False(t, result.Changed)
		assert.False(t, result.AbsenceRecorded)
	})

	t.Run("leaving a terminal state fails", func(t *testing.T) {
		_, err := ApplyTransition(models.CaseStatusAbsent, models.CaseStatusCompleted)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = ApplyTransition(models.CaseStatusCompleted, models.CaseStatusPreReport)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown target status", func(t *testing.T) {
		_, err := ApplyTransition(models.CaseStatusPreReport, models.CaseStatus("ARCHIVED"))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, CodeInvalidTransition, ErrorCode(err))
	})
}
