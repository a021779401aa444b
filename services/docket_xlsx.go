package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"meu_perito_go/models"

	"github.com/xuri/excelize/v2"
)

// DocketSheet is the sheet name used for export and import
const DocketSheet = "Pauta"

var docketHeaders = []string{"Horário", "Processo", "Parte", "Benefício", "Situação", "Origem"}

// ExportSessionXLSX writes the session's cases, ordered by slot, as a spreadsheet
func (s *DocketService) ExportSessionXLSX(ctx context.Context, sessionID string) (*bytes.Buffer, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListCases(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return WriteDocketXLSX(session, s.locations.Name(ctx, session.LocationID), cases)
}

// WriteDocketXLSX renders one docket. Row 1 names the session, row 3 holds
// the header and cases follow from row 4.
func WriteDocketXLSX(session *models.Session, locationName string, cases []models.CaseRecord) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DocketSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	f.SetCellValue(DocketSheet, "A1", fmt.Sprintf("Pauta de perícias - %s - %s", session.Date, locationName))
	if session.Observations != "" {
		f.SetCellValue(DocketSheet, "A2", session.Observations)
	}

	for i, h := range docketHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(DocketSheet, cell, h)
	}

	for i, c := range cases {
		row := i + 4
		values := []interface{}{
			c.TimeSlot.String(),
			c.CaseNumber,
			c.PartyName,
			c.BenefitType.Label(),
			c.Status.Label(),
			originLabel(c.Origin),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(DocketSheet, cell, v)
		}
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	f.SetCellStyle(DocketSheet, "A1", "A1", titleStyle)
	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(DocketSheet, "A3", "F3", headerStyle)
	f.SetColWidth(DocketSheet, "B", "B", 28)
	f.SetColWidth(DocketSheet, "C", "C", 40)
	f.SetColWidth(DocketSheet, "D", "E", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write excel buffer: %w", err)
	}
	return buf, nil
}

func originLabel(o models.Origin) string {
	if o == models.OriginExtracted {
		return "Extraído"
	}
	return "Manual"
}

// ImportResult summarizes a spreadsheet import
type ImportResult struct {
	TotalProcessed int      `json:"total_processed"`
	SuccessCount   int      `json:"success_count"`
	FailedCount    int      `json:"failed_count"`
	Errors         []string `json:"errors"`
}

// ImportSessionXLSX books every row of a docket sheet into the session. Rows
// are independent: a rejected row is reported and the rest continue.
func (s *DocketService) ImportSessionXLSX(ctx context.Context, sessionID string, file io.Reader, actor Actor) (*ImportResult, error) {
	if err := authorize(s.authz, actor, ActionCreateCase); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, newDocketError(ErrInvalidInput, "file", "failed to open excel file: %v", err)
	}
	defer f.Close()

	sheet := DocketSheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetList()[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, newDocketError(ErrInvalidInput, "file", "failed to read sheet %q: %v", sheet, err)
	}

	result := &ImportResult{Errors: []string{}}
	header := true
	for i, row := range rows {
		if header {
			// everything up to and including the header row is preamble
			if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), docketHeaders[0]) {
				header = false
			}
			continue
		}
		if len(row) == 0 || strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}

		result.TotalProcessed++
		input := CaseInput{
			TimeSlot:    cellAt(row, 0),
			CaseNumber:  cellAt(row, 1),
			PartyName:   cellAt(row, 2),
			BenefitType: string(benefitFromCell(cellAt(row, 3))),
			Origin:      string(models.OriginManual),
		}
		if _, err := s.AddCase(ctx, sessionID, input, actor); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", i+1, ErrorCode(err)))
			continue
		}
		result.SuccessCount++
	}

	if header {
		return nil, newDocketError(ErrInvalidInput, "file", "header row %q not found", docketHeaders[0])
	}

	s.log.Info().
		Str("session_id", sessionID).
		Int("imported", result.SuccessCount).
		Int("failed", result.FailedCount).
		Str("actor", actor.ID).
		Msg("docket imported")
	return result, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// benefitFromCell accepts either the stored code or the display label
func benefitFromCell(value string) models.BenefitType {
	if bt, ok := models.ParseBenefitType(strings.ToUpper(value)); ok {
		return bt
	}
	folded := foldText(value)
	for _, bt := range []models.BenefitType{
		models.BenefitSickness,
		models.BenefitAssistance,
		models.BenefitTrafficInsurance,
		models.BenefitAmbiguous,
		models.BenefitUnidentified,
	} {
		if foldText(bt.Label()) == folded {
			return bt
		}
	}
	return models.BenefitUnidentified
}
