package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"meu_perito_go/models"
	"meu_perito_go/services"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	perito     = services.Actor{ID: "perito-1", Role: services.RolePerito}
	assistente = services.Actor{ID: "assistente-1", Role: services.RoleAssistente}
	leitor     = services.Actor{ID: "leitor-1", Role: services.RoleLeitor}
	anonymous  = services.Actor{}
)

func caseBody(slot string) map[string]interface{} {
	return map[string]interface{}{
		"case_number":  "0001234-11.2024.4.05.8102",
		"party_name":   "John Doe",
		"benefit_type": "SICKNESS",
		"time_slot":    slot,
	}
}

// onePagePDF builds a minimal single-page PDF showing lines of text
func onePagePDF(lines ...string) []byte {
	var content strings.Builder
	content.WriteString("BT /F1 12 Tf 72 720 Td")
	for i, line := range lines {
		if i > 0 {
			content.WriteString(" 0 -14 Td")
		}
		fmt.Fprintf(&content, " (%s) Tj", line)
	}
	content.WriteString(" ET")
	stream := content.String()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func TestDocketScenarioOverHTTP(t *testing.T) {
	s := setupServer(t, 10)

	rec := s.do(t, http.MethodPost, "/api/locations", perito, map[string]string{"name": "17th Federal Court"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var location models.Location
	decode(t, rec, &location)

	rec = s.do(t, http.MethodPost, "/api/sessions", perito, map[string]string{"date": "2025-03-10", "location_id": location.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session models.Session
	decode(t, rec, &session)

	casesPath := "/api/sessions/" + session.ID + "/cases"
	rec = s.do(t, http.MethodPost, casesPath, perito, caseBody("09:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first models.CaseRecord
	decode(t, rec, &first)
	assert.Equal(t, "09:00", first.TimeSlot.String())

	rec = s.do(t, http.MethodPost, casesPath, perito, caseBody("09:00"))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := errorCode(t, rec)
	assert.Equal(t, services.CodeSlotTaken, body.Code)
	assert.Equal(t, "time_slot", body.Field)
	assert.Contains(t, body.Message, "Já existe um processo neste horário")

	rec = s.do(t, http.MethodPost, casesPath, perito, caseBody("09:15"))
	require.Equal(t, http.StatusCreated, rec.Code)

	statusPath := "/api/cases/" + first.ID + "/status"
	rec = s.do(t, http.MethodPut, statusPath, perito, map[string]string{"status": "ABSENT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.TransitionResult
	decode(t, rec, &result)
	assert.True(t, result.AbsenceRecorded)
	require.NotNil(t, result.AbsenceNotice)
	assert.Equal(t, "17th Federal Court", result.AbsenceNotice.LocationName)

	rec = s.do(t, http.MethodPut, statusPath, perito, map[string]string{"status": "COMPLETED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, services.CodeInvalidTransition, errorCode(t, rec).Code)

	rec = s.do(t, http.MethodPut, statusPath, perito, map[string]string{"status": "ABSENT"})
	assert.Equal(t, http.StatusOK, rec.Code, "re-entering a terminal state is a no-op")

	rec = s.do(t, http.MethodGet, casesPath, anonymous, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cases []models.CaseRecord
	decode(t, rec, &cases)
	require.Len(t, cases, 2)
	assert.Equal(t, "09:00", cases[0].TimeSlot.String())
	assert.Equal(t, "09:15", cases[1].TimeSlot.String())

	t.Run("audit trail", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/cases/"+first.ID+"/audit", anonymous, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var logs []models.AuditLog
		decode(t, rec, &logs)

		actions := map[models.AuditAction]int{}
		for _, l := range logs {
			actions[l.Action]++
			assert.Equal(t, perito.ID, l.ActorID)
		}
		assert.Equal(t, map[models.AuditAction]int{
			models.AuditActionCreate:        1,
			models.AuditActionStatusChange:  1,
			models.AuditActionAbsenceNotice: 1,
		}, actions)
	})
}

func TestErrorsAreLocalized(t *testing.T) {
	s := setupServer(t, 10)

	rec := s.do(t, http.MethodPost, "/api/cases?lang=en", perito, map[string]interface{}{
		"date":        "2025-03-10",
		"location_id": "jf-17-vara",
		"case_number": "0001234-11.2024.4.05.8102",
		"party_name":  "",
		"time_slot":   "09:00",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := errorCode(t, rec)
	assert.Equal(t, services.CodeMissingRequiredField, body.Code)
	assert.Equal(t, "Fill in the required field: party name.", body.Message)

	tests := []struct {
		slot string
		code string
	}{
		{"07:45", services.CodeInvalidSlot},
		{"17:00", services.CodeInvalidSlot},
		{"09:07", services.CodeInvalidSlot},
	}
	for _, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			b := caseBody(tt.slot)
			b["date"] = "2025-03-10"
			b["location_id"] = "jf-17-vara"
			rec := s.do(t, http.MethodPost, "/api/cases?lang=en", perito, b)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			body := errorCode(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.True(t, strings.HasPrefix(body.Message, "Invalid time slot"))
		})
	}

	rec = s.do(t, http.MethodPost, "/api/cases", perito, map[string]interface{}{
		"date": "2025-03-10", "location_id": "nowhere", "case_number": "1", "party_name": "A B", "time_slot": "09:00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, services.CodeUnknownLocation, errorCode(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/cases/missing", anonymous, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, services.CodeNotFound, errorCode(t, rec).Code)
}

func TestCapabilitiesOverHTTP(t *testing.T) {
	s := setupServer(t, 10)

	b := caseBody("10:00")
	b["date"] = "2025-03-10"
	b["location_id"] = "jf-25-vara"

	rec := s.do(t, http.MethodPost, "/api/cases", anonymous, b)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/cases", leitor, b)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, services.CodeForbidden, errorCode(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/cases", assistente, b)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var booked struct {
		Session models.Session    `json:"session"`
		Case    models.CaseRecord `json:"case"`
	}
	decode(t, rec, &booked)
	assert.Equal(t, "jf-25-vara", booked.Session.LocationID)

	rec = s.do(t, http.MethodDelete, "/api/cases/"+booked.Case.ID, assistente, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/cases/"+booked.Case.ID, perito, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/sessions/"+booked.Session.ID, perito, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/sessions/"+booked.Session.ID, anonymous, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocationsOverHTTP(t *testing.T) {
	s := setupServer(t, 10)

	rec := s.do(t, http.MethodGet, "/api/locations", anonymous, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var locations []models.Location
	decode(t, rec, &locations)
	assert.Len(t, locations, len(models.FederalLocations))

	rec = s.do(t, http.MethodDelete, "/api/locations/jf-17-vara", perito, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, services.CodeFixedLocation, errorCode(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/locations", perito, map[string]string{"name": "17ª vara federal"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, services.CodeDuplicateLocation, errorCode(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/locations", assistente, map[string]string{"name": "Fórum de Crato"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/locations", perito, map[string]string{"name": "Fórum de Crato"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var added models.Location
	decode(t, rec, &added)

	rec = s.do(t, http.MethodDelete, "/api/locations/"+added.ID, perito, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCalendarOverHTTP(t *testing.T) {
	s := setupServer(t, 10)

	for _, date := range []string{"2025-03-10", "2025-03-21", "2025-04-01"} {
		rec := s.do(t, http.MethodPost, "/api/sessions", perito, map[string]string{"date": date, "location_id": "jf-15-vara"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/sessions", perito, map[string]string{"date": "2025-03-10", "location_id": "jf-23-vara"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/calendar?year=2025&month=3", anonymous, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var calendar struct {
		Dates []string `json:"dates"`
	}
	decode(t, rec, &calendar)
	assert.Equal(t, []string{"2025-03-10", "2025-03-21"}, calendar.Dates)

	rec = s.do(t, http.MethodGet, "/api/calendar?year=2025&month=13", anonymous, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/sessions?date=2025-03-10", anonymous, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []models.Session
	decode(t, rec, &sessions)
	assert.Len(t, sessions, 2)

	rec = s.do(t, http.MethodGet, "/api/sessions", anonymous, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditAndConfirmOverHTTP(t *testing.T) {
	s := setupServer(t, 10)

	b := caseBody("13:00")
	b["date"] = "2025-03-10"
	b["location_id"] = "jf-17-vara"
	b["origin"] = "EXTRACTED"
	rec := s.do(t, http.MethodPost, "/api/cases", assistente, b)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var booked struct {
		Case models.CaseRecord `json:"case"`
	}
	decode(t, rec, &booked)
	assert.True(t, booked.Case.PendingConfirmation())

	rec = s.do(t, http.MethodPatch, "/api/cases/"+booked.Case.ID, assistente, map[string]string{"time_slot": "13:15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var edited models.CaseRecord
	decode(t, rec, &edited)
	assert.Equal(t, "13:15", edited.TimeSlot.String())
	assert.False(t, edited.PendingConfirmation())

	rec = s.do(t, http.MethodPost, "/api/cases/"+booked.Case.ID+"/confirm", assistente, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/cases/"+booked.Case.ID, assistente, map[string]string{"time_slot": "12:07"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/cases/"+booked.Case.ID+"/status", assistente, map[string]string{"status": "DONE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractOverHTTP(t *testing.T) {
	s := setupServer(t, 2)
	doc := onePagePDF("Processo 0001234-11.2024.4.05.8102", "JOHN DOE REU", "Pedido de LOAS")

	rec := s.upload(t, "/api/extract", "document", "processo.pdf", doc, assistente)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.ExtractionResult
	decode(t, rec, &result)
	assert.Equal(t, "0001234-11.2024.4.05.8102", result.Fields.CaseNumber)
	assert.Equal(t, "JOHN DOE", result.Fields.PartyName)
	assert.Equal(t, models.BenefitAssistance, result.Fields.BenefitType)
	assert.NotEmpty(t, result.DocumentKey)

	b := caseBody("10:00")
	b["date"] = "2025-03-10"
	b["location_id"] = "jf-17-vara"
	b["origin"] = "EXTRACTED"
	b["extraction"] = result.Snapshot
	rec = s.do(t, http.MethodPost, "/api/cases", assistente, b)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var booked struct {
		Case models.CaseRecord `json:"case"`
	}
	decode(t, rec, &booked)

	rec = s.do(t, http.MethodGet, "/api/cases/"+booked.Case.ID+"/document", leitor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.AllowedMimeType, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, doc, rec.Body.Bytes())

	rec = s.do(t, http.MethodDelete, "/api/cases/"+booked.Case.ID, perito, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/cases/"+booked.Case.ID+"/document", perito, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.upload(t, "/api/extract", "document", "processo.pdf", []byte("%PDF-1.4 broken"), assistente)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, services.CodeExtractionFailed, errorCode(t, rec).Code)

	rec = s.upload(t, "/api/extract", "document", "processo.pdf", doc, assistente)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	throttled := errorCode(t, rec)
	assert.Equal(t, services.CodeRateLimited, throttled.Code)
	assert.Equal(t, "Muitos documentos enviados. Aguarde um minuto e tente novamente.", throttled.Message)

	rec = s.upload(t, "/api/extract", "document", "processo.docx", doc, perito)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, services.CodeInvalidInput, errorCode(t, rec).Code)

	rec = s.upload(t, "/api/extract", "arquivo", "processo.pdf", doc, perito)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportImportOverHTTP(t *testing.T) {
	s := setupServer(t, 10)

	b := caseBody("08:00")
	b["date"] = "2025-03-10"
	b["location_id"] = "jf-27-vara"
	rec := s.do(t, http.MethodPost, "/api/cases", perito, b)
	require.Equal(t, http.StatusCreated, rec.Code)
	var booked struct {
		Session models.Session `json:"session"`
	}
	decode(t, rec, &booked)

	rec = s.do(t, http.MethodGet, "/api/sessions/"+booked.Session.ID+"/export", perito, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pauta-")
	sheet := rec.Body.Bytes()

	rec = s.do(t, http.MethodPost, "/api/sessions", perito, map[string]string{"date": "2025-03-11", "location_id": "jf-27-vara"})
	require.Equal(t, http.StatusOK, rec.Code)
	var target models.Session
	decode(t, rec, &target)

	rec = s.upload(t, "/api/sessions/"+target.ID+"/import", "file", "pauta.xlsx", sheet, perito)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.ImportResult
	decode(t, rec, &result)
	assert.Equal(t, 1, result.SuccessCount)

	rec = s.do(t, http.MethodGet, "/api/sessions/"+booked.Session.ID+"/calendar.ics", perito, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/calendar")
	assert.Contains(t, rec.Body.String(), "DTSTART:20250310T080000")

	rec = s.do(t, http.MethodGet, "/api/sessions/missing/export", perito, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
