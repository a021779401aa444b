package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"meu_perito_go/models"
)

const icsDateFormat = "20060102T150405"

// ExportSessionICS renders a session as an iCalendar file, one event per case
func (s *DocketService) ExportSessionICS(ctx context.Context, sessionID string) ([]byte, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListCases(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return GenerateSessionICS(session, s.locations.Name(ctx, session.LocationID), cases, s.now())
}

// GenerateSessionICS builds the calendar. Slot times are written as floating
// local times, so the calendar client shows them in the court's wall clock.
func GenerateSessionICS(session *models.Session, locationName string, cases []models.CaseRecord, now time.Time) ([]byte, error) {
	day, err := ParseDate(session.Date)
	if err != nil {
		return nil, err
	}
	dtStamp := now.UTC().Format(icsDateFormat) + "Z"

	var b strings.Builder
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//MeuPerito//Pauta//PT",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + icsEscape(fmt.Sprintf("Perícias %s - %s", session.Date, locationName)),
	}
	for _, l := range lines {
		b.WriteString(l + "\r\n")
	}

	for _, c := range cases {
		start := day.Add(time.Duration(c.TimeSlot) * time.Minute)
		end := start.Add(models.SlotStepMinutes * time.Minute)

		status := "CONFIRMED"
		if c.Status == models.CaseStatusAbsent {
			status = "CANCELLED"
		}

		description := fmt.Sprintf("Processo %s\nBenefício: %s\nSituação: %s", c.CaseNumber, c.BenefitType.Label(), c.Status.Label())
		if c.PendingConfirmation() {
			description += "\nDados extraídos aguardando conferência"
		}

		event := []string{
			"BEGIN:VEVENT",
			"UID:" + c.ID + "@meuperito",
			"DTSTAMP:" + dtStamp,
			"DTSTART:" + start.Format(icsDateFormat),
			"DTEND:" + end.Format(icsDateFormat),
			"SUMMARY:" + icsEscape(fmt.Sprintf("Perícia: %s", c.PartyName)),
			"DESCRIPTION:" + icsEscape(description),
			"LOCATION:" + icsEscape(locationName),
			"STATUS:" + status,
			"END:VEVENT",
		}
		for _, l := range event {
			b.WriteString(l + "\r\n")
		}
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String()), nil
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func icsEscape(s string) string {
	return icsEscaper.Replace(s)
}
