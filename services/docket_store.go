package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"meu_perito_go/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CaseInput is the payload for booking a case into a session
type CaseInput struct {
	CaseNumber  string                     `json:"case_number"`
	PartyName   string                     `json:"party_name"`
	BenefitType string                     `json:"benefit_type"`
	TimeSlot    string                     `json:"time_slot"`
	Origin      string                     `json:"origin"`
	Extraction  *models.ExtractionSnapshot `json:"extraction,omitempty"`
}

// CaseEdit carries direct field edits; nil fields are left untouched
type CaseEdit struct {
	CaseNumber  *string `json:"case_number,omitempty"`
	PartyName   *string `json:"party_name,omitempty"`
	BenefitType *string `json:"benefit_type,omitempty"`
	TimeSlot    *string `json:"time_slot,omitempty"`
}

// keyedMutex hands out one mutex per key and forgets it once unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// DocketStore owns the Location x Date -> Session and Session -> Case Record
// graph. Mutations of one session are serialized; different sessions proceed
// in parallel. Reads load a single stored value and never see a torn list.
type DocketStore struct {
	kv        KVStore
	locations *LocationRegistry
	log       zerolog.Logger
	locks     *keyedMutex
	now       func() time.Time
}

// NewDocketStore creates a store over kv. The session lock is process-local,
// so a KVStore shared by several processes needs a single writer.
func NewDocketStore(kv KVStore, locations *LocationRegistry, log zerolog.Logger) *DocketStore {
	return &DocketStore{
		kv:        kv,
		locations: locations,
		log:       log.With().Str("component", "docket_store").Logger(),
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return newDocketError(ErrMissingRequiredField, "actor", "actor is required")
	}
	return nil
}

func validateDate(date string) error {
	_, err := ParseDate(date)
	return err
}

// UpsertSession creates the session for (date, locationID) or returns the existing one
func (s *DocketStore) UpsertSession(ctx context.Context, date, locationID, observations, actor string) (*models.Session, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateDate(date); err != nil {
		return nil, err
	}
	if _, err := s.locations.Get(ctx, locationID); err != nil {
		return nil, err
	}

	key := models.SessionKey{Date: date, LocationID: locationID}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	var existing models.Session
	found, err := getJSON(ctx, s.kv, BucketSessions, key.String(), &existing)
	if err != nil {
		return nil, err
	}
	if found {
		return &existing, nil
	}

	now := s.now()
	session := models.Session{
		ID:           uuid.New().String(),
		Date:         date,
		LocationID:   locationID,
		Observations: strings.TrimSpace(observations),
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedBy:    actor,
		UpdatedAt:    now,
	}

	if err := putJSON(ctx, s.kv, BucketSessions, key.String(), session); err != nil {
		return nil, err
	}
	if err := s.kv.Put(ctx, BucketSessionKeys, session.ID, []byte(key.String())); err != nil {
		return nil, fmt.Errorf("failed to index session: %w", err)
	}
	if err := putJSON(ctx, s.kv, BucketSessionCases, session.ID, []models.CaseRecord{}); err != nil {
		return nil, err
	}
	if err := s.addSessionDate(ctx, date, session.ID); err != nil {
		return nil, err
	}

	s.log.Info().Str("session_id", session.ID).Str("key", key.String()).Str("actor", actor).Msg("session created")
	return &session, nil
}

func (s *DocketStore) addSessionDate(ctx context.Context, date, sessionID string) error {
	unlock := s.locks.Lock("date:" + date)
	defer unlock()

	var ids []string
	if _, err := getJSON(ctx, s.kv, BucketSessionDates, date, &ids); err != nil {
		return err
	}
	ids = append(ids, sessionID)
	return putJSON(ctx, s.kv, BucketSessionDates, date, ids)
}

func (s *DocketStore) removeSessionDate(ctx context.Context, date, sessionID string) error {
	unlock := s.locks.Lock("date:" + date)
	defer unlock()

	var ids []string
	if _, err := getJSON(ctx, s.kv, BucketSessionDates, date, &ids); err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		return s.kv.Delete(ctx, BucketSessionDates, date)
	}
	return putJSON(ctx, s.kv, BucketSessionDates, date, kept)
}

func (s *DocketStore) sessionKey(ctx context.Context, sessionID string) (models.SessionKey, error) {
	raw, err := s.kv.Get(ctx, BucketSessionKeys, sessionID)
	if errors.Is(err, ErrKeyNotFound) {
		return models.SessionKey{}, newDocketError(ErrNotFound, "session_id", "session %q not found", sessionID)
	}
	if err != nil {
		return models.SessionKey{}, fmt.Errorf("failed to resolve session: %w", err)
	}
	return models.ParseSessionKey(string(raw))
}

// lockSession resolves sessionID, takes its lock and re-reads the session.
// The returned unlock must be called when done.
func (s *DocketStore) lockSession(ctx context.Context, sessionID string) (*models.Session, func(), error) {
	key, err := s.sessionKey(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	unlock := s.locks.Lock(key.String())

	var session models.Session
	found, err := getJSON(ctx, s.kv, BucketSessions, key.String(), &session)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if !found || session.ID != sessionID {
		unlock()
		return nil, nil, newDocketError(ErrNotFound, "session_id", "session %q not found", sessionID)
	}
	return &session, unlock, nil
}

// lockCase resolves the owning session of caseID and locks it
func (s *DocketStore) lockCase(ctx context.Context, caseID string) (*models.Session, []models.CaseRecord, int, func(), error) {
	raw, err := s.kv.Get(ctx, BucketCaseIndex, caseID)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil, 0, nil, newDocketError(ErrNotFound, "case_id", "case %q not found", caseID)
	}
	if err != nil {
		return nil, nil, 0, nil, fmt.Errorf("failed to resolve case: %w", err)
	}

	session, unlock, err := s.lockSession(ctx, string(raw))
	if err != nil {
		if ErrorCode(err) == CodeNotFound {
			return nil, nil, 0, nil, newDocketError(ErrNotFound, "case_id", "case %q not found", caseID)
		}
		return nil, nil, 0, nil, err
	}

	cases, err := s.loadCases(ctx, session.ID)
	if err != nil {
		unlock()
		return nil, nil, 0, nil, err
	}
	for i := range cases {
		if cases[i].ID == caseID {
			return session, cases, i, unlock, nil
		}
	}
	unlock()
	return nil, nil, 0, nil, newDocketError(ErrNotFound, "case_id", "case %q not found", caseID)
}

func (s *DocketStore) loadCases(ctx context.Context, sessionID string) ([]models.CaseRecord, error) {
	var cases []models.CaseRecord
	if _, err := getJSON(ctx, s.kv, BucketSessionCases, sessionID, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func (s *DocketStore) saveCases(ctx context.Context, sessionID string, cases []models.CaseRecord) error {
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].TimeSlot < cases[j].TimeSlot })
	return putJSON(ctx, s.kv, BucketSessionCases, sessionID, cases)
}

func slotTaken(cases []models.CaseRecord, slot models.Slot, exceptID string) bool {
	for _, c := range cases {
		if c.TimeSlot == slot && c.ID != exceptID {
			return true
		}
	}
	return false
}

// validateCaseInput checks required fields, grid and enums before any lock is taken
func validateCaseInput(input CaseInput) (models.CaseRecord, error) {
	record := models.CaseRecord{
		CaseNumber: strings.TrimSpace(input.CaseNumber),
		PartyName:  collapseWhitespace(input.PartyName),
	}
	if record.CaseNumber == "" {
		return record, newDocketError(ErrMissingRequiredField, "case_number", "case number is required")
	}
	if record.PartyName == "" {
		return record, newDocketError(ErrMissingRequiredField, "party_name", "party name is required")
	}

	slot, err := models.ParseSlot(strings.TrimSpace(input.TimeSlot))
	if err != nil {
		return record, newDocketError(ErrInvalidSlot, "time_slot", "%s", err.Error())
	}
	record.TimeSlot = slot

	benefit, ok := models.ParseBenefitType(input.BenefitType)
	if !ok {
		return record, newDocketError(ErrInvalidInput, "benefit_type", "unknown benefit type %q", input.BenefitType)
	}
	record.BenefitType = benefit

	origin, ok := models.ParseOrigin(input.Origin)
	if !ok {
		return record, newDocketError(ErrInvalidInput, "origin", "unknown origin %q", input.Origin)
	}
	record.Origin = origin

	if origin == models.OriginExtracted {
		snapshot := models.ExtractionSnapshot{
			CaseNumber:  record.CaseNumber,
			PartyName:   record.PartyName,
			BenefitType: record.BenefitType,
		}
		if input.Extraction != nil {
			snapshot = *input.Extraction
			snapshot.Confirmed = false
			snapshot.ConfirmedBy = ""
			snapshot.ConfirmedAt = nil
		}
		record.Extraction = &snapshot
	}
	return record, nil
}

// AddCase books a case into the session. The slot check and the write happen
// under the session lock.
func (s *DocketStore) AddCase(ctx context.Context, sessionID string, input CaseInput, actor string) (*models.CaseRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	record, err := validateCaseInput(input)
	if err != nil {
		return nil, err
	}

	session, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cases, err := s.loadCases(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if slotTaken(cases, record.TimeSlot, "") {
		return nil, newDocketError(ErrSlotTaken, "time_slot", "slot %s is already booked in this session", record.TimeSlot)
	}

	now := s.now()
	record.ID = uuid.New().String()
	record.SessionID = session.ID
	record.Status = models.CaseStatusPreReport
	record.CreatedBy = actor
	record.CreatedAt = now
	record.UpdatedBy = actor
	record.UpdatedAt = now

	// index first: lockCase ignores an index entry whose case is not listed
	if err := s.kv.Put(ctx, BucketCaseIndex, record.ID, []byte(session.ID)); err != nil {
		return nil, fmt.Errorf("failed to index case: %w", err)
	}
	cases = append(cases, record)
	if err := s.saveCases(ctx, session.ID, cases); err != nil {
		if delErr := s.kv.Delete(ctx, BucketCaseIndex, record.ID); delErr != nil {
			s.log.Warn().Err(delErr).Str("case_id", record.ID).Msg("failed to drop index of unsaved case")
		}
		return nil, err
	}

	s.log.Info().
		Str("session_id", session.ID).
		Str("case_id", record.ID).
		Str("slot", record.TimeSlot.String()).
		Str("actor", actor).
		Msg("case added")
	return &record, nil
}

// UpdateCaseStatus moves a case through the lifecycle
func (s *DocketStore) UpdateCaseStatus(ctx context.Context, caseID string, status models.CaseStatus, actor string) (TransitionResult, error) {
	if err := requireActor(actor); err != nil {
		return TransitionResult{}, err
	}

	session, cases, idx, unlock, err := s.lockCase(ctx, caseID)
	if err != nil {
		return TransitionResult{}, err
	}
	defer unlock()

	record := &cases[idx]
	result, err := ApplyTransition(record.Status, status)
	if err != nil {
		return TransitionResult{}, err
	}
	if !result.Changed {
		return result, nil
	}

	now := s.now()
	record.Status = status
	record.StatusChangedBy = &actor
	record.StatusChangedAt = &now
	record.UpdatedBy = actor
	record.UpdatedAt = now

	if err := s.saveCases(ctx, session.ID, cases); err != nil {
		return TransitionResult{}, err
	}

	if result.AbsenceRecorded {
		result.AbsenceNotice = &AbsenceNotice{
			CaseID:       record.ID,
			CaseNumber:   record.CaseNumber,
			PartyName:    record.PartyName,
			BenefitType:  record.BenefitType,
			TimeSlot:     record.TimeSlot,
			Date:         session.Date,
			LocationID:   session.LocationID,
			LocationName: s.locations.Name(ctx, session.LocationID),
		}
	}

	s.log.Info().
		Str("case_id", caseID).
		Str("from", string(result.From)).
		Str("to", string(result.To)).
		Str("actor", actor).
		Msg("case status changed")
	return result, nil
}

// UpdateCaseFields applies direct edits. Editing an extracted record counts
// as confirming it; the stored extraction snapshot itself is never changed.
func (s *DocketStore) UpdateCaseFields(ctx context.Context, caseID string, edit CaseEdit, actor string) (*models.CaseRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	session, cases, idx, unlock, err := s.lockCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated := cases[idx]
	if edit.CaseNumber != nil {
		updated.CaseNumber = strings.TrimSpace(*edit.CaseNumber)
		if updated.CaseNumber == "" {
			return nil, newDocketError(ErrMissingRequiredField, "case_number", "case number is required")
		}
	}
	if edit.PartyName != nil {
		updated.PartyName = collapseWhitespace(*edit.PartyName)
		if updated.PartyName == "" {
			return nil, newDocketError(ErrMissingRequiredField, "party_name", "party name is required")
		}
	}
	if edit.BenefitType != nil {
		benefit, ok := models.ParseBenefitType(*edit.BenefitType)
		if !ok {
			return nil, newDocketError(ErrInvalidInput, "benefit_type", "unknown benefit type %q", *edit.BenefitType)
		}
		updated.BenefitType = benefit
	}
	if edit.TimeSlot != nil {
		slot, err := models.ParseSlot(strings.TrimSpace(*edit.TimeSlot))
		if err != nil {
			return nil, newDocketError(ErrInvalidSlot, "time_slot", "%s", err.Error())
		}
		if slotTaken(cases, slot, updated.ID) {
			return nil, newDocketError(ErrSlotTaken, "time_slot", "slot %s is already booked in this session", slot)
		}
		updated.TimeSlot = slot
	}

	now := s.now()
	updated.UpdatedBy = actor
	updated.UpdatedAt = now
	if updated.PendingConfirmation() {
		snapshot := *updated.Extraction
		snapshot.Confirmed = true
		snapshot.ConfirmedBy = actor
		snapshot.ConfirmedAt = &now
		updated.Extraction = &snapshot
	}

	cases[idx] = updated
	if err := s.saveCases(ctx, session.ID, cases); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ConfirmCase accepts the extracted values of a record as reviewed
func (s *DocketStore) ConfirmCase(ctx context.Context, caseID, actor string) (*models.CaseRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	session, cases, idx, unlock, err := s.lockCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record := cases[idx]
	if !record.PendingConfirmation() {
		return &record, nil
	}

	now := s.now()
	snapshot := *record.Extraction
	snapshot.Confirmed = true
	snapshot.ConfirmedBy = actor
	snapshot.ConfirmedAt = &now
	record.Extraction = &snapshot
	record.UpdatedBy = actor
	record.UpdatedAt = now

	cases[idx] = record
	if err := s.saveCases(ctx, session.ID, cases); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteCase removes a case from its session
func (s *DocketStore) DeleteCase(ctx context.Context, caseID, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	session, cases, idx, unlock, err := s.lockCase(ctx, caseID)
	if err != nil {
		return err
	}
	defer unlock()

	cases = append(cases[:idx], cases[idx+1:]...)
	if err := s.saveCases(ctx, session.ID, cases); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, BucketCaseIndex, caseID); err != nil {
		return fmt.Errorf("failed to unindex case: %w", err)
	}

	s.log.Info().Str("case_id", caseID).Str("actor", actor).Msg("case deleted")
	return nil
}

// DeleteSession removes a session and every case booked into it
func (s *DocketStore) DeleteSession(ctx context.Context, sessionID, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	session, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	cases, err := s.loadCases(ctx, session.ID)
	if err != nil {
		return err
	}
	// session entries go first; leftover index entries then point nowhere
	key := session.Key()
	for _, del := range []struct{ bucket, key string }{
		{BucketSessions, key.String()},
		{BucketSessionKeys, session.ID},
		{BucketSessionCases, session.ID},
	} {
		if err := s.kv.Delete(ctx, del.bucket, del.key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", del.bucket, err)
		}
	}
	if err := s.removeSessionDate(ctx, session.Date, session.ID); err != nil {
		return err
	}
	for _, c := range cases {
		if err := s.kv.Delete(ctx, BucketCaseIndex, c.ID); err != nil {
			return fmt.Errorf("failed to unindex case: %w", err)
		}
	}

	s.log.Info().
		Str("session_id", sessionID).
		Int("cases", len(cases)).
		Str("actor", actor).
		Msg("session deleted")
	return nil
}

// ListCases returns the session's cases ordered by time slot
func (s *DocketStore) ListCases(ctx context.Context, sessionID string) ([]models.CaseRecord, error) {
	if _, err := s.sessionKey(ctx, sessionID); err != nil {
		return nil, err
	}
	cases, err := s.loadCases(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cases == nil {
		cases = []models.CaseRecord{}
	}
	return cases, nil
}

// GetSession loads a session by id
func (s *DocketStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	key, err := s.sessionKey(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var session models.Session
	found, err := getJSON(ctx, s.kv, BucketSessions, key.String(), &session)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newDocketError(ErrNotFound, "session_id", "session %q not found", sessionID)
	}
	return &session, nil
}

// GetCase loads a case by id
func (s *DocketStore) GetCase(ctx context.Context, caseID string) (*models.CaseRecord, error) {
	raw, err := s.kv.Get(ctx, BucketCaseIndex, caseID)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, newDocketError(ErrNotFound, "case_id", "case %q not found", caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve case: %w", err)
	}
	cases, err := s.loadCases(ctx, string(raw))
	if err != nil {
		return nil, err
	}
	for _, c := range cases {
		if c.ID == caseID {
			record := c
			return &record, nil
		}
	}
	return nil, newDocketError(ErrNotFound, "case_id", "case %q not found", caseID)
}

// SessionsOnDate lists every session held on date, one per location
func (s *DocketStore) SessionsOnDate(ctx context.Context, date string) ([]models.Session, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}

	var ids []string
	if _, err := getJSON(ctx, s.kv, BucketSessionDates, date, &ids); err != nil {
		return nil, err
	}

	sessions := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if ErrorCode(err) == CodeNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	// same order as the location list; a location removed since sorts last
	locations, err := s.locations.List(ctx)
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int, len(locations))
	for i, loc := range locations {
		rank[loc.ID] = i
	}
	position := func(id string) int {
		if i, ok := rank[id]; ok {
			return i
		}
		return len(locations)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		pi, pj := position(sessions[i].LocationID), position(sessions[j].LocationID)
		if pi != pj {
			return pi < pj
		}
		return sessions[i].LocationID < sessions[j].LocationID
	})
	return sessions, nil
}

// MonthCalendar returns the dates of the month that hold at least one session
func (s *DocketStore) MonthCalendar(ctx context.Context, year int, month time.Month) ([]string, error) {
	if month < time.January || month > time.December {
		return nil, newDocketError(ErrInvalidInput, "month", "month %d out of range", month)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	dates := []string{}
	for day := first; day.Month() == month; day = day.AddDate(0, 0, 1) {
		date := day.Format(models.DateLayout)
		var ids []string
		found, err := getJSON(ctx, s.kv, BucketSessionDates, date, &ids)
		if err != nil {
			return nil, err
		}
		if found && len(ids) > 0 {
			dates = append(dates, date)
		}
	}
	return dates, nil
}
