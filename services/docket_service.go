package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"meu_perito_go/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// DefaultMaxUploadBytes bounds a source document when no limit is configured
const DefaultMaxUploadBytes = 20 * 1024 * 1024

// DocketServiceDeps are the collaborators of DocketService. Storage may be
// nil, in which case source documents are not kept.
type DocketServiceDeps struct {
	Store          *DocketStore
	Locations      *LocationRegistry
	Extractor      TextExtractor
	Recognizer     *Recognizer
	Storage        StorageProvider
	Authorizer     Authorizer
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

// DocketService is the entry point of the engine. It checks capabilities,
// cleans free text and passes store errors through unchanged.
type DocketService struct {
	store          *DocketStore
	locations      *LocationRegistry
	extractor      TextExtractor
	recognizer     *Recognizer
	storage        StorageProvider
	authz          Authorizer
	log            zerolog.Logger
	sanitizer      *bluemonday.Policy
	maxUploadBytes int64
	now            func() time.Time
}

func NewDocketService(deps DocketServiceDeps) (*DocketService, error) {
	if deps.Store == nil || deps.Locations == nil {
		return nil, errors.New("docket service needs a store and a location registry")
	}
	if deps.Extractor == nil || deps.Recognizer == nil {
		return nil, errors.New("docket service needs an extractor and a recognizer")
	}
	authz := deps.Authorizer
	if authz == nil {
		authz = NewRoleAuthorizer()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	return &DocketService{
		store:          deps.Store,
		locations:      deps.Locations,
		extractor:      deps.Extractor,
		recognizer:     deps.Recognizer,
		storage:        deps.Storage,
		authz:          authz,
		log:            deps.Logger.With().Str("component", "docket_service").Logger(),
		sanitizer:      bluemonday.StrictPolicy(),
		maxUploadBytes: maxUpload,
		now:            time.Now,
	}, nil
}

// clean strips markup from user-entered text and undoes the entity escaping
// the policy applies to plain characters such as "&".
func (s *DocketService) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

func (s *DocketService) cleanInput(input CaseInput) CaseInput {
	input.CaseNumber = s.clean(input.CaseNumber)
	input.PartyName = s.clean(input.PartyName)
	return input
}

// Locations

func (s *DocketService) ListLocations(ctx context.Context) ([]models.Location, error) {
	return s.locations.List(ctx)
}

func (s *DocketService) AddLocation(ctx context.Context, name string, actor Actor) (*models.Location, error) {
	if err := authorize(s.authz, actor, ActionManageLocations); err != nil {
		return nil, err
	}
	return s.locations.Add(ctx, s.clean(name), actor.ID)
}

func (s *DocketService) RemoveLocation(ctx context.Context, id string, actor Actor) error {
	if err := authorize(s.authz, actor, ActionManageLocations); err != nil {
		return err
	}
	if err := s.locations.Remove(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("location_id", id).Str("actor", actor.ID).Msg("location removed")
	return nil
}

// Sessions

// CreateOrGetSession is idempotent for the same (date, locationID)
func (s *DocketService) CreateOrGetSession(ctx context.Context, date, locationID, observations string, actor Actor) (*models.Session, error) {
	if err := authorize(s.authz, actor, ActionManageSessions); err != nil {
		return nil, err
	}
	return s.store.UpsertSession(ctx, date, locationID, s.clean(observations), actor.ID)
}

func (s *DocketService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *DocketService) SessionsOnDate(ctx context.Context, date string) ([]models.Session, error) {
	return s.store.SessionsOnDate(ctx, date)
}

func (s *DocketService) MonthCalendar(ctx context.Context, year int, month time.Month) ([]string, error) {
	return s.store.MonthCalendar(ctx, year, month)
}

// DeleteSession removes the session with all of its cases, so it needs both
// session management and case deletion rights.
func (s *DocketService) DeleteSession(ctx context.Context, sessionID string, actor Actor) error {
	if err := authorize(s.authz, actor, ActionManageSessions); err != nil {
		return err
	}
	if err := authorize(s.authz, actor, ActionDeleteCase); err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, sessionID, actor.ID)
}

// Cases

func (s *DocketService) AddCase(ctx context.Context, sessionID string, input CaseInput, actor Actor) (*models.CaseRecord, error) {
	if err := authorize(s.authz, actor, ActionCreateCase); err != nil {
		return nil, err
	}
	return s.store.AddCase(ctx, sessionID, s.cleanInput(input), actor.ID)
}

// BookCase creates the session for (date, locationID) when needed and books
// the case into it. A rejected case still leaves the session in place.
func (s *DocketService) BookCase(ctx context.Context, date, locationID string, input CaseInput, actor Actor) (*models.Session, *models.CaseRecord, error) {
	if err := authorize(s.authz, actor, ActionCreateCase); err != nil {
		return nil, nil, err
	}
	session, err := s.store.UpsertSession(ctx, date, locationID, "", actor.ID)
	if err != nil {
		return nil, nil, err
	}
	record, err := s.store.AddCase(ctx, session.ID, s.cleanInput(input), actor.ID)
	if err != nil {
		return session, nil, err
	}
	return session, record, nil
}

func (s *DocketService) GetCase(ctx context.Context, caseID string) (*models.CaseRecord, error) {
	return s.store.GetCase(ctx, caseID)
}

func (s *DocketService) ListCases(ctx context.Context, sessionID string) ([]models.CaseRecord, error) {
	return s.store.ListCases(ctx, sessionID)
}

func (s *DocketService) UpdateCaseStatus(ctx context.Context, caseID string, status models.CaseStatus, actor Actor) (TransitionResult, error) {
	if err := authorize(s.authz, actor, ActionEditCase); err != nil {
		return TransitionResult{}, err
	}
	return s.store.UpdateCaseStatus(ctx, caseID, status, actor.ID)
}

func (s *DocketService) UpdateCaseFields(ctx context.Context, caseID string, edit CaseEdit, actor Actor) (*models.CaseRecord, error) {
	if err := authorize(s.authz, actor, ActionEditCase); err != nil {
		return nil, err
	}
	if edit.CaseNumber != nil {
		v := s.clean(*edit.CaseNumber)
		edit.CaseNumber = &v
	}
	if edit.PartyName != nil {
		v := s.clean(*edit.PartyName)
		edit.PartyName = &v
	}
	return s.store.UpdateCaseFields(ctx, caseID, edit, actor.ID)
}

func (s *DocketService) ConfirmCase(ctx context.Context, caseID string, actor Actor) (*models.CaseRecord, error) {
	if err := authorize(s.authz, actor, ActionEditCase); err != nil {
		return nil, err
	}
	return s.store.ConfirmCase(ctx, caseID, actor.ID)
}

func (s *DocketService) DeleteCase(ctx context.Context, caseID string, actor Actor) error {
	if err := authorize(s.authz, actor, ActionDeleteCase); err != nil {
		return err
	}
	record, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCase(ctx, caseID, actor.ID); err != nil {
		return err
	}

	// the case is gone either way; an orphaned document only costs disk
	if key := sourceDocumentKey(record); key != "" && s.storage != nil {
		if err := s.storage.RemoveDocument(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("case_id", caseID).Str("document_key", key).Msg("failed to remove source document")
		}
	}
	return nil
}

// SourceDocument opens the PDF an extracted case was read from. The caller
// closes the reader.
func (s *DocketService) SourceDocument(ctx context.Context, caseID string) (io.ReadCloser, error) {
	record, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	key := sourceDocumentKey(record)
	if key == "" || s.storage == nil {
		return nil, newDocketError(ErrNotFound, "case_id", "case %s has no source document", caseID)
	}
	return s.storage.OpenDocument(ctx, key)
}

func sourceDocumentKey(record *models.CaseRecord) string {
	if record == nil || record.Extraction == nil {
		return ""
	}
	return record.Extraction.SourceDocumentKey
}

// Extraction

// ExtractCandidateFields runs the extractor and the recognizer. Only an
// extractor failure is an error, reported as ErrExtractionFailed with the
// extractor's reason still in the chain.
func (s *DocketService) ExtractCandidateFields(ctx context.Context, document []byte) (CandidateFields, error) {
	text, err := s.extractor.Extract(ctx, document)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return CandidateFields{}, ctxErr
		}
		return CandidateFields{}, &DocketError{
			Code:    CodeExtractionFailed,
			Message: "could not read text from the document",
			Field:   "document",
			Cause:   fmt.Errorf("%w: %w", ErrExtractionFailed, err),
		}
	}

	fields := s.recognizer.Recognize(text)
	s.log.Debug().
		Int("pages", fields.PageCount).
		Str("case_number_confidence", string(fields.Confidence.CaseNumber)).
		Str("party_confidence", string(fields.Confidence.PartyName)).
		Str("benefit_type", string(fields.BenefitType)).
		Msg("candidate fields recognized")
	return fields, nil
}

// ExtractionResult is the outcome of ExtractAndStore
type ExtractionResult struct {
	Fields         CandidateFields           `json:"fields"`
	DocumentKey    string                    `json:"document_key,omitempty"`
	DocumentSHA256 string                    `json:"document_sha256"`
	Snapshot       models.ExtractionSnapshot `json:"snapshot"`
}

// ValidateUpload checks a source document before it is parsed
func (s *DocketService) ValidateUpload(filename string, document []byte) error {
	return ValidatePDFUpload(filename, document, s.maxUploadBytes)
}

// ExtractAndStore validates and reads an uploaded document, then keeps it in
// storage so an extracted case can point back to it.
func (s *DocketService) ExtractAndStore(ctx context.Context, filename string, document []byte, actor Actor) (*ExtractionResult, error) {
	if err := authorize(s.authz, actor, ActionCreateCase); err != nil {
		return nil, err
	}
	if err := s.ValidateUpload(filename, document); err != nil {
		return nil, err
	}

	fields, err := s.ExtractCandidateFields(ctx, document)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResult{Fields: fields, DocumentSHA256: DocumentDigest(document)}
	if s.storage != nil && s.storage.IsConfigured() {
		key := GenerateSourceDocumentKey(filename, s.now())
		if _, err := s.storage.PutDocument(ctx, key, bytes.NewReader(document), int64(len(document))); err != nil {
			return nil, fmt.Errorf("failed to store source document: %w", err)
		}
		result.DocumentKey = key
	}
	result.Snapshot = fields.Snapshot(result.DocumentKey)

	s.log.Info().
		Str("document_key", result.DocumentKey).
		Str("case_number", fields.CaseNumber).
		Str("actor", actor.ID).
		Msg("document extracted")
	return result, nil
}
