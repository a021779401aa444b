package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"meu_perito_go/middleware"
	"meu_perito_go/models"
	"meu_perito_go/services"
	"meu_perito_go/services/i18n"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditHistory is implemented by recorders that can read their trail back
type AuditHistory interface {
	History(ctx context.Context, resourceType, resourceID string) ([]models.AuditLog, error)
}

// DocketHandler exposes DocketService over JSON
type DocketHandler struct {
	svc            *services.DocketService
	audit          services.AuditRecorder
	catalog        *i18n.Catalog
	log            zerolog.Logger
	maxUploadBytes int64
}

func NewDocketHandler(svc *services.DocketService, audit services.AuditRecorder, catalog *i18n.Catalog, maxUploadBytes int64, log zerolog.Logger) *DocketHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = services.DefaultMaxUploadBytes
	}
	return &DocketHandler{
		svc:            svc,
		audit:          audit,
		catalog:        catalog,
		log:            log.With().Str("component", "http").Logger(),
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the API. extractLimit guards the upload endpoint.
func (h *DocketHandler) Register(api *echo.Group, extractLimit echo.MiddlewareFunc) {
	api.GET("/locations", h.ListLocations)
	api.POST("/locations", h.AddLocation)
	api.DELETE("/locations/:id", h.RemoveLocation)

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.SessionsOnDate)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.GET("/sessions/:id/cases", h.ListCases)
	api.POST("/sessions/:id/cases", h.AddCase)
	api.GET("/sessions/:id/export", h.ExportSession)
	api.GET("/sessions/:id/calendar.ics", h.ExportSessionICS)
	api.POST("/sessions/:id/import", h.ImportSession)

	api.GET("/calendar", h.MonthCalendar)

	api.POST("/cases", h.BookCase)
	api.GET("/cases/:id", h.GetCase)
	api.PATCH("/cases/:id", h.UpdateCaseFields)
	api.PUT("/cases/:id/status", h.UpdateCaseStatus)
	api.POST("/cases/:id/confirm", h.ConfirmCase)
	api.DELETE("/cases/:id", h.DeleteCase)
	api.GET("/cases/:id/audit", h.CaseAudit)
	api.GET("/cases/:id/document", h.SourceDocument)

	if extractLimit != nil {
		api.POST("/extract", h.Extract, h.renderErrors(extractLimit))
	} else {
		api.POST("/extract", h.Extract)
	}
}

// ErrorBody is the JSON shape of every business-rule failure
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

var errorStatus = map[string]int{
	services.CodeNotFound:             http.StatusNotFound,
	services.CodeForbidden:            http.StatusForbidden,
	services.CodeSlotTaken:            http.StatusConflict,
	services.CodeInvalidTransition:    http.StatusConflict,
	services.CodeFixedLocation:        http.StatusConflict,
	services.CodeDuplicateLocation:    http.StatusConflict,
	services.CodeUnknownLocation:      http.StatusUnprocessableEntity,
	services.CodeInvalidSlot:          http.StatusUnprocessableEntity,
	services.CodeMissingRequiredField: http.StatusUnprocessableEntity,
	services.CodeExtractionFailed:     http.StatusUnprocessableEntity,
	services.CodeUnreadableDocument:   http.StatusUnprocessableEntity,
	services.CodeInvalidInput:         http.StatusBadRequest,
	services.CodeRateLimited:          http.StatusTooManyRequests,
}

// renderErrors writes business-rule errors returned by mw (a rate limit
// rejection) as a localized ErrorBody instead of leaving them to echo.
func (h *DocketHandler) renderErrors(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := mw(next)
		return func(c echo.Context) error {
			err := wrapped(c)
			var de *services.DocketError
			if errors.As(err, &de) && !c.Response().Committed {
				return h.fail(c, err)
			}
			return err
		}
	}
}

// fail writes err as a localized ErrorBody
func (h *DocketHandler) fail(c echo.Context, err error) error {
	code := services.ErrorCode(err)
	status, ok := errorStatus[code]
	if !ok {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		status = http.StatusInternalServerError
	}

	ctx := c.Request().Context()
	body := ErrorBody{Code: code}
	var de *services.DocketError
	if errors.As(err, &de) {
		body.Field = de.Field
	}
	fieldLabel := body.Field
	if fieldLabel != "" {
		fieldLabel = h.catalog.T(ctx, "fields."+fieldLabel)
	}
	body.Message = h.catalog.T(ctx, "errors."+code, map[string]interface{}{"field": fieldLabel})

	return c.JSON(status, map[string]ErrorBody{"error": body})
}

func (h *DocketHandler) actor(c echo.Context) services.Actor {
	actor, _ := middleware.GetActor(c)
	return actor
}

func (h *DocketHandler) record(c echo.Context, event services.AuditEvent) {
	if h.audit == nil {
		return
	}
	h.audit.Record(c.Request().Context(), middleware.GetAuditContext(c), event)
}

func badRequest(field, format string, args ...interface{}) error {
	return &services.DocketError{
		Code:    services.CodeInvalidInput,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
		Cause:   services.ErrInvalidInput,
	}
}

// Locations

func (h *DocketHandler) ListLocations(c echo.Context) error {
	locations, err := h.svc.ListLocations(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, locations)
}

type locationRequest struct {
	Name string `json:"name" form:"name"`
}

func (h *DocketHandler) AddLocation(c echo.Context) error {
	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, badRequest("name", "invalid body"))
	}
	location, err := h.svc.AddLocation(c.Request().Context(), req.Name, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionCreate,
		ResourceType: models.AuditResourceLocation,
		ResourceID:   location.ID,
		ResourceName: location.Name,
		Description:  "location added",
		NewValues:    location,
	})
	return c.JSON(http.StatusCreated, location)
}

func (h *DocketHandler) RemoveLocation(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.RemoveLocation(c.Request().Context(), id, h.actor(c)); err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionDelete,
		ResourceType: models.AuditResourceLocation,
		ResourceID:   id,
		Description:  "location removed",
	})
	return c.NoContent(http.StatusNoContent)
}

// Sessions

type sessionRequest struct {
	Date         string `json:"date"`
	LocationID   string `json:"location_id"`
	Observations string `json:"observations"`
}

func (h *DocketHandler) CreateSession(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, badRequest("date", "invalid body"))
	}
	session, err := h.svc.CreateOrGetSession(c.Request().Context(), req.Date, req.LocationID, req.Observations, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionCreate,
		ResourceType: models.AuditResourceSession,
		ResourceID:   session.ID,
		ResourceName: session.Key().String(),
		Description:  "session created or reused",
		NewValues:    session,
	})
	return c.JSON(http.StatusOK, session)
}

func (h *DocketHandler) SessionsOnDate(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return h.fail(c, badRequest("date", "date query parameter is required"))
	}
	sessions, err := h.svc.SessionsOnDate(c.Request().Context(), date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *DocketHandler) GetSession(c echo.Context) error {
	session, err := h.svc.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *DocketHandler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	session, err := h.svc.GetSession(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.DeleteSession(ctx, id, h.actor(c)); err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionDelete,
		ResourceType: models.AuditResourceSession,
		ResourceID:   id,
		ResourceName: session.Key().String(),
		Description:  "session deleted with its cases",
		OldValues:    session,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *DocketHandler) ListCases(c echo.Context) error {
	cases, err := h.svc.ListCases(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cases)
}

func (h *DocketHandler) ExportSession(c echo.Context) error {
	id := c.Param("id")
	buf, err := h.svc.ExportSessionXLSX(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionExport,
		ResourceType: models.AuditResourceSession,
		ResourceID:   id,
		Description:  "docket exported",
	})
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="pauta-%s.xlsx"`, id))
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *DocketHandler) ExportSessionICS(c echo.Context) error {
	id := c.Param("id")
	ics, err := h.svc.ExportSessionICS(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionExport,
		ResourceType: models.AuditResourceSession,
		ResourceID:   id,
		Description:  "calendar exported",
	})
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="pericias-%s.ics"`, id))
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", ics)
}

func (h *DocketHandler) ImportSession(c echo.Context) error {
	id := c.Param("id")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, badRequest("file", "file is required"))
	}
	src, err := fileHeader.Open()
	if err != nil {
		return h.fail(c, badRequest("file", "cannot open file"))
	}
	defer src.Close()

	result, err := h.svc.ImportSessionXLSX(c.Request().Context(), id, src, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionCreate,
		ResourceType: models.AuditResourceSession,
		ResourceID:   id,
		Description:  fmt.Sprintf("docket imported: %d booked, %d rejected", result.SuccessCount, result.FailedCount),
		NewValues:    result,
	})
	return c.JSON(http.StatusOK, result)
}

func (h *DocketHandler) MonthCalendar(c echo.Context) error {
	year, errY := strconv.Atoi(c.QueryParam("year"))
	month, errM := strconv.Atoi(c.QueryParam("month"))
	if errY != nil || errM != nil || month < 1 || month > 12 {
		return h.fail(c, badRequest("date", "year and month are required"))
	}
	dates, err := h.svc.MonthCalendar(c.Request().Context(), year, time.Month(month))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"year": year, "month": month, "dates": dates})
}

// Cases

func (h *DocketHandler) AddCase(c echo.Context) error {
	var input services.CaseInput
	if err := c.Bind(&input); err != nil {
		return h.fail(c, badRequest("case_number", "invalid body"))
	}
	record, err := h.svc.AddCase(c.Request().Context(), c.Param("id"), input, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.recordCaseCreated(c, record)
	return c.JSON(http.StatusCreated, record)
}

type bookCaseRequest struct {
	Date       string `json:"date"`
	LocationID string `json:"location_id"`
	services.CaseInput
}

// BookCase creates the session on first booking
func (h *DocketHandler) BookCase(c echo.Context) error {
	var req bookCaseRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, badRequest("case_number", "invalid body"))
	}
	session, record, err := h.svc.BookCase(c.Request().Context(), req.Date, req.LocationID, req.CaseInput, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.recordCaseCreated(c, record)
	return c.JSON(http.StatusCreated, map[string]interface{}{"session": session, "case": record})
}

func (h *DocketHandler) recordCaseCreated(c echo.Context, record *models.CaseRecord) {
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionCreate,
		ResourceType: models.AuditResourceCase,
		ResourceID:   record.ID,
		ResourceName: record.CaseNumber,
		Description:  "case booked at " + record.TimeSlot.String(),
		NewValues:    record,
	})
}

func (h *DocketHandler) GetCase(c echo.Context) error {
	record, err := h.svc.GetCase(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *DocketHandler) UpdateCaseFields(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	var edit services.CaseEdit
	if err := c.Bind(&edit); err != nil {
		return h.fail(c, badRequest("case_number", "invalid body"))
	}

	before, err := h.svc.GetCase(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	record, err := h.svc.UpdateCaseFields(ctx, id, edit, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionUpdate,
		ResourceType: models.AuditResourceCase,
		ResourceID:   id,
		ResourceName: record.CaseNumber,
		Description:  "case edited",
		OldValues:    before,
		NewValues:    record,
	})
	return c.JSON(http.StatusOK, record)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *DocketHandler) UpdateCaseStatus(c echo.Context) error {
	id := c.Param("id")
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, badRequest("status", "invalid body"))
	}
	status, ok := models.ParseCaseStatus(req.Status)
	if !ok {
		return h.fail(c, badRequest("status", "unknown status %q", req.Status))
	}

	result, err := h.svc.UpdateCaseStatus(c.Request().Context(), id, status, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	if result.Changed {
		h.record(c, services.AuditEvent{
			Action:       models.AuditActionStatusChange,
			ResourceType: models.AuditResourceCase,
			ResourceID:   id,
			Description:  "case status changed",
			OldValues:    map[string]interface{}{"status": result.From},
			NewValues:    map[string]interface{}{"status": result.To},
		})
	}
	if result.AbsenceNotice != nil {
		// hook for the absence certificate generator
		h.record(c, services.AuditEvent{
			Action:       models.AuditActionAbsenceNotice,
			ResourceType: models.AuditResourceCase,
			ResourceID:   id,
			ResourceName: result.AbsenceNotice.CaseNumber,
			Description: h.catalog.T(c.Request().Context(), "docket.absence_recorded",
				map[string]interface{}{"case_number": result.AbsenceNotice.CaseNumber}),
			NewValues: result.AbsenceNotice,
		})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *DocketHandler) ConfirmCase(c echo.Context) error {
	id := c.Param("id")
	record, err := h.svc.ConfirmCase(c.Request().Context(), id, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionConfirm,
		ResourceType: models.AuditResourceCase,
		ResourceID:   id,
		ResourceName: record.CaseNumber,
		Description:  "extracted values confirmed",
		NewValues:    record.Extraction,
	})
	return c.JSON(http.StatusOK, record)
}

func (h *DocketHandler) DeleteCase(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	before, err := h.svc.GetCase(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.DeleteCase(ctx, id, h.actor(c)); err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionDelete,
		ResourceType: models.AuditResourceCase,
		ResourceID:   id,
		ResourceName: before.CaseNumber,
		Description:  "case deleted",
		OldValues:    before,
	})
	return c.NoContent(http.StatusNoContent)
}

// SourceDocument streams the PDF an extracted case was read from
func (h *DocketHandler) SourceDocument(c echo.Context) error {
	id := c.Param("id")
	doc, err := h.svc.SourceDocument(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	defer doc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="processo-%s.pdf"`, id))
	return c.Stream(http.StatusOK, services.AllowedMimeType, doc)
}

func (h *DocketHandler) CaseAudit(c echo.Context) error {
	history, ok := h.audit.(AuditHistory)
	if !ok {
		return h.fail(c, &services.DocketError{Code: services.CodeNotFound, Message: "audit trail is not persisted", Cause: services.ErrNotFound})
	}
	logs, err := history.History(c.Request().Context(), models.AuditResourceCase, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// Extraction

// Extract reads an uploaded PDF ("document" form field) and returns the
// candidate fields plus the stored document key.
func (h *DocketHandler) Extract(c echo.Context) error {
	fileHeader, err := c.FormFile("document")
	if err != nil {
		return h.fail(c, badRequest("document", "document is required"))
	}
	data, err := services.ReadUpload(fileHeader, h.maxUploadBytes)
	if err != nil {
		return h.fail(c, err)
	}

	result, err := h.svc.ExtractAndStore(c.Request().Context(), fileHeader.Filename, data, h.actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.record(c, services.AuditEvent{
		Action:       models.AuditActionExtract,
		ResourceType: models.AuditResourceDocument,
		ResourceID:   result.DocumentKey,
		ResourceName: fileHeader.Filename,
		Description:  "document extracted",
		NewValues:    result.Snapshot,
	})
	return c.JSON(http.StatusOK, result)
}
