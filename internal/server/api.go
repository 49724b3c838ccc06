package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/afroash/serverroom-monitor/internal/dashboard"
	"github.com/afroash/serverroom-monitor/internal/export"
	"github.com/afroash/serverroom-monitor/internal/models"
	"github.com/afroash/serverroom-monitor/internal/repository"
	"github.com/afroash/serverroom-monitor/internal/sensor"
	"github.com/afroash/serverroom-monitor/internal/table"
)

// maxBodyBytes caps request bodies; a year of daily records fits comfortably
const maxBodyBytes = 4 << 20

// ListQuery is the query string of GET /api/records
type ListQuery struct {
	Start   string `schema:"start"`
	End     string `schema:"end"`
	Page    int    `schema:"page"`
	PerPage int    `schema:"per_page"`
}

// DashboardQuery is the query string of GET /api/dashboard
type DashboardQuery struct {
	Period int `schema:"period"`
}

// ExportQuery is the query string of GET /api/export/{format}
type ExportQuery struct {
	Start      string `schema:"start"`
	End        string `schema:"end"`
	OnePerDate bool   `schema:"one_per_date"`
}

// BulkResult is the response of POST /api/records/bulk
type BulkResult struct {
	Count   int                        `json:"count"`
	Records []*models.MonitoringRecord `json:"records"`
}

// DeleteResult is the response of DELETE /api/records/{id}
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// StatusResponse is the response of GET /api/status
type StatusResponse struct {
	Version       string           `json:"version"`
	Storage       repository.Stats `json:"storage"`
	Dashboards    int              `json:"dashboards"`
	RecentEvents  int              `json:"recent_events"`
	LatestReading *sensor.Reading  `json:"latest_reading,omitempty"`
	ServerTime    time.Time        `json:"server_time"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
	})
}

// handleListRecords returns one filtered page of the log
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	var q ListQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		s.respondWithError(w, r, newAPIError(ErrorTypeValidation, http.StatusBadRequest, "invalid query parameters", err))
		return
	}
	if err := validateRange(q.Start, q.End); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if q.PerPage <= 0 {
		q.PerPage = s.opts.PageSize
	}

	records, err := s.records.List(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	page := table.Paginate(table.Filter(records, q.Start, q.End), q.Page, q.PerPage)
	respondWithJSON(w, http.StatusOK, page)
}

// handleCreateRecord stores one record from the entry form
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var record models.MonitoringRecord
	if err := decodeBody(w, r, &record); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	created, err := s.records.Insert(r.Context(), &record)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	s.logger.Info().Str("id", created.ID).Str("date", created.Date).Msg("Record created")
	respondWithJSON(w, http.StatusCreated, created)
}

// handleBulkInsert stores an imported batch all-or-nothing
func (s *Server) handleBulkInsert(w http.ResponseWriter, r *http.Request) {
	var records []*models.MonitoringRecord
	if err := decodeBody(w, r, &records); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	stored, err := s.records.BulkInsert(r.Context(), records)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	s.logger.Info().Int("count", len(stored)).Msg("Records imported")
	respondWithJSON(w, http.StatusCreated, BulkResult{Count: len(stored), Records: stored})
}

// handleDraft returns a pre-filled entry form, using the sensor when attached
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Now()
	var draft *models.MonitoringRecord
	if s.drafts != nil {
		draft = s.drafts.Draft(now)
	} else {
		draft = sensor.Draft(now, nil)
	}
	respondWithJSON(w, http.StatusOK, draft)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.records.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, record)
}

// handleUpdateRecord merges a partial update
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch models.RecordPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	updated, err := s.records.Update(r.Context(), mux.Vars(r)["id"], &patch)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	s.logger.Info().Str("id", updated.ID).Msg("Record updated")
	respondWithJSON(w, http.StatusOK, updated)
}

// handleDeleteRecord removes a record. An unknown ID is not an error.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := s.records.Delete(r.Context(), id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, DeleteResult{ID: id, Deleted: deleted})
}

func (s *Server) handleMonthRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.QueryByMonth(r.Context(), mux.Vars(r)["month"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if records == nil {
		records = []*models.MonitoringRecord{}
	}
	respondWithJSON(w, http.StatusOK, records)
}

// handleListAggregates returns every month's aggregate rounded for display
func (s *Server) handleListAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.records.Aggregates(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	out := make([]*models.MonthlyAggregate, 0, len(aggs))
	for _, agg := range aggs {
		out = append(out, agg.Rounded())
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	month := mux.Vars(r)["month"]
	agg, err := s.records.Aggregate(r.Context(), month)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if agg == nil {
		s.respondWithError(w, r, newAPIError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("no records for %s", month), nil))
		return
	}
	respondWithJSON(w, http.StatusOK, agg.Rounded())
}

// handleDashboard returns summary cards and chart series for the last N records
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var q DashboardQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		s.respondWithError(w, r, newAPIError(ErrorTypeValidation, http.StatusBadRequest, "invalid query parameters", err))
		return
	}
	if q.Period == 0 {
		q.Period = s.opts.DefaultPeriod
	}
	if q.Period < 0 {
		s.respondWithError(w, r, models.NewValidationError("period", "must be a positive number of records"))
		return
	}

	records, err := s.records.List(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dashboard.Build(records, q.Period))
}

// handleStatus reports the storage session and live connections
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.records.Stats(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	resp := StatusResponse{
		Version:    s.opts.Version,
		Storage:    stats,
		ServerTime: s.opts.Now(),
	}
	if s.hub != nil {
		resp.Dashboards = s.hub.ClientCount()
		resp.RecentEvents = len(s.hub.Recent())
	}
	if latest, ok := s.drafts.(interface{ Latest() (sensor.Reading, bool) }); ok {
		if reading, ok := latest.Latest(); ok {
			resp.LatestReading = &reading
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// handleExport renders the filtered log as a download
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	var q ExportQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		s.respondWithError(w, r, newAPIError(ErrorTypeValidation, http.StatusBadRequest, "invalid query parameters", err))
		return
	}
	if err := validateRange(q.Start, q.End); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	records, err := s.records.List(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	now := s.opts.Now()
	rows := export.Rows(table.Filter(records, q.Start, q.End), q.OnePerDate)

	// Render fully before writing headers so a failure still gets a JSON error
	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows, now); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(format, now)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn().Err(err).Str("format", string(format)).Msg("Export download interrupted")
		return
	}
	s.logger.Info().Str("format", string(format)).Int("rows", len(rows)).Msg("Export served")
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return newAPIError(ErrorTypeValidation, http.StatusBadRequest, "invalid request body", err)
	}
	return nil
}

// validateRange checks optional YYYY-MM-DD filter bounds
func validateRange(start, end string) error {
	if start != "" {
		if _, err := time.Parse(models.DateLayout, start); err != nil {
			return models.NewValidationError("start", "must be a YYYY-MM-DD date")
		}
	}
	if end != "" {
		if _, err := time.Parse(models.DateLayout, end); err != nil {
			return models.NewValidationError("end", "must be a YYYY-MM-DD date")
		}
	}
	if start != "" && end != "" && start > end {
		return models.NewValidationError("start", "must not be after end")
	}
	return nil
}
