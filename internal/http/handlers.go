package http

import (
	"errors"
	"net/http"
	"time"

	"costwatch/internal/core"
	"costwatch/internal/log"
	"costwatch/internal/storage"
)

// rangeMeta echoes the effective query window back to the client.
type rangeMeta struct {
	Cloud    string    `json:"cloud"`
	From     core.Date `json:"from"`
	To       core.Date `json:"to"`
	Currency string    `json:"currency"`
}

func metaFor(f core.QueryFilters) rangeMeta {
	return rangeMeta{
		Cloud:    string(f.Cloud),
		From:     f.Start,
		To:       f.End,
		Currency: f.Currency,
	}
}

// prepare parses the shared parameters and kicks off the best-effort
// side work: on-request rate sync and coverage-driven backfill.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (QueryParams, bool) {
	params, err := ParseQueryParams(r.URL.Query(), s.reportingCurrency, time.Now())
	if err != nil {
		NewResponse().Error(http.StatusBadRequest, err.Error()).Write(w)
		return QueryParams{}, false
	}

	if s.syncer != nil && params.Filters.Currency == s.reportingCurrency {
		asOf := params.Filters.End
		if !params.Ref.IsZero() {
			asOf = params.Ref
		}
		s.syncer.EnsureRate(r.Context(), asOf)
	}
	if s.requester != nil {
		s.requester.RequestIfMissing(r.Context(), params.Filters.Cloud,
			params.Filters.Start, params.Filters.End)
	}
	return params, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, core.ErrInvalidCloud),
		errors.Is(err, core.ErrInvalidDim),
		errors.Is(err, core.ErrInvalidLimit),
		errors.Is(err, core.ErrEmptyCurrency):
		NewResponse().Error(http.StatusBadRequest, err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "query failed",
			log.FieldPath, r.URL.Path, log.FieldError, err.Error())
		NewResponse().Error(http.StatusInternalServerError, "internal error").Write(w)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, ok := s.prepare(w, r)
	if !ok {
		return
	}

	key := cacheKey("summary", params)
	summary, hit := s.summaryCache.Get(key)
	if !hit {
		var err error
		summary, err = s.analytics.Summarize(r.Context(), params.Filters, params.Ref)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.summaryCache.Set(key, summary)
	}

	NewResponse().JSON(struct {
		rangeMeta
		Summary core.Summary `json:"summary"`
	}{metaFor(params.Filters), summary}).Write(w)
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	params, ok := s.prepare(w, r)
	if !ok {
		return
	}

	key := cacheKey("timeseries", params)
	points, hit := s.timeseriesCache.Get(key)
	if !hit {
		var err error
		points, err = s.analytics.Timeseries(r.Context(), params.Filters)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.timeseriesCache.Set(key, points)
	}

	if points == nil {
		points = []core.TimeseriesPoint{}
	}
	NewResponse().JSON(struct {
		rangeMeta
		Points []core.TimeseriesPoint `json:"points"`
	}{metaFor(params.Filters), points}).Write(w)
}

func (s *Server) handleTopServices(w http.ResponseWriter, r *http.Request) {
	s.handleRank(w, r, core.DimensionService)
}

func (s *Server) handleTopAccounts(w http.ResponseWriter, r *http.Request) {
	s.handleRank(w, r, core.DimensionAccount)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request, dim core.Dimension) {
	params, ok := s.prepare(w, r)
	if !ok {
		return
	}

	key := cacheKey("rank/"+string(dim), params)
	items, hit := s.rankCache.Get(key)
	if !hit {
		var err error
		items, err = s.analytics.Rank(r.Context(), params.Filters, dim, params.Limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.rankCache.Set(key, items)
	}

	if items == nil {
		items = []core.RankedItem{}
	}
	NewResponse().JSON(struct {
		rangeMeta
		Dimension string            `json:"dimension"`
		Items     []core.RankedItem `json:"items"`
	}{metaFor(params.Filters), string(dim), items}).Write(w)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	params, ok := s.prepare(w, r)
	if !ok {
		return
	}

	dim := core.DimensionService
	if v := r.URL.Query().Get("dimension"); v != "" {
		dim = core.Dimension(v)
	}

	days, err := s.analytics.DailyBreakdown(r.Context(), params.Filters, dim, params.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if days == nil {
		days = []core.DailyBreakdown{}
	}
	NewResponse().JSON(struct {
		rangeMeta
		Dimension string                `json:"dimension"`
		Days      []core.DailyBreakdown `json:"days"`
	}{metaFor(params.Filters), string(dim), days}).Write(w)
}

// handleFilters returns the selectable values for dashboard pickers
// plus the stored date range.
func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	cloud := core.CloudAll
	if v := r.URL.Query().Get("cloud"); v != "" {
		cloud = core.Cloud(v)
	}
	if !cloud.Valid() {
		NewResponse().Error(http.StatusBadRequest, core.ErrInvalidCloud.Error()).Write(w)
		return
	}

	accounts, err := s.filters.ListScopes(r.Context(), cloud)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	services, err := s.filters.TopServices(r.Context(), cloud, 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if accounts == nil {
		accounts = []storage.Option{}
	}
	if services == nil {
		services = []storage.Option{}
	}
	resp := struct {
		Clouds   []string         `json:"clouds"`
		Accounts []storage.Option `json:"accounts"`
		Services []storage.Option `json:"services"`
		MinDate  *core.Date       `json:"minDate,omitempty"`
		MaxDate  *core.Date       `json:"maxDate,omitempty"`
	}{
		Clouds:   []string{string(core.CloudAWS), string(core.CloudAzure), string(core.CloudOCI)},
		Accounts: accounts,
		Services: services,
	}
	min, max, ok, err := s.analytics.AvailableRange(r.Context(), cloud)
	switch {
	case err != nil:
		// Degraded response: filters still work without the bounds.
		log.FromContext(r.Context()).WarnContext(r.Context(), "available range lookup failed",
			log.FieldCloud, string(cloud), log.FieldError, err.Error())
	case ok:
		resp.MinDate = &min
		resp.MaxDate = &max
	}

	NewResponse().JSON(resp).Write(w)
}
