package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/eventstore"
	"github.com/godamri/helix-audit/http/response"
)

// EventBrowser is the read surface the API needs from the event store.
type EventBrowser interface {
	ListCRUD(ctx context.Context, f eventstore.Filter) ([]audit.CRUDEvent, error)
	ListLogin(ctx context.Context, f eventstore.Filter) ([]audit.LoginEvent, error)
	ListRequest(ctx context.Context, f eventstore.Filter) ([]audit.RequestEvent, error)
	Count(ctx context.Context, kind audit.Kind, f eventstore.Filter) (int64, error)
	PendingCounts(ctx context.Context) (map[audit.Kind]int64, error)
}

// API exposes the browse endpoints over the primary store. The sink
// is for analysts; this surface answers "what just happened" queries
// without leaving the service.
type API struct {
	store  EventBrowser
	logger *slog.Logger
}

func NewAPI(store EventBrowser, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		store:  store,
		logger: logger,
	}
}

func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/events/crud", a.handleListCRUD)
		r.Get("/events/login", a.handleListLogin)
		r.Get("/events/request", a.handleListRequest)
		r.Get("/stats", a.handleStats)
	})
}

type listPage struct {
	Items  any   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func (a *API) handleListCRUD(w http.ResponseWriter, r *http.Request) {
	filter, ok := a.parseFilter(w, r)
	if !ok {
		return
	}

	items, err := a.store.ListCRUD(r.Context(), filter)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	total, err := a.store.Count(r.Context(), audit.KindCRUD, filter)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, listPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (a *API) handleListLogin(w http.ResponseWriter, r *http.Request) {
	filter, ok := a.parseFilter(w, r)
	if !ok {
		return
	}

	items, err := a.store.ListLogin(r.Context(), filter)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	total, err := a.store.Count(r.Context(), audit.KindLogin, filter)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, listPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (a *API) handleListRequest(w http.ResponseWriter, r *http.Request) {
	filter, ok := a.parseFilter(w, r)
	if !ok {
		return
	}

	items, err := a.store.ListRequest(r.Context(), filter)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	total, err := a.store.Count(r.Context(), audit.KindRequest, filter)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, listPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// handleStats reports per-kind totals and the export backlog. A
// growing pending count with a healthy sink means the schedule is too
// slow or the page size too small.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	pending, err := a.store.PendingCounts(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	totals := make(map[audit.Kind]int64, len(audit.Kinds()))
	for _, kind := range audit.Kinds() {
		n, err := a.store.Count(r.Context(), kind, eventstore.Filter{})
		if err != nil {
			a.writeStoreError(w, r, err)
			return
		}
		totals[kind] = n
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"pending": pending,
		"total":   totals,
	})
}

// parseFilter maps query params onto a store filter. On invalid input
// it writes an RFC 7807 response listing the offending fields and
// returns ok=false.
func (a *API) parseFilter(w http.ResponseWriter, r *http.Request) (eventstore.Filter, bool) {
	q := r.URL.Query()
	filter := eventstore.DefaultFilter()
	fieldErrs := map[string]string{}

	filter.ActorID = q.Get("actor_id")
	filter.ObjectType = q.Get("object_type")
	filter.Action = q.Get("action")
	filter.Method = q.Get("method")

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fieldErrs["since"] = "must be RFC3339"
		} else {
			filter.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fieldErrs["until"] = "must be RFC3339"
		} else {
			filter.Until = t
		}
	}
	if v := q.Get("exported"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fieldErrs["exported"] = "must be a boolean"
		} else {
			filter.Exported = &b
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fieldErrs["limit"] = "must be a positive integer"
		} else {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fieldErrs["offset"] = "must be a non-negative integer"
		} else {
			filter.Offset = n
		}
	}

	if len(fieldErrs) > 0 {
		response.ErrorProblem(w, r, http.StatusBadRequest, "Invalid filter", "one or more query parameters are invalid", fieldErrs)
		return eventstore.Filter{}, false
	}

	return filter, true
}

func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := database.MapError(err)
	code, message, found := strings.Cut(mapped.Error(), ": ")
	if !found {
		code, message = response.ErrSystem, "internal error"
	}

	a.logger.ErrorContext(r.Context(), "browse query failed", "code", code, "error", err)
	response.ErrorJSON(w, r, response.MapStatus(code), code, message)
}
