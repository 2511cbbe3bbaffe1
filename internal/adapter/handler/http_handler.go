package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockpilot/internal/adapter/api"
	"github.com/rl1809/stockpilot/internal/adapter/browser"
	"github.com/rl1809/stockpilot/internal/core/domain"
	"github.com/rl1809/stockpilot/internal/core/service"
	"github.com/rl1809/stockpilot/internal/panel"
	"github.com/rl1809/stockpilot/internal/port"
)

const (
	maxCSVBody   = 1 << 20
	searchLimit  = 20
	templateName = "stockpilot-template.csv"
)

type HTTPHandler struct {
	registry       *panel.Registry
	tabs           port.TabStore
	deps           panel.Deps
	frameAncestors string
	logger         *zap.Logger
}

type PanelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type BootHTTPRequest struct {
	Href     string `json:"href"`
	Embedded bool   `json:"embedded"`
	TabID    string `json:"tab_id"`
}

type BootHTTPResponse struct {
	PageID        string              `json:"page_id,omitempty"`
	TabID         string              `json:"tab_id"`
	Shop          string              `json:"shop"`
	Host          string              `json:"host"`
	HostSource    string              `json:"host_source"`
	Embedded      bool                `json:"embedded"`
	Bridge        bool                `json:"bridge"`
	Redirected    bool                `json:"redirected"`
	CanonicalHref string              `json:"canonical_href,omitempty"`
	Navigation    *browser.Navigation `json:"navigation,omitempty"`
}

type ShopHTTPRequest struct {
	TabID string `json:"tab_id"`
	Shop  string `json:"shop"`
}

type QuantityHTTPRequest struct {
	Quantity *int `json:"quantity"`
}

type AdjustHTTPRequest struct {
	Mode    string `json:"mode"`
	Amount  int    `json:"amount"`
	Confirm bool   `json:"confirm"`
}

type ThresholdHTTPRequest struct {
	Threshold *int `json:"threshold"`
}

type VariantView struct {
	ID              int64  `json:"id"`
	ProductTitle    string `json:"product_title"`
	VariantTitle    string `json:"variant_title"`
	SKU             string `json:"sku"`
	Quantity        int    `json:"quantity"`
	TrackingEnabled bool   `json:"tracking_enabled"`
	InFlight        bool   `json:"in_flight,omitempty"`
}

type CSVRowView struct {
	Line              int          `json:"line"`
	SKU               string       `json:"sku"`
	RequestedQuantity int          `json:"requested_quantity"`
	Status            string       `json:"status"`
	Match             *VariantView `json:"match,omitempty"`
}

type CSVHTTPResponse struct {
	Rows    []CSVRowView         `json:"rows"`
	Skipped int                  `json:"skipped"`
	Report  *service.BatchReport `json:"report,omitempty"`
}

type DashboardHTTPResponse struct {
	Threshold int           `json:"threshold"`
	Stats     service.Stats `json:"stats"`
	LowOrOut  []VariantView `json:"low_or_out"`
	Rows      []VariantView `json:"rows"`
}

func NewHTTPHandler(registry *panel.Registry, tabs port.TabStore, deps panel.Deps, frameAncestors string) *HTTPHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		registry:       registry,
		tabs:           tabs,
		deps:           deps,
		frameAncestors: frameAncestors,
		logger:         logger.Named("http"),
	}
}

// Router mounts the panel API.
func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(h.frameHeaders)

	r.Get("/health", h.HealthCheck)

	r.Route("/panel", func(r chi.Router) {
		r.Post("/boot", h.Boot)
		r.Post("/shop", h.SubmitShop)
		r.Get("/csv/template", h.CSVTemplate)

		r.Route("/pages/{pageID}", func(r chi.Router) {
			r.Get("/variants", h.ListVariants)
			r.Get("/dashboard", h.Dashboard)
			r.Put("/threshold", h.SetThreshold)
			r.Put("/variants/{variantID}/quantity", h.SetQuantity)
			r.Post("/variants/{variantID}/adjust", h.Adjust)
			r.Get("/search", h.Search)
			r.Post("/csv", h.ParseCSV)
			r.Post("/csv/apply", h.ApplyCSV)
		})
	})

	return r
}

func (h *HTTPHandler) frameHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.frameAncestors != "" {
			w.Header().Set("Content-Security-Policy", h.frameAncestors)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *HTTPHandler) Boot(w http.ResponseWriter, r *http.Request) {
	var req BootHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid request body"})
		return
	}

	window, err := browser.NewWindow(req.Href, req.Embedded)
	if err != nil || req.Href == "" {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid href"})
		return
	}
	if req.TabID == "" {
		req.TabID = uuid.NewString()
	}

	nav := &browser.RecordingNavigator{}
	page := panel.Boot(r.Context(), h.deps, req.TabID, window, h.tabs.ForTab(req.TabID), nav)

	resp := BootHTTPResponse{
		TabID:         req.TabID,
		Shop:          page.Resolution.Shop,
		Host:          page.Resolution.Host,
		HostSource:    string(page.Resolution.HostSource),
		Embedded:      page.Embedded,
		Redirected:    page.Redirected,
		CanonicalHref: page.CanonicalHref,
	}
	if navs := nav.Drain(); len(navs) > 0 {
		resp.Navigation = &navs[len(navs)-1]
	}
	if !page.Redirected {
		h.registry.Add(page)
		resp.PageID = page.ID
		resp.Bridge = page.Bridge.Get() != nil
	}

	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Message: "booted", Data: resp})
}

func (h *HTTPHandler) SubmitShop(w http.ResponseWriter, r *http.Request) {
	var req ShopHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TabID == "" {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid request body"})
		return
	}

	nav := &browser.RecordingNavigator{}
	coord := service.NewRedirectCoordinator(h.deps.APIBaseURL, h.tabs.ForTab(req.TabID), nav, h.logger)
	if _, err := coord.SubmitShop(r.Context(), req.Shop); err != nil {
		if errors.Is(err, service.ErrShopRequired) {
			writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "shop is required"})
			return
		}
		h.logger.Error("submit shop failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, PanelResponse{Message: "internal error"})
		return
	}

	navs := nav.Drain()
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Message: "redirecting", Data: navs[len(navs)-1]})
}

func (h *HTTPHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Data: viewsOf(page, page.Catalog.Snapshot())})
}

func (h *HTTPHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	ov := page.Dashboard.Overview(r.Context(), service.ParseFilter(q.Get("filter")), q.Get("q"))
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Data: DashboardHTTPResponse{
		Threshold: ov.Threshold,
		Stats:     ov.Stats,
		LowOrOut:  viewsOf(page, ov.LowOrOut),
		Rows:      viewsOf(page, ov.Rows),
	}})
}

func (h *HTTPHandler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	page, ok := h.readyPage(w, r)
	if !ok {
		return
	}

	var req ThresholdHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid request body"})
		return
	}
	if err := page.Dashboard.SetThreshold(r.Context(), *req.Threshold); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Message: "threshold saved", Data: *req.Threshold})
}

func (h *HTTPHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}
	id, ok := variantID(w, r)
	if !ok {
		return
	}

	var req QuantityHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid request body"})
		return
	}

	v, err := page.Editor.Apply(r.Context(), id, *req.Quantity)
	h.writeVariantResult(w, page, v, err, "stock updated")
}

func (h *HTTPHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}
	id, ok := variantID(w, r)
	if !ok {
		return
	}

	var req AdjustHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid request body"})
		return
	}
	mode := service.AdjustMode(strings.ToLower(req.Mode))
	if mode != service.AdjustUp && mode != service.AdjustDown {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "mode must be up or down"})
		return
	}

	v, err := page.Editor.Adjust(r.Context(), id, mode, req.Amount, req.Confirm)
	h.writeVariantResult(w, page, v, err, "stock updated")
}

func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}
	matches := page.Catalog.Search(r.URL.Query().Get("q"), searchLimit)
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Data: viewsOf(page, matches)})
}

func (h *HTTPHandler) ParseCSV(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}
	report, ok := h.parseUpload(w, r, page)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Data: CSVHTTPResponse{
		Rows:    rowViews(report.Rows),
		Skipped: report.Skipped,
	}})
}

// ApplyCSV parses the upload again and applies it, so the preview and the
// applied batch always come from the same text.
func (h *HTTPHandler) ApplyCSV(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadedPage(w, r)
	if !ok {
		return
	}
	report, ok := h.parseUpload(w, r, page)
	if !ok {
		return
	}

	applied := page.Batch.Apply(r.Context(), report.Rows)
	summary := service.Summarize(applied)
	writeJSON(w, http.StatusOK, PanelResponse{
		Success: summary.Errors == 0,
		Message: "batch applied",
		Data: CSVHTTPResponse{
			Rows:    rowViews(applied),
			Skipped: report.Skipped,
			Report:  &summary,
		},
	})
}

func (h *HTTPHandler) CSVTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+templateName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, service.CSVTemplate)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pages": h.registry.Len()})
}

func (h *HTTPHandler) parseUpload(w http.ResponseWriter, r *http.Request, page *panel.Page) (service.ParseReport, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCSVBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, PanelResponse{Message: "upload too large"})
		return service.ParseReport{}, false
	}

	report := page.Batch.ParseWithReport(string(body))
	if report.Err != nil {
		h.writeError(w, report.Err)
		return service.ParseReport{}, false
	}
	return report, true
}

func (h *HTTPHandler) readyPage(w http.ResponseWriter, r *http.Request) (*panel.Page, bool) {
	page, err := h.registry.Get(chi.URLParam(r, "pageID"))
	if err == nil {
		err = page.Ready()
	}
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return page, true
}

// loadedPage is readyPage plus a first-use variant load.
func (h *HTTPHandler) loadedPage(w http.ResponseWriter, r *http.Request) (*panel.Page, bool) {
	page, ok := h.readyPage(w, r)
	if !ok {
		return nil, false
	}
	if err := page.Catalog.EnsureLoaded(r.Context()); err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return page, true
}

func (h *HTTPHandler) writeVariantResult(w http.ResponseWriter, page *panel.Page, v domain.Variant, err error, message string) {
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("variant update failed", zap.Int64("variant_id", v.ID), zap.Error(err))
		}
		resp := PanelResponse{Message: msg}
		if v.ID != 0 {
			resp.Data = viewOf(page, v)
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, PanelResponse{Success: true, Message: message, Data: viewOf(page, v)})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, PanelResponse{Message: msg})
}

func statusFor(err error) (int, string) {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, panel.ErrPageNotFound):
		return http.StatusNotFound, "page not found"
	case errors.Is(err, panel.ErrPageRedirected):
		return http.StatusGone, "page was redirected"
	case errors.Is(err, service.ErrIdentityMissing):
		return http.StatusBadRequest, "shop missing"
	case errors.Is(err, service.ErrVariantNotFound):
		return http.StatusNotFound, "variant not found"
	case errors.Is(err, service.ErrNotTracked):
		return http.StatusUnprocessableEntity, "inventory tracking disabled"
	case errors.Is(err, service.ErrUpdateInFlight):
		return http.StatusConflict, "update already in flight"
	case errors.Is(err, service.ErrBelowZero):
		return http.StatusPreconditionRequired, "confirm to go below zero"
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "amount must be positive"
	case errors.Is(err, service.ErrInvalidThreshold):
		return http.StatusBadRequest, "threshold must be between 0 and 999"
	case errors.Is(err, service.ErrInvalidHeader):
		return http.StatusBadRequest, "csv header must be sku,qty"
	case errors.Is(err, service.ErrUpdateFailed),
		errors.Is(err, api.ErrTransport),
		errors.As(err, &statusErr):
		return http.StatusBadGateway, "upstream request failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func variantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, PanelResponse{Message: "invalid variant id"})
		return 0, false
	}
	return id, true
}

func viewOf(page *panel.Page, v domain.Variant) VariantView {
	return VariantView{
		ID:              v.ID,
		ProductTitle:    v.ProductTitle,
		VariantTitle:    v.VariantTitle,
		SKU:             v.SKU,
		Quantity:        v.Quantity,
		TrackingEnabled: v.TrackingEnabled,
		InFlight:        page.Catalog.InFlight(v.ID),
	}
}

func viewsOf(page *panel.Page, variants []domain.Variant) []VariantView {
	out := make([]VariantView, 0, len(variants))
	for _, v := range variants {
		out = append(out, viewOf(page, v))
	}
	return out
}

func rowViews(rows []domain.CSVRow) []CSVRowView {
	out := make([]CSVRowView, 0, len(rows))
	for _, row := range rows {
		view := CSVRowView{
			Line:              row.Line,
			SKU:               row.SKU,
			RequestedQuantity: row.RequestedQuantity,
			Status:            string(row.Status),
		}
		if row.Match != nil {
			m := row.Match
			view.Match = &VariantView{
				ID:              m.ID,
				ProductTitle:    m.ProductTitle,
				VariantTitle:    m.VariantTitle,
				SKU:             m.SKU,
				Quantity:        m.Quantity,
				TrackingEnabled: m.TrackingEnabled,
			}
		}
		out = append(out, view)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
