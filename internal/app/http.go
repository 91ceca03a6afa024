package app

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"orgsearch/internal/batch"
	"orgsearch/internal/search"
	"orgsearch/internal/store"
)

const maxUploadBytes = 2 << 20

// Server exposes the service over HTTP.
type Server struct {
	app    *App
	router *httprouter.Router
	server *http.Server
}

// NewServer builds the router and binds all routes.
func NewServer(a *App) *Server {
	s := &Server{app: a, router: httprouter.New()}

	s.router.GET("/healthz", s.handleHealth)

	s.router.POST("/search", s.auth(s.handleSearch))
	s.router.POST("/scrape", s.auth(s.handleScrape))

	s.router.GET("/whitelist", s.auth(s.handleGetList(store.ListWhitelist)))
	s.router.POST("/whitelist", s.auth(s.handleSetList(store.ListWhitelist)))
	s.router.GET("/blacklist", s.auth(s.handleGetList(store.ListBlacklist)))
	s.router.POST("/blacklist", s.auth(s.handleSetList(store.ListBlacklist)))

	s.router.GET("/settings", s.auth(s.handleGetSettings))
	s.router.POST("/settings", s.auth(s.handleUpdateSettings))

	s.router.GET("/logs", s.auth(s.handleListLogs))
	s.router.GET("/logs/:id", s.auth(s.handleGetLog))
	s.router.GET("/scrape/logs", s.auth(s.handleListScrapeLogs))

	s.router.POST("/bulk-search", s.auth(s.handleBulkSearch))
	s.router.GET("/bulk-search/:id", s.auth(s.handleBulkSearchStatus))
	s.router.POST("/bulk-scrape", s.auth(s.handleBulkScrape))
	s.router.POST("/bulk-scrape/upload", s.auth(s.handleBulkScrapeUpload))

	s.server = &http.Server{
		Addr:              a.Cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("http: listening")
	return s.server.ListenAndServe()
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// auth enforces the X-Token header when a token is configured.
func (s *Server) auth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := s.app.Cfg.APIToken
		if token != "" {
			got := r.Header.Get("X-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusForbidden, "invalid token")
				return
			}
		}
		next(w, r, ps)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.app.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query     string   `json:"query"`
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	resp, err := s.app.RunSearch(r.Context(), req.Query, req.Whitelist, req.Blacklist)
	if err != nil {
		if errors.Is(err, search.ErrAllProvidersFailed) {
			writeError(w, http.StatusBadGateway, "all search providers failed")
			return
		}
		log.Error().Err(err).Str("query", req.Query).Msg("http: search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type scrapeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req scrapeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}
	ext := s.app.Extractor.Extract(r.Context(), req.URL)
	if ext.Status == "success" {
		if err := s.app.Store.StorePage(r.Context(), store.Page{
			URL:       req.URL,
			Title:     ext.Metadata.Title,
			Content:   ext.Content,
			WordCount: ext.Metadata.WordCount,
			Method:    ext.Metadata.ExtractionMethod,
		}); err != nil {
			log.Error().Err(err).Str("url", req.URL).Msg("http: page store failed")
		}
	}
	writeJSON(w, http.StatusOK, ext)
}

type listPayload struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleGetList(kind string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		urls, err := s.app.Store.GetList(r.Context(), kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list read failed")
			return
		}
		if urls == nil {
			urls = []string{}
		}
		writeJSON(w, http.StatusOK, listPayload{URLs: urls})
	}
}

func (s *Server) handleSetList(kind string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req listPayload
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.app.Store.ReplaceList(r.Context(), kind, req.URLs); err != nil {
			writeError(w, http.StatusInternalServerError, "list write failed")
			return
		}
		urls, err := s.app.Store.GetList(r.Context(), kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list read failed")
			return
		}
		if urls == nil {
			urls = []string{}
		}
		writeJSON(w, http.StatusOK, listPayload{URLs: urls})
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	settings, err := s.app.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "settings read failed")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	settings, err := s.app.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "settings read failed")
		return
	}
	// Partial updates: absent fields keep their current values.
	if err := decodeBody(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.Store.UpdateSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	page, perPage := pagination(r)
	logs, total, err := s.app.Store.ListSearchLogs(r.Context(), page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "log read failed")
		return
	}
	if logs == nil {
		logs = []store.SearchLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs": logs, "total": total, "page": page, "per_page": perPage,
	})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	st, err := s.app.Batch.GetStatus(r.Context(), ps.ByName("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "process not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "log read failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListScrapeLogs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	page, perPage := pagination(r)
	logs, total, err := s.app.Store.ListScrapeLogs(r.Context(), page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "log read failed")
		return
	}
	if logs == nil {
		logs = []store.ScrapeLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs": logs, "total": total, "page": page, "per_page": perPage,
	})
}

type bulkSearchRequest struct {
	Queries   []batch.Item `json:"queries"`
	Whitelist []string     `json:"whitelist"`
	Blacklist []string     `json:"blacklist"`
}

func (s *Server) handleBulkSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req bulkSearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.app.Batch.StartSearch(r.Context(), req.Queries, req.Whitelist, req.Blacklist)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"process_id": id, "status": store.StatusStarted,
	})
}

const bulkSearchTemplate = "query,whitelist,blacklist\n" +
	"Example Health Center - Springfield IL,examplehealth.org;example.org,badsite.com\n"

func (s *Server) handleBulkSearchStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "template" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="bulk-search-template.csv"`)
		io.WriteString(w, bulkSearchTemplate)
		return
	}
	st, err := s.app.Batch.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "process not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "status read failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type bulkScrapeRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleBulkScrape(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req bulkScrapeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.app.Batch.StartScrape(r.Context(), req.URLs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"process_id": id, "status": store.StatusStarted,
	})
}

// handleBulkScrapeUpload accepts a CSV file whose first column holds URLs.
// A header row named "url" is skipped.
func (s *Server) handleBulkScrapeUpload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer f.Close()

	reader := csv.NewReader(io.LimitReader(f, maxUploadBytes))
	reader.FieldsPerRecord = -1
	var urls []string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid csv: %v", err))
			return
		}
		if len(rec) == 0 {
			continue
		}
		u := strings.TrimSpace(rec[0])
		if u == "" || strings.EqualFold(u, "url") {
			continue
		}
		urls = append(urls, u)
	}
	id, err := s.app.Batch.StartScrape(r.Context(), urls)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"process_id": id, "status": store.StatusStarted, "urls": len(urls),
	})
}

func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("http: response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
