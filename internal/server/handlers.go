package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hyperjump/wislaw/internal/config"
	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/search"
	"github.com/hyperjump/wislaw/internal/storage"
	"go.uber.org/zap"
)

const maxRequestBytes = 1 << 20

// msgNoRelevantDocuments is the 404 body text for an empty retrieval.
const msgNoRelevantDocuments = "No relevant documents found for this query."

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrievalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("retrieve request",
		zap.String("question", req.Question),
		zap.String("doc_type_filter", req.DocTypeFilter),
		zap.Int("n_results", req.NResults))

	rs, err := s.engine.Retrieve(r.Context(), &req)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, models.RetrievalResponse{Results: rs})
	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, index.ErrMalformedFilter):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrNoRelevantDocuments):
		s.respondError(w, http.StatusNotFound, msgNoRelevantDocuments)
	case errors.Is(err, index.ErrIndexUnavailable):
		s.logger.Error("retrieve: index unavailable", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "similarity index unavailable")
	default:
		s.logger.Error("retrieve failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Passages  int            `json:"passages"`
	Sources   *int           `json:"sources,omitempty"`
	Backend   string         `json:"backend"`
	Config    statusConfig   `json:"config"`
	DiskUsage *storage.Usage `json:"disk_usage,omitempty"`
}

type statusConfig struct {
	EmbeddingProvider   string  `json:"embedding_provider"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	OverfetchFactor     int     `json:"overfetch_factor"`
	MaxCrossRefs        int     `json:"max_cross_refs"`
	CitationBoost       float64 `json:"citation_boost"`
	KeywordBoost        float64 `json:"keyword_boost"`
	MaxBoost            float64 `json:"max_boost"`
	DatabasePath        string  `json:"database_path,omitempty"`
	QdrantURL           string  `json:"qdrant_url,omitempty"`
	QdrantCollection    string  `json:"qdrant_collection,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.index.Count(ctx)
	if err != nil {
		s.logger.Error("status: count passages failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, index.ErrIndexUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, status, err.Error())
		return
	}

	searchCfg := s.engine.Config()
	resp := statusResponse{
		Passages: count,
		Backend:  s.config.Index.Backend,
		Config: statusConfig{
			EmbeddingProvider:   s.config.Embedding.Provider,
			EmbeddingDimensions: s.config.Embedding.Dimensions,
			OverfetchFactor:     searchCfg.OverfetchFactor,
			MaxCrossRefs:        searchCfg.CrossRefLimit(),
			CitationBoost:       searchCfg.Ranking.CitationBoost,
			KeywordBoost:        searchCfg.Ranking.KeywordBoost,
			MaxBoost:            searchCfg.Ranking.MaxBoost,
			DatabasePath:        s.config.Storage.DatabasePath,
		},
	}
	if s.config.Index.Backend == config.BackendQdrant {
		resp.Config.QdrantURL = s.config.Index.Qdrant.URL
		resp.Config.QdrantCollection = s.config.Index.Qdrant.Collection
	} else {
		usage, err := storage.MeasureUsage(map[string]string{
			"database":       s.config.Storage.DatabasePath,
			"metadata_index": s.config.Storage.MetadataIndexPath,
			"vector_index":   s.config.Storage.VectorIndexPath,
		})
		if err != nil {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		} else {
			resp.DiskUsage = usage
		}
	}
	if s.loader != nil {
		sources, err := s.loader.Sources(ctx)
		if err != nil {
			s.logger.Warn("status: list sources failed", zap.Error(err))
		} else {
			n := len(sources)
			resp.Sources = &n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSourcesList(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		s.respondError(w, http.StatusNotImplemented, "source loading not enabled")
		return
	}
	sources, err := s.loader.Sources(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sources == nil {
		sources = []*storage.Source{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

type pathRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleSourcesAdd(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		s.respondError(w, http.StatusNotImplemented, "source loading not enabled")
		return
	}
	abs, info, ok := s.statRequestPath(w, r)
	if !ok {
		return
	}
	s.logger.Debug("load source request", zap.String("path", abs))
	var (
		n   int
		err error
	)
	if info.IsDir() {
		n, err = s.loader.IndexDirectory(r.Context(), abs)
	} else {
		n, err = s.loader.IndexFile(r.Context(), abs)
	}
	if err != nil {
		s.logger.Error("load source failed", zap.String("path", abs), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, index.ErrIndexUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"path": abs, "passages": n, "status": "loaded"})
}

func (s *Server) handleSourcesRemove(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		s.respondError(w, http.StatusNotImplemented, "source loading not enabled")
		return
	}
	abs, ok := s.pathFromQueryOrBody(w, r)
	if !ok {
		return
	}
	s.logger.Debug("remove source request", zap.String("path", abs))
	if err := s.loader.RemoveFile(r.Context(), abs); err != nil {
		s.logger.Error("remove source failed", zap.String("path", abs), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req pathRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	abs, info, ok := s.statPath(w, req.Path)
	if !ok {
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	abs, ok := s.pathFromQueryOrBody(w, r)
	if !ok {
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statRequestPath decodes {"path"} from the body and stats it.
func (s *Server) statRequestPath(w http.ResponseWriter, r *http.Request) (string, os.FileInfo, bool) {
	var req pathRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return "", nil, false
	}
	return s.statPath(w, req.Path)
}

func (s *Server) statPath(w http.ResponseWriter, path string) (string, os.FileInfo, bool) {
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return "", nil, false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return "", nil, false
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "path not found")
			return "", nil, false
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return "", nil, false
	}
	return abs, info, true
}

// pathFromQueryOrBody reads the path from ?path= or a {"path"} body.
func (s *Server) pathFromQueryOrBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" {
		var body pathRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return "", false
	}
	return abs, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
