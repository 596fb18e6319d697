package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
	"github.com/duomem/duomem-go/pkg/protocol"
)

type ingestRequest struct {
	Text     string                 `json:"text" validate:"required"`
	OwnerID  string                 `json:"owner_id" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

type searchRequest struct {
	Query    string                 `json:"query" validate:"required"`
	OwnerID  string                 `json:"owner_id" validate:"required"`
	Limit    int                    `json:"limit" validate:"omitempty,gte=1,lte=100"`
	MinScore float64                `json:"min_score" validate:"omitempty,gte=0,lte=1"`
	Filters  map[string]interface{} `json:"filters"`
}

type updateRequest struct {
	Text     string                 `json:"text" validate:"required"`
	OwnerID  string                 `json:"owner_id" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"status":        "ok",
		"graph_enabled": s.engine.GraphEnabled(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	opts := []core.IngestOption{core.WithOwnerID(req.OwnerID)}
	if req.Metadata != nil {
		opts = append(opts, core.WithMetadata(req.Metadata))
	}
	result, err := s.engine.Ingest(r.Context(), protocol.SanitizeText(req.Text), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	opts := []core.SearchOption{
		core.WithOwnerIDForSearch(req.OwnerID),
		core.WithLimit(req.Limit),
		core.WithMinScore(req.MinScore),
	}
	if req.Filters != nil {
		opts = append(opts, core.WithFilters(req.Filters))
	}
	result, err := s.engine.Search(r.Context(), protocol.SanitizeText(req.Query), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"results":           result.Hits,
		"graph_unavailable": result.GraphUnavailable,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	fact, err := s.engine.Get(r.Context(), id, core.WithOwnerIDForGet(r.URL.Query().Get("owner_id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"fact":    fact,
	})
}

func (s *Server) handleGetAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	facts, err := s.engine.GetAll(r.Context(),
		core.WithOwnerIDForGetAll(q.Get("owner_id")),
		core.WithLimitForGetAll(limit),
		core.WithOffsetForGetAll(offset),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"facts":   facts,
		"count":   len(facts),
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	opts := []core.UpdateOption{core.WithOwnerIDForUpdate(req.OwnerID)}
	if req.Metadata != nil {
		opts = append(opts, core.WithMetadataForUpdate(req.Metadata))
	}
	result, err := s.engine.Update(r.Context(), id, protocol.SanitizeText(req.Text), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Delete(r.Context(), id, core.WithOwnerIDForDelete(r.URL.Query().Get("owner_id"))); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": id,
	})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if err := s.engine.DeleteAll(r.Context(), core.WithOwnerIDForDeleteAll(ownerID)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	relations, err := s.engine.Relations(r.Context(), q.Get("owner_id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"relations": relations,
		"count":     len(relations),
	})
}

// decodeAndValidate reads the JSON body into v and runs struct validation.
// It writes the error response itself and reports whether to proceed.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"kind": string(core.KindValidationError), "message": "malformed JSON body"},
		})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"kind": string(core.KindValidationError), "message": err.Error()},
		})
		return false
	}
	return true
}

// pathID parses the {id} path parameter.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"kind": string(core.KindValidationError), "message": "invalid fact id"},
		})
		return 0, false
	}
	return id, true
}

// writeError maps an engine error kind onto an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case core.KindValidationError, core.KindDecodeError:
		status = http.StatusBadRequest
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"kind":    string(kind),
			"message": protocol.SanitizeText(err.Error()),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
