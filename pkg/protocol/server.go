package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
)

// Protocol method names.
const (
	MethodIngest    = "memory.ingest"
	MethodSearch    = "memory.search"
	MethodGet       = "memory.get"
	MethodGetAll    = "memory.get_all"
	MethodUpdate    = "memory.update"
	MethodDelete    = "memory.delete"
	MethodDeleteAll = "memory.delete_all"
	MethodRelations = "graph.relations"
	MethodPing      = "ping"
)

// Server runs the line protocol: a read loop on the input channel with
// concurrent per-request dispatch into the engine.
//
// Responses may complete out of request order, but for a given correlation
// id exactly one response is emitted, and every write to the output channel
// goes through the framer's single-writer lock.
type Server struct {
	engine *core.Engine
	framer *Framer
	logger *zap.Logger

	wg sync.WaitGroup

	brokenOnce sync.Once
	broken     chan struct{}
	brokenErr  error
}

// NewServer creates a protocol server over the given framer.
func NewServer(engine *core.Engine, framer *Framer, logger *zap.Logger) *Server {
	return &Server{
		engine: engine,
		framer: framer,
		logger: logger,
		broken: make(chan struct{}),
	}
}

// Run reads and dispatches requests until the input channel is exhausted,
// the context is canceled, or the output channel breaks.
//
// A malformed line produces a decode_error response and the loop continues;
// only a broken channel terminates the server with an error.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-s.broken:
			s.wg.Wait()
			return s.brokenErr
		default:
		}

		line, err := s.framer.ReadLine()
		if err == io.EOF {
			s.wg.Wait()
			return nil
		}
		if errors.Is(err, ErrLineTooLong) {
			s.logger.Warn("oversized inbound message dropped", zap.Error(err))
			s.writeResponse(ErrorResponse(nil, err))
			continue
		}
		if err != nil {
			s.wg.Wait()
			return err
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		s.wg.Add(1)
		go func(line []byte) {
			defer s.wg.Done()
			s.handle(ctx, line)
		}(line)
	}
}

// handle processes one inbound line and writes exactly one response.
func (s *Server) handle(ctx context.Context, line []byte) {
	req, err := DecodeRequest(line)
	if err != nil {
		s.logger.Warn("malformed inbound message", zap.Error(err))
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		s.writeResponse(ErrorResponse(id, err))
		return
	}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		s.writeResponse(ErrorResponse(req.ID, err))
		return
	}
	s.writeResponse(ResultResponse(req.ID, result))
}

// writeResponse emits a response on the primary channel. A write failure is
// the fatal path: it is recorded once and the read loop shuts down.
func (s *Server) writeResponse(resp *Response) {
	if err := s.framer.WriteMessage(resp); err != nil {
		s.brokenOnce.Do(func() {
			s.brokenErr = core.NewEngineError("WriteMessage", core.KindChannelBroken, err)
			close(s.broken)
		})
		s.logger.Error("primary channel broken", zap.Error(err))
	}
}

type ingestParams struct {
	Text     string                 `json:"text"`
	OwnerID  string                 `json:"owner_id"`
	Metadata map[string]interface{} `json:"metadata"`
}

type searchParams struct {
	Query    string                 `json:"query"`
	OwnerID  string                 `json:"owner_id"`
	Limit    int                    `json:"limit"`
	MinScore float64                `json:"min_score"`
	Filters  map[string]interface{} `json:"filters"`
}

type getParams struct {
	ID      int64  `json:"id"`
	OwnerID string `json:"owner_id"`
}

type getAllParams struct {
	OwnerID string `json:"owner_id"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

type updateParams struct {
	ID       int64                  `json:"id"`
	Text     string                 `json:"text"`
	OwnerID  string                 `json:"owner_id"`
	Metadata map[string]interface{} `json:"metadata"`
}

type relationsParams struct {
	OwnerID string `json:"owner_id"`
	Limit   int    `json:"limit"`
}

// dispatch routes a decoded request to the engine.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, error) {
	switch req.Method {
	case MethodIngest:
		var p ingestParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		opts := []core.IngestOption{core.WithOwnerID(p.OwnerID)}
		if p.Metadata != nil {
			opts = append(opts, core.WithMetadata(p.Metadata))
		}
		return s.engine.Ingest(ctx, SanitizeText(p.Text), opts...)

	case MethodSearch:
		var p searchParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		opts := []core.SearchOption{
			core.WithOwnerIDForSearch(p.OwnerID),
			core.WithLimit(p.Limit),
			core.WithMinScore(p.MinScore),
		}
		if p.Filters != nil {
			opts = append(opts, core.WithFilters(p.Filters))
		}
		return s.engine.Search(ctx, SanitizeText(p.Query), opts...)

	case MethodGet:
		var p getParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.engine.Get(ctx, p.ID, core.WithOwnerIDForGet(p.OwnerID))

	case MethodGetAll:
		var p getAllParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.engine.GetAll(ctx,
			core.WithOwnerIDForGetAll(p.OwnerID),
			core.WithLimitForGetAll(p.Limit),
			core.WithOffsetForGetAll(p.Offset),
		)

	case MethodUpdate:
		var p updateParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		opts := []core.UpdateOption{core.WithOwnerIDForUpdate(p.OwnerID)}
		if p.Metadata != nil {
			opts = append(opts, core.WithMetadataForUpdate(p.Metadata))
		}
		return s.engine.Update(ctx, p.ID, SanitizeText(p.Text), opts...)

	case MethodDelete:
		var p getParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := s.engine.Delete(ctx, p.ID, core.WithOwnerIDForDelete(p.OwnerID)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": p.ID}, nil

	case MethodDeleteAll:
		var p relationsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := s.engine.DeleteAll(ctx, core.WithOwnerIDForDeleteAll(p.OwnerID)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted_all": true}, nil

	case MethodRelations:
		var p relationsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		relations, err := s.engine.Relations(ctx, p.OwnerID, p.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"relations": relations}, nil

	case MethodPing:
		return map[string]interface{}{"status": "ok"}, nil

	default:
		return nil, core.NewEngineError("dispatch", core.KindValidationError,
			fmt.Errorf("%w: unknown method %q", core.ErrInvalidInput, req.Method))
	}
}

// decodeParams unmarshals method parameters, mapping failures onto the
// validation kind.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return core.NewEngineError("dispatch", core.KindValidationError,
			fmt.Errorf("%w: missing params", core.ErrInvalidInput))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return core.NewEngineError("dispatch", core.KindValidationError,
			fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	return nil
}
