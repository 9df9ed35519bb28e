package viewer

import (
	"context"
	"fmt"
	"math"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/gcode"
	"gcodeview/pkg/log"
)

// JSON-RPC 2.0 error codes
const (
	rpcParseError     = -32700
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

// maxBatchSize bounds the records per notify_gcode_batch notification.
const maxBatchSize = 100000

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string { return e.Message }

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// batchParams is the payload of notify_gcode_batch.
type batchParams struct {
	RequestID any              `json:"request_id"`
	Offset    int              `json:"offset"`
	Records   []gcode.Envelope `json:"records"`
}

func invalidParams(format string, args ...any) *jsonRPCError {
	return &jsonRPCError{Code: rpcInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// dispatch runs one websocket request.
func (s *Server) dispatch(ctx context.Context, c *wsClient, req *jsonRPCRequest) (any, error) {
	switch req.Method {
	case "server.info":
		return s.serverInfo(), nil
	case "server.connection.identify":
		name, _ := req.Params["client_name"].(string)
		s.logger.WithFields(log.Fields{"client": c.id, "name": name}).Debug("client identified")
		return map[string]any{"connection_id": c.id}, nil
	case "gcode.process":
		return s.methodProcess(ctx, c, req)
	case "server.files.list":
		if s.files == nil {
			return nil, &jsonRPCError{Code: rpcServerError, Message: "file storage is disabled"}
		}
		return s.files.List()
	case "server.history.list":
		limit, err := intParam(req.Params, "limit", 0)
		if err != nil {
			return nil, err
		}
		start, err := intParam(req.Params, "start", 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"count": s.history.Totals().TotalJobs,
			"jobs":  s.history.List(limit, start),
		}, nil
	case "server.history.totals":
		return map[string]any{"job_totals": s.history.Totals()}, nil
	}
	return nil, &jsonRPCError{Code: rpcMethodNotFound, Message: "method not found: " + req.Method}
}

// methodProcess parses {content} or a stored {filename}, streaming records
// in notify_gcode_batch notifications of batch_size records. The reply
// carries the summary once every batch has been queued.
func (s *Server) methodProcess(ctx context.Context, c *wsClient, req *jsonRPCRequest) (any, error) {
	content, hasContent := req.Params["content"].(string)
	filename, _ := req.Params["filename"].(string)
	slicerName, _ := req.Params["slicer"].(string)
	batchSize, err := intParam(req.Params, "batch_size", s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 || batchSize > maxBatchSize {
		return nil, invalidParams("batch_size must be between 1 and %d", maxBatchSize)
	}

	pr := parseRequest{Filename: filename, Content: []byte(content), Slicer: slicerName}
	if !hasContent {
		if filename == "" {
			return nil, invalidParams("content or filename is required")
		}
		data, release, err := s.openStored(filename)
		if err != nil {
			return nil, err
		}
		defer release()
		pr.Content = data
	}

	batch := make([]gcode.Envelope, 0, batchSize)
	offset, total := 0, 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		msg := notification{
			JSONRPC: "2.0",
			Method:  "notify_gcode_batch",
			Params:  []any{batchParams{RequestID: req.ID, Offset: offset, Records: batch}},
		}
		if err := c.SendWait(ctx, msg); err != nil {
			return err
		}
		offset += len(batch)
		batch = make([]gcode.Envelope, 0, batchSize)
		return nil
	}
	pr.Sink = func(rec gcode.Record) error {
		batch = append(batch, gcode.Wrap(rec))
		total++
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	}

	res, jobID, err := s.parse(ctx, pr)
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return map[string]any{
		"job_id":  jobID,
		"records": total,
		"summary": res.Summary,
	}, nil
}

// intParam reads an integer parameter; JSON numbers arrive as float64.
func intParam(params map[string]any, key string, fallback int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	f, ok := v.(float64)
	if !ok || math.Abs(f) > 1<<53 || f != math.Trunc(f) {
		return 0, invalidParams("%s must be an integer", key)
	}
	return int(f), nil
}

// rpcError converts err for a response.
func rpcError(err error) *jsonRPCError {
	if e, ok := err.(*jsonRPCError); ok {
		return e
	}
	if errors.Is(err, errors.ErrGCodeParse) {
		return &jsonRPCError{Code: rpcInvalidParams, Message: err.Error()}
	}
	return &jsonRPCError{Code: rpcServerError, Message: err.Error()}
}
