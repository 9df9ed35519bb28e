package viewer

import (
	"context"
	stderrors "errors"
	"time"

	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/gcode"
	"gcodeview/pkg/log"
	"gcodeview/pkg/processor"
	"gcodeview/pkg/slicer"
)

// job outcomes in the parse history
const (
	statusCompleted = "completed"
	statusCancelled = "cancelled"
	statusError     = "error"
)

// parseRequest is one parse asked for over HTTP or the websocket.
type parseRequest struct {
	Filename string
	Content  []byte
	Slicer   string

	// Sink receives records instead of collecting them when set.
	Sink func(gcode.Record) error
}

// resolveSlicer picks the classifier: an explicit name, else the machine
// profile, else detection from the head of the file.
func resolveSlicer(name string, content []byte, profile *config.MachineConfig) (slicer.Kind, error) {
	if name != "" && name != config.SlicerAuto {
		kind, err := slicer.ParseKind(name)
		if err != nil {
			return slicer.Generic, errors.Wrap(err, errors.ErrGCodeParse, "bad slicer parameter")
		}
		return kind, nil
	}
	if kind, ok := profile.SlicerKind(); ok {
		return kind, nil
	}
	head := content
	if len(head) > slicer.DetectWindow {
		head = head[:slicer.DetectWindow]
	}
	return slicer.Detect(string(head)), nil
}

// parse runs one request with a fresh machine state and records it in the
// history.
func (s *Server) parse(ctx context.Context, req parseRequest) (*processor.Result, string, error) {
	profile := s.profile()
	kind, err := resolveSlicer(req.Slicer, req.Content, profile)
	if err != nil {
		return nil, "", err
	}

	opts := []processor.Option{
		processor.WithSlicer(kind),
		processor.WithSetup(profile.Apply),
	}
	if s.cfg.Metrics != nil {
		opts = append(opts, processor.WithMetrics(s.cfg.Metrics))
	}
	if req.Sink != nil {
		opts = append(opts, processor.WithRecordSink(req.Sink))
	}

	job := ParseJob{
		JobID:     newJobID(),
		Filename:  req.Filename,
		Slicer:    kind.String(),
		StartTime: float64(time.Now().UnixNano()) / 1e9,
	}
	start := time.Now()
	res, err := processor.New(opts...).ProcessBytes(ctx, req.Content)
	job.Duration = time.Since(start).Seconds()

	switch {
	case err == nil:
		job.Status = statusCompleted
		job.Lines = res.Summary.Lines
		job.Moves = res.Summary.Moves
		job.Arcs = res.Summary.Arcs
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		job.Status = statusCancelled
		job.Error = err.Error()
	default:
		job.Status = statusError
		job.Error = err.Error()
	}
	s.history.Add(job)

	s.logger.WithFields(log.Fields{
		"job":      job.JobID,
		"file":     job.Filename,
		"slicer":   job.Slicer,
		"status":   job.Status,
		"duration": job.Duration,
	}).Info("parse finished")

	return res, job.JobID, err
}
