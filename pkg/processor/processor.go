// Package processor runs the G-code interpreter over a whole file.
//
// It numbers lines, tracks byte offsets, lets the slicer classifier read the
// file's trailing configuration block, and collects the records and a
// summary. Parses are cancelable through their context.
package processor

import (
	"context"
	"time"

	"gcodeview/pkg/gcode"
	"gcodeview/pkg/log"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/slicer"
)

// DefaultCheckInterval is how many lines run between cancellation checks.
const DefaultCheckInterval = 4096

// Option configures a Processor.
type Option func(*Processor)

// WithState parses into st instead of a fresh state per call. The state is
// then carried over between calls.
func WithState(st *machine.State) Option {
	return func(p *Processor) { p.state = st }
}

// WithSlicer selects the classifier for fresh states.
func WithSlicer(kind slicer.Kind) Option {
	return func(p *Processor) { p.slicer = kind }
}

// WithSetup adjusts every fresh state before parsing, e.g. to apply a
// machine profile.
func WithSetup(fn func(*machine.State)) Option {
	return func(p *Processor) { p.setup = append(p.setup, fn) }
}

// WithLogger replaces the component logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetrics records every parse in pm.
func WithMetrics(pm *metrics.ParseMetrics) Option {
	return func(p *Processor) { p.metrics = pm }
}

// WithProgress calls fn with the lines done so far and the total at every
// cancellation check and once at the end.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Processor) { p.progress = fn }
}

// WithCheckInterval sets the cancellation check interval in lines.
func WithCheckInterval(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.checkInterval = n
		}
	}
}

// WithRecordSink streams records to fn instead of collecting them in the
// result. Result.Records is then nil.
func WithRecordSink(fn func(gcode.Record) error) Option {
	return func(p *Processor) { p.sink = fn }
}

// Processor parses whole files. It is safe for concurrent use unless
// WithState is given.
type Processor struct {
	state         *machine.State
	slicer        slicer.Kind
	setup         []func(*machine.State)
	logger        *log.Logger
	metrics       *metrics.ParseMetrics
	progress      func(done, total int)
	sink          func(gcode.Record) error
	checkInterval int
}

// New creates a processor.
func New(opts ...Option) *Processor {
	p := &Processor{checkInterval: DefaultCheckInterval}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.GetLogger("processor")
	}
	return p
}

// Result is the outcome of a parse.
type Result struct {
	Records []gcode.Record
	Summary Summary
	State   *machine.State
}

// Process parses content.
func (p *Processor) Process(ctx context.Context, content string) (*Result, error) {
	return run(ctx, p, content)
}

// ProcessBytes parses data, e.g. a memory-mapped file, without copying it
// into one string first.
func (p *Processor) ProcessBytes(ctx context.Context, data []byte) (*Result, error) {
	return run(ctx, p, data)
}

func (p *Processor) newState() *machine.State {
	if p.state != nil {
		return p.state
	}
	st := machine.NewState()
	st.SetSlicer(slicer.New(p.slicer))
	for _, fn := range p.setup {
		fn(st)
	}
	return st
}

// run is the driver loop shared by strings and byte slices.
func run[T string | []byte](ctx context.Context, p *Processor, content T) (_ *Result, err error) {
	start := time.Now()
	st := p.newState()
	total := countLines(content)
	sum := newSummary(st)

	if p.metrics != nil {
		done := p.metrics.Begin()
		defer func() {
			done()
			p.metrics.ObserveParse(sum.observation(time.Since(start), err))
		}()
	}

	if err := st.Slicer.ProcessHeader(tailLines(content, slicer.HeaderScanLines), st); err != nil {
		p.logger.WithError(err).WithField("slicer", st.Slicer.Name()).Warn("slicer header")
	}

	var records []gcode.Record
	if p.sink == nil {
		records = make([]gcode.Record, 0, total)
	}

	lineNo := 0
	var pos int64
	for begin := 0; begin <= len(content); lineNo++ {
		if lineNo%p.checkInterval == 0 && lineNo > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if p.progress != nil {
				p.progress(lineNo, total)
			}
		}

		end := begin
		for end < len(content) && content[end] != '\n' {
			end++
		}
		text := string(content[begin:end])

		st.LineNumber = lineNo
		st.FilePosition = pos
		rec := gcode.ProcessLine(st, text)
		if gcode.Extruding(rec) {
			st.MarkGCodeByte(pos)
		}
		sum.add(rec)

		if p.sink != nil {
			if err := p.sink(rec); err != nil {
				return nil, err
			}
		} else {
			records = append(records, rec)
		}

		pos += int64(len(text)) + 1
		begin = end + 1
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.progress != nil {
		p.progress(total, total)
	}

	sum.finish(st, time.Since(start))
	p.logger.WithFields(log.Fields{
		"lines":    sum.Lines,
		"moves":    sum.Moves,
		"slicer":   sum.Slicer,
		"duration": sum.Duration.String(),
	}).Debug("parse complete")

	return &Result{Records: records, Summary: *sum, State: st}, nil
}

// countLines is the number of records a parse produces: newlines plus one.
func countLines[T string | []byte](content T) int {
	n := 1
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			n++
		}
	}
	return n
}

// tailLines returns the last n lines of content, the trailing empty line
// included.
func tailLines[T string | []byte](content T, n int) []string {
	begin := len(content)
	found := 0
	for begin > 0 {
		if content[begin-1] == '\n' {
			found++
			if found == n {
				break
			}
		}
		begin--
	}

	lines := make([]string, 0, found+1)
	for {
		end := begin
		for end < len(content) && content[end] != '\n' {
			end++
		}
		lines = append(lines, string(content[begin:end]))
		if end >= len(content) {
			return lines
		}
		begin = end + 1
	}
}
