package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/brensch/dumpstats/internal/config"
	"github.com/brensch/dumpstats/internal/entity"
	"github.com/brensch/dumpstats/internal/processor"
)

// Phase names a step of the processor lifecycle.
type Phase string

const (
	PhaseSetUp       Phase = "setup"
	PhasePreProcess  Phase = "preprocess"
	PhaseProcess     Phase = "process"
	PhasePostProcess Phase = "postprocess"
	PhaseTearDown    Phase = "teardown"
	PhaseDone        Phase = "done"
)

// State is where a single processor is in its lifecycle.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateFailed  State = "failed"
	StateDone    State = "done"
)

// ProcessorFailure describes why a processor stopped. Record and EntityID are
// only set for failures while processing records.
type ProcessorFailure struct {
	Processor string
	Phase     Phase
	Record    int64
	EntityID  string
	Err       error
}

func (f *ProcessorFailure) Error() string {
	if f.Phase == PhaseProcess {
		return fmt.Sprintf("processor %s failed at record %d (%s): %v", f.Processor, f.Record, f.EntityID, f.Err)
	}
	return fmt.Sprintf("processor %s failed in %s: %v", f.Processor, f.Phase, f.Err)
}

func (f *ProcessorFailure) Unwrap() error { return f.Err }

// RecordSource yields entities until io.EOF.
type RecordSource interface {
	Next() (entity.Record, error)
}

// ProcessorStatus is the final state of one processor.
type ProcessorStatus struct {
	Name    string
	State   State
	Failure *ProcessorFailure
}

// Summary describes a finished run.
type Summary struct {
	Records    int64
	Processors []ProcessorStatus
	Failures   []*ProcessorFailure
	Elapsed    time.Duration
}

// Failed reports whether any processor failed.
func (s Summary) Failed() bool { return len(s.Failures) > 0 }

// Progress is a snapshot sent to a ProgressFunc.
type Progress struct {
	Phase          Phase
	Records        int64
	CompressedRead int64
	Rate           float64 // records per second
	Failed         []string
}

// ProgressFunc receives progress snapshots. It is called on the run goroutine.
type ProgressFunc func(Progress)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithProgressEvery sets the record interval between progress reports.
func WithProgressEvery(n int64) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.every = n
		}
	}
}

// WithProgressFunc forwards progress snapshots to fn.
func WithProgressFunc(fn ProgressFunc) ManagerOption {
	return func(m *Manager) { m.progress = fn }
}

// WithBytesRead reports compressed input consumption in progress lines.
func WithBytesRead(fn func() int64) ManagerOption {
	return func(m *Manager) { m.bytesRead = fn }
}

// Manager drives processors through their lifecycle over one entity stream.
// Every phase completes for all processors before the next one starts.
type Manager struct {
	env       processor.Env
	logger    *slog.Logger
	every     int64
	progress  ProgressFunc
	bytesRead func() int64
}

// NewManager creates a manager handing env to each processor at SetUp.
func NewManager(env processor.Env, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if env.Logger == nil {
		env.Logger = logger
	}
	m := &Manager{env: env, logger: logger, every: config.DefaultProgressEvery}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type slot struct {
	proc    processor.Processor
	state   State
	failure *ProcessorFailure
}

type run struct {
	*Manager
	ctx     context.Context
	slots   []*slot
	records int64
	started time.Time
}

// Run executes all phases over stream. A processor failing on a record is
// taken out of the run while the others continue; its failure is listed in
// the summary but does not fail the run. SetUp and PreProcess failures, stream
// errors, cancellation, PostProcess and TearDown failures make Run return an
// error.
func (m *Manager) Run(ctx context.Context, stream RecordSource, procs []processor.Processor) (Summary, error) {
	r := &run{Manager: m, ctx: ctx, started: time.Now()}
	for _, p := range procs {
		r.slots = append(r.slots, &slot{proc: p, state: StatePending})
	}

	if err := r.setUp(); err != nil {
		return r.summary(), err
	}

	r.notify(PhaseProcess)
	streamErr := r.traverse(stream)

	var errs []error
	if streamErr != nil {
		m.logger.Error("Traversal aborted, skipping post-processing.", "error", streamErr, slog.Int64("records", r.records))
		errs = append(errs, streamErr)
	} else {
		r.notify(PhasePostProcess)
		errs = append(errs, r.postProcess()...)
	}

	r.notify(PhaseTearDown)
	errs = append(errs, r.tearDown()...)
	r.notify(PhaseDone)

	s := r.summary()
	m.logger.Info("Run finished.",
		slog.Int64("records", s.Records),
		slog.Int("failed_processors", len(s.Failures)),
		slog.Duration("elapsed", s.Elapsed),
	)
	return s, errors.Join(errs...)
}

func (r *run) setUp() error {
	r.notify(PhaseSetUp)
	for i, s := range r.slots {
		if err := r.ctx.Err(); err != nil {
			return r.abort(r.slots[:i], err)
		}
		err := guard(func() error { return s.proc.SetUp(r.ctx, r.env) })
		if err != nil {
			f := r.fail(s, PhaseSetUp, 0, "", err)
			return r.abort(r.slots[:i], f)
		}
		s.state = StateActive
	}

	r.notify(PhasePreProcess)
	for _, s := range r.slots {
		err := guard(func() error { return s.proc.PreProcess(r.ctx) })
		if err != nil {
			f := r.fail(s, PhasePreProcess, 0, "", err)
			return r.abort(r.slots, f)
		}
	}
	return nil
}

// abort releases processors that were set up before a fatal error. Nothing
// is emitted for processors that know how to abort.
func (r *run) abort(slots []*slot, cause error) error {
	errs := []error{cause}
	for _, s := range slots {
		var err error
		if a, ok := s.proc.(processor.Aborter); ok {
			err = guard(func() error { return a.Abort(context.WithoutCancel(r.ctx)) })
		} else {
			err = guard(func() error { return s.proc.TearDown(context.WithoutCancel(r.ctx)) })
		}
		if err != nil {
			r.logger.Warn("Failed to release processor after fatal error.", slog.String("processor", s.proc.Name()), "error", err)
			errs = append(errs, fmt.Errorf("release %s: %w", s.proc.Name(), err))
		}
		if s.state == StateActive {
			s.state = StateFailed
		}
	}
	r.logger.Error("Run aborted before processing.", "error", cause)
	return errors.Join(errs...)
}

func (r *run) traverse(stream RecordSource) error {
	for {
		if err := r.ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled after %d records: %w", r.records, err)
		}
		rec, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read entity stream: %w", err)
		}
		r.records++
		r.dispatch(rec)
		if r.records%r.every == 0 {
			r.report()
		}
	}
}

func (r *run) dispatch(rec entity.Record) {
	for _, s := range r.slots {
		if s.state != StateActive {
			continue
		}
		err := guard(func() error {
			switch v := rec.(type) {
			case *entity.Item:
				return s.proc.ProcessItem(v)
			case *entity.Property:
				return s.proc.ProcessProperty(v)
			}
			return nil
		})
		if err != nil {
			f := r.fail(s, PhaseProcess, r.records, rec.EntityID(), err)
			r.logger.Error("Processor failed, continuing without it.", slog.String("processor", f.Processor),
				slog.Int64("record", f.Record), slog.String("entity", f.EntityID), "error", f.Err)
		}
	}
}

func (r *run) postProcess() []error {
	var errs []error
	for _, s := range r.slots {
		if s.state != StateActive {
			continue
		}
		if err := guard(func() error { return s.proc.PostProcess(r.ctx) }); err != nil {
			f := r.fail(s, PhasePostProcess, 0, "", err)
			r.logger.Error("Post-processing failed.", slog.String("processor", f.Processor), "error", err)
			errs = append(errs, f)
		}
	}
	return errs
}

// tearDown runs for every processor that was set up, failed or not, so that
// files get closed. One failure does not stop the others.
func (r *run) tearDown() []error {
	ctx := context.WithoutCancel(r.ctx)
	var errs []error
	for _, s := range r.slots {
		if err := guard(func() error { return s.proc.TearDown(ctx) }); err != nil {
			f := r.fail(s, PhaseTearDown, 0, "", err)
			r.logger.Error("Teardown failed.", slog.String("processor", f.Processor), "error", err)
			errs = append(errs, f)
			continue
		}
		if s.state == StateActive {
			s.state = StateDone
		}
	}
	return errs
}

// fail marks s failed. The first failure of a processor is kept.
func (r *run) fail(s *slot, phase Phase, record int64, entityID string, err error) *ProcessorFailure {
	f := &ProcessorFailure{Processor: s.proc.Name(), Phase: phase, Record: record, EntityID: entityID, Err: err}
	s.state = StateFailed
	if s.failure == nil {
		s.failure = f
	}
	return f
}

func (r *run) report() {
	elapsed := time.Since(r.started)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(r.records) / secs
	}
	attrs := []any{
		slog.Int64("records", r.records),
		slog.String("rate", fmt.Sprintf("%.0f/s", rate)),
		slog.Duration("elapsed", elapsed.Round(time.Second)),
	}
	var read int64
	if r.bytesRead != nil {
		read = r.bytesRead()
		attrs = append(attrs, slog.String("read", humanize.Bytes(uint64(read))))
	}
	r.logger.Info("Processing...", attrs...)
	if r.progress != nil {
		r.progress(Progress{Phase: PhaseProcess, Records: r.records, CompressedRead: read, Rate: rate, Failed: r.failedNames()})
	}
}

func (r *run) notify(phase Phase) {
	r.logger.Debug("Entering phase.", slog.String("phase", string(phase)))
	if r.progress == nil {
		return
	}
	var read int64
	if r.bytesRead != nil {
		read = r.bytesRead()
	}
	r.progress(Progress{Phase: phase, Records: r.records, CompressedRead: read, Failed: r.failedNames()})
}

func (r *run) failedNames() []string {
	var names []string
	for _, s := range r.slots {
		if s.state == StateFailed {
			names = append(names, s.proc.Name())
		}
	}
	return names
}

func (r *run) summary() Summary {
	s := Summary{Records: r.records, Elapsed: time.Since(r.started)}
	for _, sl := range r.slots {
		s.Processors = append(s.Processors, ProcessorStatus{Name: sl.proc.Name(), State: sl.state, Failure: sl.failure})
		if sl.failure != nil {
			s.Failures = append(s.Failures, sl.failure)
		}
	}
	return s
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
