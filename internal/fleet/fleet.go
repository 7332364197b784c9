// Package fleet runs per-device pipelines across a device list with bounded
// concurrency.
package fleet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/connector/ssh"
	"github.com/eugenetaranov/fwhelper/internal/connector/telnet"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/inventory"
	"github.com/eugenetaranov/fwhelper/internal/output"
	"github.com/eugenetaranov/fwhelper/internal/probe"
	"github.com/eugenetaranov/fwhelper/internal/report"
	"github.com/eugenetaranov/fwhelper/internal/transfer"
)

// DefaultWorkers is the concurrency used when Workers is unset.
const DefaultWorkers = 80

// Prober picks the transport for an address.
type Prober interface {
	Probe(ctx context.Context, address string) (probe.Result, error)
}

// Opener opens an authenticated session over a probed transport.
type Opener func(ctx context.Context, target connector.Target, res probe.Result) (connector.Session, error)

// Runner executes the transfer pipeline for one job.
type Runner interface {
	Run(ctx context.Context, sess connector.Session, job transfer.Job) transfer.Outcome
}

// Executor dispatches device pipelines to a bounded worker pool. Every
// device gets its own session; a failure on one device never affects
// another.
type Executor struct {
	// Workers bounds the number of devices handled at once.
	Workers int

	// Prober selects SSH or Telnet per device.
	Prober Prober

	// Open creates sessions. Defaults to OpenSession.
	Open Opener

	// Engine runs transfer jobs.
	Engine Runner

	// JobTimeout bounds one device's pipeline. Zero means no limit.
	JobTimeout time.Duration

	// Output handles formatted output.
	Output *output.Output

	Log zerolog.Logger
}

// New creates an executor.
func New(workers int, prober Prober, engine Runner, log zerolog.Logger) *Executor {
	return &Executor{
		Workers: workers,
		Prober:  prober,
		Open:    OpenSession,
		Engine:  engine,
		Output:  output.New(os.Stdout),
		Log:     log,
	}
}

// Stats holds execution statistics.
type Stats struct {
	mu        sync.Mutex
	Devices   int
	OK        int
	Changed   int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

func newStats(devices int) *Stats {
	return &Stats{Devices: devices, StartTime: time.Now()}
}

func (s *Stats) record(status output.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch status {
	case output.StatusOK:
		s.OK++
	case output.StatusChanged:
		s.Changed++
	case output.StatusSkipped:
		s.Skipped++
	case output.StatusFailed:
		s.Failed++
	}
}

func (s *Stats) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
}

// Duration returns the total execution time.
func (s *Stats) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EndTime.Sub(s.StartTime)
}

// GetOK returns the OK count (implements output.Stats).
func (s *Stats) GetOK() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OK
}

// GetChanged returns the Changed count (implements output.Stats).
func (s *Stats) GetChanged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Changed
}

// GetFailed returns the Failed count (implements output.Stats).
func (s *Stats) GetFailed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Failed
}

// GetSkipped returns the Skipped count (implements output.Stats).
func (s *Stats) GetSkipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Skipped
}

// GetDuration returns the duration (implements output.Stats).
func (s *Stats) GetDuration() time.Duration { return s.Duration() }

// OpenSession opens a session on the probed transport.
func OpenSession(ctx context.Context, target connector.Target, res probe.Result) (connector.Session, error) {
	switch res.Transport {
	case connector.SSH:
		sess, err := ssh.Dial(ctx, target, res.Port)
		if err != nil {
			return nil, err
		}
		return sess, nil

	case connector.Telnet:
		sess, err := telnet.Dial(ctx, target, res.Port)
		if err != nil {
			return nil, err
		}
		return sess, nil

	default:
		return nil, fault.Newf(fault.Connectivity, "open", "unknown transport: %s", res.Transport)
	}
}

func (e *Executor) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return DefaultWorkers
}

// each calls fn for indexes [0, n) on at most Workers goroutines and waits
// for all of them.
func (e *Executor) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(e.workers())

	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// guard runs fn and converts a panic into an Unclassified fault.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.Newf(fault.Unclassified, "worker", "panic: %v", r)
		}
	}()
	return fn()
}

// withSession probes the target, opens a session, runs fn and always
// attempts to close the session. Close errors are logged and dropped.
func (e *Executor) withSession(ctx context.Context, target connector.Target, fn func(context.Context, connector.Session) error) error {
	if e.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.JobTimeout)
		defer cancel()
	}

	return guard(func() error {
		res, err := e.Prober.Probe(ctx, target.Address)
		if err != nil {
			return err
		}

		open := e.Open
		if open == nil {
			open = OpenSession
		}
		sess, err := open(ctx, target, res)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := sess.Close(); cerr != nil {
				e.Log.Debug().Str("device", target.Address).Err(cerr).Msg("session close failed")
			}
		}()

		e.Log.Debug().Str("device", target.Address).Str("session", sess.String()).Msg("session open")
		return fn(ctx, sess)
	})
}

// RunTransfers runs every job and returns one outcome per device. Records
// that failed to parse are reported as Failed{ParseFailure} without
// touching the network.
func (e *Executor) RunTransfers(ctx context.Context, jobs []transfer.Job, malformed []*inventory.RecordError) (*report.FleetReport, *Stats) {
	stats := newStats(len(jobs) + len(malformed))
	result := report.NewFleetReport()
	e.Output.FleetStart("transfer", stats.Devices, e.workers())

	for _, bad := range malformed {
		o := transfer.Failure(fault.Wrap(fault.Parse, "transfer-list", bad.Err), nil, "")
		e.show(stats, result.Add(bad.Device(), o), o)
	}

	e.each(ctx, len(jobs), func(ctx context.Context, i int) {
		job := jobs[i]
		o := e.runJob(ctx, job)
		e.show(stats, result.Add(job.Device(), o), o)
	})

	stats.finish()
	e.Output.FleetEnd(stats)
	return result, stats
}

func (e *Executor) runJob(ctx context.Context, job transfer.Job) transfer.Outcome {
	var o transfer.Outcome
	err := e.withSession(ctx, job.Target, func(ctx context.Context, sess connector.Session) error {
		if e.Engine == nil {
			return fmt.Errorf("no transfer engine configured")
		}
		o = e.Engine.Run(ctx, sess, job)
		return nil
	})
	if err != nil {
		return transfer.Failure(err, nil, "")
	}
	return o
}

func (e *Executor) show(stats *Stats, device string, o transfer.Outcome) {
	status := DisplayStatus(o)
	stats.record(status)
	e.Output.DeviceResult(device, status, o.Label(), o.Detail)
	e.Output.DeviceNotes(device, o.Notes)
}

// DisplayStatus maps an outcome onto the recap categories.
func DisplayStatus(o transfer.Outcome) output.Status {
	switch o.Status {
	case transfer.StatusUpToDate, transfer.StatusReadyNoCopyNeeded:
		return output.StatusOK
	case transfer.StatusTransferred:
		return output.StatusChanged
	case transfer.StatusDryRunSkipped, transfer.StatusInsufficientSpace:
		return output.StatusSkipped
	default:
		return output.StatusFailed
	}
}
