// Package transfer decides, per device, whether a firmware copy is needed
// and carries it out.
package transfer

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/fault"
	"github.com/eugenetaranov/fwhelper/internal/negotiate"
	"github.com/eugenetaranov/fwhelper/internal/parser"
	"github.com/eugenetaranov/fwhelper/internal/verify"
	"github.com/eugenetaranov/fwhelper/pkg/facts"
)

// DefaultFileSystem is used when the directory listing does not name one.
const DefaultFileSystem = "flash:"

// Job is one device's firmware request. It is a value: every job owns its
// own copy and the pipeline never mutates it.
type Job struct {
	Target        connector.Target
	TargetVersion string
	Source        string
	Size          int64
	Checksum      string
	Confirm       bool
}

// Device returns the identity used to key results.
func (j Job) Device() string {
	return j.Target.Address
}

// Basename returns the image file name from the source path or URI.
func (j Job) Basename() string {
	p := j.Source
	if u, err := url.Parse(j.Source); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	if i := strings.LastIndex(p, ":"); i >= 0 {
		p = p[i+1:]
	}
	return path.Base(p)
}

// Checker computes on-device checksums.
type Checker interface {
	Checksum(ctx context.Context, ch connector.Channel, path string, size int64) (string, error)
}

// Copier drives the interactive copy.
type Copier interface {
	Copy(ctx context.Context, ch connector.Channel, req negotiate.Request) (*negotiate.Result, error)
}

// Engine runs the decision pipeline for one job at a time. It holds no
// per-job state and is safe for concurrent use.
type Engine struct {
	Checker    Checker
	Copier     Copier
	FileSystem string
	Log        zerolog.Logger
}

// New creates an engine.
func New(checker Checker, copier Copier, log zerolog.Logger) *Engine {
	return &Engine{Checker: checker, Copier: copier, FileSystem: DefaultFileSystem, Log: log}
}

// state is one step of the pipeline. Steps only move forward.
type state int

const (
	stateCheckVersion state = iota
	stateCheckExistingFile
	stateCheckFreeSpace
	stateCheckConfirm
	statePerformCopy
	stateVerifyAfterCopy
	stateDone
)

var stateNames = map[state]string{
	stateCheckVersion:      "check-version",
	stateCheckExistingFile: "check-existing-file",
	stateCheckFreeSpace:    "check-free-space",
	stateCheckConfirm:      "check-confirm",
	statePerformCopy:       "perform-copy",
	stateVerifyAfterCopy:   "verify-after-copy",
}

// run carries the working data of one pipeline execution.
type run struct {
	job     Job
	sess    connector.Session
	log     zerolog.Logger
	notes   []string
	dir     []parser.Record
	dest    string
	outcome Outcome
}

func (r *run) note(format string, args ...any) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

// Run executes the pipeline and returns exactly one outcome.
func (e *Engine) Run(ctx context.Context, sess connector.Session, job Job) Outcome {
	r := &run{
		job:  job,
		sess: sess,
		log:  e.Log.With().Str("device", job.Device()).Logger(),
	}

	st := stateCheckVersion
	for st != stateDone {
		r.log.Debug().Str("step", stateNames[st]).Msg("entering step")

		var next state
		var err error
		switch st {
		case stateCheckVersion:
			next, err = e.checkVersion(ctx, r)
		case stateCheckExistingFile:
			next, err = e.checkExistingFile(ctx, r)
		case stateCheckFreeSpace:
			next, err = e.checkFreeSpace(r)
		case stateCheckConfirm:
			next = e.checkConfirm(r)
		case statePerformCopy:
			next, err = e.performCopy(ctx, r)
		case stateVerifyAfterCopy:
			next = e.verifyAfterCopy(ctx, r)
		}

		if err != nil {
			r.log.Debug().Str("step", stateNames[st]).Err(err).Msg("step failed")
			return Failure(err, r.notes, r.outcome.Checksum)
		}
		if next <= st {
			panic(fmt.Sprintf("transfer: step %s tried to move back to %s", stateNames[st], stateNames[next]))
		}
		st = next
	}

	r.log.Debug().Str("outcome", r.outcome.Label()).Msg("pipeline finished")
	return r.outcome
}

func (e *Engine) checkVersion(ctx context.Context, r *run) (state, error) {
	f, err := r.sess.Facts(ctx)
	if err != nil {
		return stateDone, fmt.Errorf("failed to get facts: %w", err)
	}

	running, err := facts.ImageVersion(f.OSVersion)
	if err != nil {
		return stateDone, err
	}

	if strings.TrimSpace(running) == strings.TrimSpace(r.job.TargetVersion) {
		r.outcome = newOutcome(StatusUpToDate, "running "+running, r.notes, "")
		return stateDone, nil
	}

	r.note("running version %s, target %s", running, r.job.TargetVersion)
	return stateCheckExistingFile, nil
}

func (e *Engine) checkExistingFile(ctx context.Context, r *run) (state, error) {
	raw, err := r.sess.Execute(ctx, []string{"dir"})
	if err != nil {
		return stateDone, fmt.Errorf("failed to list storage: %w", err)
	}

	records, err := parser.Parse(r.job.Target.Dialect(), "dir", raw["dir"])
	if err != nil {
		return stateDone, err
	}
	r.dir = records

	fs := records[0]["file_system"]
	if fs == "" {
		fs = e.fileSystem()
	}
	name := r.job.Basename()
	r.dest = fs + name

	if !hasFile(records, name) {
		r.note("%s not present", r.dest)
		return stateCheckFreeSpace, nil
	}

	sum, err := e.Checker.Checksum(ctx, r.sess.Channel(), r.dest, r.job.Size)
	if err != nil {
		// Re-copying beats blocking the pipeline on a file we cannot check.
		r.note("checksum of existing %s failed: %s", r.dest, fault.Detail(err))
		return stateCheckFreeSpace, nil
	}

	r.outcome.Checksum = sum
	if strings.EqualFold(sum, r.job.Checksum) {
		r.outcome = newOutcome(StatusReadyNoCopyNeeded, r.dest+" verified", r.notes, sum)
		return stateDone, nil
	}

	r.note("existing %s checksum %s does not match %s", r.dest, sum, r.job.Checksum)
	return stateCheckFreeSpace, nil
}

func (e *Engine) checkFreeSpace(r *run) (state, error) {
	raw := r.dir[0]["total_free"]
	free, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return stateDone, fault.Newf(fault.Parse, "check-free-space", "free space %q is not a number", raw)
	}

	if r.job.Size >= free {
		r.outcome = newOutcome(StatusInsufficientSpace,
			fmt.Sprintf("need %d bytes, %d free", r.job.Size, free), r.notes, r.outcome.Checksum)
		return stateDone, nil
	}
	return stateCheckConfirm, nil
}

func (e *Engine) checkConfirm(r *run) state {
	if !r.job.Confirm {
		r.outcome = newOutcome(StatusDryRunSkipped,
			"copy not confirmed; "+r.dest+" was not written", r.notes, r.outcome.Checksum)
		return stateDone
	}
	return statePerformCopy
}

func (e *Engine) performCopy(ctx context.Context, r *run) (state, error) {
	req := negotiate.Request{
		Source:         r.job.Source,
		Destination:    r.dest,
		Size:           r.job.Size,
		SourcePassword: r.job.Target.Password,
	}

	res, err := e.Copier.Copy(ctx, r.sess.Channel(), req)
	if err != nil {
		return stateDone, err
	}
	if res != nil && res.BytesCopied >= 0 {
		r.note("device reported %d bytes copied", res.BytesCopied)
	}
	return stateVerifyAfterCopy, nil
}

func (e *Engine) verifyAfterCopy(ctx context.Context, r *run) state {
	sum, err := e.Checker.Checksum(ctx, r.sess.Channel(), r.dest, r.job.Size)
	if err != nil {
		r.note("verification of %s failed: %s", r.dest, fault.Detail(err))
		r.outcome = Transferred(false, "copied; integrity not confirmed", r.notes, "")
		return stateDone
	}

	if !strings.EqualFold(sum, r.job.Checksum) {
		r.note("%s: checksum %s, expected %s", fault.VerificationMismatch, sum, r.job.Checksum)
		r.outcome = Transferred(false, "copied; checksum mismatch", r.notes, sum)
		return stateDone
	}

	r.outcome = Transferred(true, "copied and verified", r.notes, sum)
	return stateDone
}

func (e *Engine) fileSystem() string {
	if e.FileSystem != "" {
		return e.FileSystem
	}
	return DefaultFileSystem
}

func hasFile(records []parser.Record, name string) bool {
	for _, rec := range records {
		if rec["name"] == name {
			return true
		}
	}
	return false
}

// Ensure the poller and negotiator satisfy the engine's collaborators.
var (
	_ Checker = (*verify.Poller)(nil)
	_ Copier  = (*negotiate.Negotiator)(nil)
)
