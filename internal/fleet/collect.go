package fleet

import (
	"context"

	"github.com/eugenetaranov/fwhelper/internal/connector"
	"github.com/eugenetaranov/fwhelper/internal/output"
	"github.com/eugenetaranov/fwhelper/internal/parser"
	"github.com/eugenetaranov/fwhelper/internal/report"
	"github.com/eugenetaranov/fwhelper/pkg/facts"
)

// FetchCommands are run on every device by RunFetch, in order.
var FetchCommands = []string{"show version", "dir"}

// CheckTransport probes every address and reports the transport found.
func (e *Executor) CheckTransport(ctx context.Context, addresses []string) ([]report.TransportRecord, *Stats) {
	stats := newStats(len(addresses))
	records := make([]report.TransportRecord, len(addresses))
	e.Output.FleetStart("check-transport", stats.Devices, e.workers())

	e.each(ctx, len(addresses), func(ctx context.Context, i int) {
		rec := report.TransportRecord{Device: addresses[i]}
		err := guard(func() error {
			res, err := e.Prober.Probe(ctx, addresses[i])
			if err != nil {
				return err
			}
			rec.Transport = string(res.Transport)
			return nil
		})

		status := output.StatusOK
		if err != nil {
			rec.Error = report.NewFailure(err)
			status = output.StatusFailed
		}
		records[i] = rec
		stats.record(status)
		e.Output.Line(rec.Line())
	})

	stats.finish()
	e.Output.FleetEnd(stats)
	return records, stats
}

// RunFetch collects version and storage information from every target.
// Data gathered before a failure is kept in the record.
func (e *Executor) RunFetch(ctx context.Context, targets []connector.Target) ([]report.FetchRecord, *Stats) {
	stats := newStats(len(targets))
	records := make([]report.FetchRecord, len(targets))
	e.Output.FleetStart("fetch", stats.Devices, e.workers())

	e.each(ctx, len(targets), func(ctx context.Context, i int) {
		target := targets[i]
		rec := report.FetchRecord{
			Device: target.Address,
			Raw:    make(map[string]string),
			Parsed: make(map[string][]parser.Record),
		}

		err := e.withSession(ctx, target, func(ctx context.Context, sess connector.Session) error {
			return fetch(ctx, sess, target, &rec)
		})

		status := output.StatusOK
		if err != nil {
			rec.Error = report.NewFailure(err)
			status = output.StatusFailed
		}
		records[i] = rec
		stats.record(status)
		e.Output.Line(rec.SummaryLine())
	})

	stats.finish()
	e.Output.FleetEnd(stats)
	return records, stats
}

func fetch(ctx context.Context, sess connector.Session, target connector.Target, rec *report.FetchRecord) error {
	dialect := target.Dialect()
	for _, cmd := range FetchCommands {
		out, err := sess.Execute(ctx, []string{cmd})
		if err != nil {
			return err
		}
		rec.Raw[cmd] = out[cmd]

		parsed, err := parser.Parse(dialect, cmd, out[cmd])
		if err != nil {
			return err
		}
		rec.Parsed[cmd] = parsed
	}

	f, err := facts.FromShowVersion(dialect, rec.Raw["show version"])
	if err != nil {
		return err
	}
	rec.Facts = &f

	summary, err := report.BuildSummary(target.Address, f, rec.Parsed)
	if err != nil {
		return err
	}
	rec.Summary = &summary
	return nil
}

// RunPing pings every destination from every target. A destination whose
// output cannot be parsed is recorded with its error; the device continues
// with the next destination.
func (e *Executor) RunPing(ctx context.Context, targets []connector.Target, destinations []string) ([]report.PingRecord, *Stats) {
	stats := newStats(len(targets))
	records := make([]report.PingRecord, len(targets))
	e.Output.FleetStart("ping", stats.Devices, e.workers())

	e.each(ctx, len(targets), func(ctx context.Context, i int) {
		target := targets[i]
		rec := report.PingRecord{Device: target.Address, Pings: make(map[string]report.PingResult)}

		err := e.withSession(ctx, target, func(ctx context.Context, sess connector.Session) error {
			for _, dest := range destinations {
				cmd := "ping " + dest
				out, err := sess.Execute(ctx, []string{cmd})
				if err != nil {
					return err
				}

				parsed, err := parser.Parse(target.Dialect(), "ping", out[cmd])
				if err != nil {
					rec.Pings[dest] = report.PingResult{Error: err.Error()}
					continue
				}
				rec.Pings[dest] = report.NewPingResult(parsed[0])
			}
			return nil
		})

		status := output.StatusOK
		label := "ok"
		if err != nil {
			rec.Error = report.NewFailure(err)
			status = output.StatusFailed
			label = string(rec.Error.Kind)
		}
		records[i] = rec
		stats.record(status)
		e.Output.DeviceResult(target.Address, status, label, "")
	})

	stats.finish()
	e.Output.FleetEnd(stats)
	return records, stats
}
