package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/report"
)

var transitions = map[domain.RunState][]domain.RunState{
	domain.RunStateStart:       {domain.RunStateParsing, domain.RunStateReported},
	domain.RunStateParsing:     {domain.RunStateParseFailed, domain.RunStateParsed},
	domain.RunStateParseFailed: {domain.RunStateReported},
	domain.RunStateParsed:      {domain.RunStateChecking},
	domain.RunStateChecking:    {domain.RunStateReported},
}

// run is the state of one validation. It is owned by a single goroutine.
type run struct {
	id      string
	state   domain.RunState
	started time.Time
	meta    report.Metadata
	log     zerolog.Logger
}

func (r *run) transition(to domain.RunState) {
	for _, allowed := range transitions[r.state] {
		if allowed == to {
			r.log.Debug().Str("from", string(r.state)).Str("to", string(to)).Msg("run state")
			r.state = to
			return
		}
	}
	panic(fmt.Sprintf("engine: invalid run transition %s -> %s", r.state, to))
}

// finish moves the run to REPORTED from wherever it stopped.
func (r *run) finish(o report.Outcome) *report.Report {
	switch r.state {
	case domain.RunStateParsing:
		r.transition(domain.RunStateParseFailed)
	case domain.RunStateParsed:
		r.transition(domain.RunStateChecking)
	}
	r.transition(domain.RunStateReported)
	o.Metadata = r.meta
	return report.Build(o)
}
