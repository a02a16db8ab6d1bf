package orchestrator

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v2"

	"grimm.is/adderprobe/internal/fixture"
	"grimm.is/adderprobe/internal/history"
	"grimm.is/adderprobe/internal/metrics"
	"grimm.is/adderprobe/internal/protocol"
	"grimm.is/adderprobe/internal/storecheck"
	"grimm.is/adderprobe/internal/tap"
)

// record writes one assertion and remembers its outcome.
func (o *Orchestrator) record(stage string, r tap.Result, message string) {
	o.tap.Result(r)
	o.metrics.ObserveAssertion(stage, r.OK)

	status := history.StatusPass
	if r.OK {
		o.passed++
	} else {
		status = history.StatusFail
	}
	o.outcomes = append(o.outcomes, history.Outcome{Name: r.Description, Status: status, Message: message})
}

// assertResponses emits one line per case. Failures never stop the loop.
func (o *Orchestrator) assertResponses(docs []protocol.Document) {
	for i, c := range o.cfg.Cases {
		r, msg := checkResponse(c, docs[i])
		o.record(metrics.StageResponse, r, msg)
	}
}

func checkResponse(c fixture.Case, doc protocol.Document) (tap.Result, string) {
	r := tap.Result{Description: c.Description()}

	resp, err := protocol.ParseResponse(doc)
	if err != nil {
		r.Diagnostics = yaml.MapSlice{
			{Key: "message", Value: err.Error()},
			{Key: "response", Value: map[string]any(doc)},
		}
		return r, err.Error()
	}

	r.OK = resp.Success == c.Expect
	var msg string
	switch {
	case !resp.Success && resp.ReasonText() == "":
		r.OK = false
		msg = "failed response carries no reason"
	case !r.OK && resp.Success:
		msg = "helper accepted a request it should reject"
	case !r.OK:
		msg = "helper rejected the request: " + resp.ReasonText()
	}

	var diag yaml.MapSlice
	if msg != "" {
		diag = append(diag, yaml.MapItem{Key: "message", Value: msg})
	}
	if !r.OK {
		diag = append(diag,
			yaml.MapItem{Key: "expected", Value: map[string]any{"success": c.Expect}},
			yaml.MapItem{Key: "got", Value: map[string]any{"success": resp.Success}},
		)
	}
	if resp.Reason != nil {
		diag = append(diag, yaml.MapItem{Key: "reason", Value: *resp.Reason})
	}
	r.Diagnostics = diag
	return r, msg
}

// storageCases reports whether any storage assertion is planned.
func (o *Orchestrator) storageCases() bool {
	if o.cfg.RowCounts {
		return true
	}
	for _, c := range o.cfg.Cases {
		if c.CheckStorage() || (!c.Expect && c.Request != nil && len(c.Request.ArtAccLinks) > 0) {
			return true
		}
	}
	return false
}

// assertStorage opens the collection read-only and checks it against the
// cases. Only failing to open the store is fatal.
func (o *Orchestrator) assertStorage(ctx context.Context) error {
	if !o.storageCases() {
		return nil
	}

	o.tap.Comment("Starting database checks")
	store, err := storecheck.Open(o.cfg.StateRoot, o.cfg.Logger)
	if err != nil {
		return bail(StageStorage, err)
	}
	defer store.Close()

	for _, c := range o.cfg.Cases {
		switch {
		case c.CheckStorage():
			o.recordChecks(store.Verify(ctx, c.Request))
		case !c.Expect && c.Request != nil:
			o.recordChecks(store.VerifyAbsent(ctx, c.Request.Platform, c.Request.ArtAccLinks))
		}
	}
	if o.cfg.RowCounts {
		o.recordChecks(store.RowCounts(ctx, expectedRequests(o.cfg.Cases)))
	}
	return nil
}

// expectedRequests returns the typed requests of every case expected to
// succeed.
func expectedRequests(cases []fixture.Case) []*protocol.Request {
	var reqs []*protocol.Request
	for _, c := range cases {
		if c.Expect && c.Request != nil {
			reqs = append(reqs, c.Request)
		}
	}
	return reqs
}

func (o *Orchestrator) recordChecks(checks []storecheck.Check) {
	for _, c := range checks {
		r, msg := checkResult(c)
		o.record(metrics.StageStorage, r, msg)
	}
}

func checkResult(c storecheck.Check) (tap.Result, string) {
	r := tap.Result{OK: c.OK, Description: c.Description}
	msg := c.Message
	if len(c.Mismatches) > 0 {
		lines := make([]string, len(c.Mismatches))
		for i, m := range c.Mismatches {
			lines[i] = m.String()
		}
		if msg == "" {
			msg = fmt.Sprintf("%d field(s) differ", len(c.Mismatches))
		}
		r.Diagnostics = append(r.Diagnostics, yaml.MapItem{Key: "mismatches", Value: lines})
		for _, m := range c.Mismatches {
			if m.Diff != "" {
				r.Diagnostics = append(r.Diagnostics, yaml.MapItem{Key: m.Field + "_diff", Value: m.Diff})
			}
		}
	}
	if msg != "" && !c.OK {
		r.Diagnostics = append(yaml.MapSlice{{Key: "message", Value: msg}}, r.Diagnostics...)
	}
	if c.OK {
		msg = ""
	}
	return r, msg
}
