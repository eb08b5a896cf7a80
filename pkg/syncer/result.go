package syncer

import "time"

// Phase names one step of a reconciliation pass.
type Phase string

const (
	// PhaseIdle means no pass is running.
	PhaseIdle Phase = "idle"
	// PhaseFetching pulls current remote state.
	PhaseFetching Phase = "fetching"
	// PhaseDiffing computes field-level diffs against the baseline.
	PhaseDiffing Phase = "diffing"
	// PhaseResolving reconciles fields changed on both sides.
	PhaseResolving Phase = "resolving"
	// PhaseApplying writes merged values to both sides.
	PhaseApplying Phase = "applying"
	// PhaseLogging appends change records and clears dirty flags.
	PhaseLogging Phase = "logging"
	// PhaseFailed marks an aborted pass.
	PhaseFailed Phase = "failed"
)

// Result summarizes one reconciliation pass.
type Result struct {
	StartedAt time.Time
	Duration  time.Duration

	RemoteRecords   int // rows fetched from the remote store
	EntitiesDiffed  int // entities with changes on either side
	FieldsCarried   int // one-sided changes applied without resolution
	Conflicts       int // fields changed on both sides
	Overrides       int // conflicts resolved by supersession
	Superposed      int // conflicts retained as multi-valued cells
	AppliedLocal    int // field writes to the workspace
	AppliedRemote   int // field writes to the remote store
	RecordsLogged   int // change records appended
	EntitiesCleaned int // dirty flags cleared

	// FailedPhase is set when the pass aborted; Err carries the cause.
	FailedPhase Phase
	Err         error

	// PhaseDurations captures how long each completed phase took.
	PhaseDurations map[Phase]time.Duration
}

// Failed reports whether the pass aborted.
func (r *Result) Failed() bool {
	return r.FailedPhase != ""
}

// Changed reports whether the pass applied anything anywhere.
func (r *Result) Changed() bool {
	return r.AppliedLocal > 0 || r.AppliedRemote > 0
}
