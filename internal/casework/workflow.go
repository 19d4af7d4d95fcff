package casework

// Step is one stage of an exercise: instructions first, results last.
type Step struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	ProgressPct int    `json:"progress_pct"`
}

// ExerciseConfig is the static per-kind descriptor of an exercise: its
// ordered step list and the progress percentage shown at each step.
type ExerciseConfig struct {
	Kind  string `json:"kind"`
	Steps []Step `json:"steps"`
}

func (c ExerciseConfig) StepIndex(id string) int {
	for i, s := range c.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// BuiltinExercises returns the exercise descriptors shipped with the trainer,
// keyed by case kind. The table is handed to callers as a value so tests can
// substitute their own.
func BuiltinExercises() map[string]ExerciseConfig {
	return map[string]ExerciseConfig{
		"check_cutoff": {
			Kind: "check_cutoff",
			Steps: []Step{
				{ID: "intro", Label: "Instructions", ProgressPct: 0},
				{ID: "scoping", Label: "Scoping", ProgressPct: 20},
				{ID: "testing", Label: "Outstanding Check Testing", ProgressPct: 45},
				{ID: "conclusion", Label: "Conclusion", ProgressPct: 80},
				{ID: "results", Label: "Results", ProgressPct: 100},
			},
		},
		"asset_rollforward": {
			Kind: "asset_rollforward",
			Steps: []Step{
				{ID: "intro", Label: "Instructions", ProgressPct: 0},
				{ID: "scoping", Label: "Scoping", ProgressPct: 15},
				{ID: "additions", Label: "Additions Testing", ProgressPct: 40},
				{ID: "disposals", Label: "Disposals Testing", ProgressPct: 65},
				{ID: "conclusion", Label: "Conclusion", ProgressPct: 85},
				{ID: "results", Label: "Results", ProgressPct: 100},
			},
		},
	}
}

// Workflow tracks a trainee's position in an exercise's step sequence.
// Furthest is monotonically non-decreasing; Locked is one-way.
type Workflow struct {
	cfg      ExerciseConfig
	Current  string
	Furthest int
	Locked   bool
}

func NewWorkflow(cfg ExerciseConfig) *Workflow {
	w := &Workflow{cfg: cfg}
	if len(cfg.Steps) > 0 {
		w.Current = cfg.Steps[0].ID
	}
	return w
}

// GoToStep moves to target and reports whether anything changed. Unknown
// steps are a no-op so stale exercise configs cannot wedge a session.
// Backward moves up to Furthest are always allowed; forward moves may only
// reach the next unvisited step. All navigation is rejected once locked.
func (w *Workflow) GoToStep(target string) bool {
	if w.Locked {
		return false
	}
	idx := w.cfg.StepIndex(target)
	if idx < 0 {
		return false
	}
	if idx > w.Furthest+1 {
		return false
	}
	if target == w.Current {
		return false
	}
	w.Current = target
	if idx > w.Furthest {
		w.Furthest = idx
	}
	return true
}

// ApplyRemote overwrites position from a remote snapshot. Remote wins on the
// current step but Furthest stays monotonic, and an already-locked workflow
// never unlocks.
func (w *Workflow) ApplyRemote(step string, furthest int, locked bool) bool {
	changed := false
	if step != "" && step != w.Current && w.cfg.StepIndex(step) >= 0 {
		w.Current = step
		changed = true
	}
	if furthest > w.Furthest {
		w.Furthest = furthest
		changed = true
	}
	if locked && !w.Locked {
		w.Locked = true
		changed = true
	}
	return changed
}

// Lock is irreversible for the lifetime of the attempt.
func (w *Workflow) Lock() { w.Locked = true }

// Finish jumps straight to the given terminal step, bypassing forward gating,
// and locks. Used on submission.
func (w *Workflow) Finish(target string) {
	if idx := w.cfg.StepIndex(target); idx >= 0 {
		w.Current = target
		if idx > w.Furthest {
			w.Furthest = idx
		}
	}
	w.Locked = true
}

// Progress returns the configured progress percentage for the current step.
func (w *Workflow) Progress() int {
	if idx := w.cfg.StepIndex(w.Current); idx >= 0 {
		return w.cfg.Steps[idx].ProgressPct
	}
	return 0
}
