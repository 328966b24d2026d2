package models

import (
	"encoding/json"
	"time"
)

// StateProbability is one row of a posterior distribution.
type StateProbability struct {
	State       string  `json:"state"`
	Probability float64 `json:"probability"`
	LogOdds     float64 `json:"logOdds"` // log10 odds, ±999 for certainty
}

// Distribution is a normalized distribution over one variable's domain.
type Distribution struct {
	Variable string             `json:"variable"`
	States   []StateProbability `json:"states"`
}

// JointEntry is one cell of a joint posterior over several variables.
type JointEntry struct {
	Assignment  map[string]string `json:"assignment"`
	Probability float64           `json:"probability"`
}

// ExactRequest asks for P(query | evidence).
type ExactRequest struct {
	Query    []string          `json:"query" binding:"required"`
	Evidence map[string]string `json:"evidence"`
}

// ExactResult is the exact posterior. Marginals holds one distribution per
// query variable; Joint is populated when more than one variable is asked.
type ExactResult struct {
	NetworkID   string         `json:"networkId"`
	Method      string         `json:"method"` // "junction-tree" or "variable-elimination"
	Marginals   []Distribution `json:"marginals"`
	Joint       []JointEntry   `json:"joint,omitempty"`
	LogEvidence float64        `json:"logEvidence"`
}

// SamplingOptions configures a Gibbs run. Zero values select defaults.
type SamplingOptions struct {
	Iterations int    `json:"iterations"`
	BurnIn     *int   `json:"burnIn,omitempty"`
	Seed       uint64 `json:"seed"`
	Chains     int    `json:"chains"`
	Sweep      string `json:"sweep"` // "cyclic" (default) or "random"
	TimeoutMs  int    `json:"timeoutMs"`
}

// ApproximateRequest asks either for an event probability (Event set) or a
// marginal over Target.
type ApproximateRequest struct {
	Target   string            `json:"target"`
	Event    map[string]string `json:"event"`
	Evidence map[string]string `json:"evidence"`
	Options  SamplingOptions   `json:"options"`
}

// ApproximateResult is a Gibbs estimate. Partial is set when the run stopped
// before all iterations were counted.
type ApproximateResult struct {
	NetworkID    string        `json:"networkId"`
	Probability  *float64      `json:"probability,omitempty"`
	Distribution *Distribution `json:"distribution,omitempty"`
	StdError     float64       `json:"stdError"`
	Counted      int           `json:"counted"`
	Iterations   int           `json:"iterations"`
	Chains       int           `json:"chains"`
	Partial      bool          `json:"partial"`
	StopReason   string        `json:"stopReason,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// DSeparationRequest asks whether X ⊥ Y | Z holds structurally.
type DSeparationRequest struct {
	X []string `json:"x" binding:"required"`
	Y []string `json:"y" binding:"required"`
	Z []string `json:"z"`
}

// DSeparationResult answers a DSeparationRequest.
type DSeparationResult struct {
	X         []string `json:"x"`
	Y         []string `json:"y"`
	Z         []string `json:"z"`
	Separated bool     `json:"separated"`
}

// CrosscheckRequest compares exact and sampled posteriors for one variable.
type CrosscheckRequest struct {
	Target    string            `json:"target" binding:"required"`
	Evidence  map[string]string `json:"evidence"`
	Options   SamplingOptions   `json:"options"`
	Tolerance float64           `json:"tolerance"`
}

// CrosscheckReport records the divergence between the exact and the sampled
// posterior of one query.
type CrosscheckReport struct {
	ID              string            `json:"id"`
	NetworkID       string            `json:"networkId"`
	Target          string            `json:"target"`
	Evidence        map[string]string `json:"evidence"`
	Exact           Distribution      `json:"exact"`
	Approximate     Distribution      `json:"approximate"`
	TotalVariation  float64           `json:"totalVariation"`
	KLDivergence    float64           `json:"klDivergence"`
	Hellinger       float64           `json:"hellinger"`
	MaxAbsError     float64           `json:"maxAbsError"`
	StdError        float64           `json:"stdError"`
	Tolerance       float64           `json:"tolerance"`
	WithinTolerance bool              `json:"withinTolerance"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// QueryRecord is the audit row written for every answered query.
type QueryRecord struct {
	ID         string          `json:"id"`
	NetworkID  string          `json:"networkId"`
	Kind       string          `json:"kind"` // "exact", "approximate", "dseparation"
	Request    json.RawMessage `json:"request"`
	Result     json.RawMessage `json:"result"`
	DurationMs float64         `json:"durationMs"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// JobStatus is the progress view of a background sampling job.
type JobStatus struct {
	ID         string             `json:"id"`
	NetworkID  string             `json:"networkId"`
	State      string             `json:"state"` // "running", "done", "cancelled", "failed"
	Completed  int64              `json:"completed"`
	Total      int64              `json:"total"`
	Result     *ApproximateResult `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
}
