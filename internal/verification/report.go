package verification

import (
	"github.com/pendergraft/deployvault/internal/deployments/domain"
)

// SweepStatus is the outcome of the sweep for one deployment.
type SweepStatus string

const (
	SweepCaptured SweepStatus = "captured"
	SweepSkipped  SweepStatus = "skipped"
	SweepFailed   SweepStatus = "failed"
)

// SweepOutcome reports what the sweep did with one deployment.
type SweepOutcome struct {
	ChainID    uint64
	Network    string
	Name       string
	Status     SweepStatus
	SkipReason string
	Err        error
	// SecondaryErr is the failure of the secondary verifier, which never
	// affects Status.
	SecondaryErr error
}

// SweepReport collects sweep outcomes in processing order.
type SweepReport struct {
	Outcomes []SweepOutcome
}

// Count returns how many outcomes have a status.
func (r *SweepReport) Count(status SweepStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// FirstFailure returns the first failed outcome, if any.
func (r *SweepReport) FirstFailure() (SweepOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Status == SweepFailed {
			return o, true
		}
	}
	return SweepOutcome{}, false
}

// ExitCode is 0 without failures, else the verifier exit code of the first
// failure, else 1.
func (r *SweepReport) ExitCode() int {
	o, ok := r.FirstFailure()
	if !ok {
		return 0
	}
	if code, ok := domain.ExitCode(o.Err); ok {
		return code
	}
	return 1
}

// Strategy names.
const (
	StrategyArtifact     = "artifact"
	StrategyStandardJSON = "standard-json"
)

// StrategyStatus is the outcome of one verification strategy.
type StrategyStatus string

const (
	StrategyVerified StrategyStatus = "verified"
	StrategyFailed   StrategyStatus = "failed"
	StrategySkipped  StrategyStatus = "skipped"
)

// StrategyOutcome reports one verification strategy.
type StrategyOutcome struct {
	Strategy            string
	Status              StrategyStatus
	Target              string
	Attempts            int
	RetriedWithoutChain bool
	SkipReason          string
	Err                 error
}

// VerifyReport reports both strategies of an on-demand verification.
type VerifyReport struct {
	Network       string
	ChainID       uint64
	Name          string
	Address       string
	ArtifactBased StrategyOutcome
	StandardJSON  StrategyOutcome
}

// Succeeded reports whether either strategy verified the deployment.
func (r *VerifyReport) Succeeded() bool {
	return r.ArtifactBased.Status == StrategyVerified || r.StandardJSON.Status == StrategyVerified
}

// ExitCode is 0 when either strategy verified, else the verifier exit code
// of the first failed strategy, else 1.
func (r *VerifyReport) ExitCode() int {
	if r.Succeeded() {
		return 0
	}
	for _, o := range []StrategyOutcome{r.ArtifactBased, r.StandardJSON} {
		if o.Status != StrategyFailed {
			continue
		}
		if code, ok := domain.ExitCode(o.Err); ok {
			return code
		}
		return 1
	}
	return 1
}
