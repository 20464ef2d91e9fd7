package portal

import "lanceiro/internal/report"

// Reason is the closed set of expected business-rule rejections a record can
// hit. Anything outside this set is a critical error, not a benign skip.
type Reason int

const (
	ReasonCotaNotFound Reason = iota
	ReasonCotaNotActive
	ReasonRequiresProtocol
	ReasonFidelityLocked
	ReasonStatementCancelled
	ReasonAlreadyContemplated
	ReasonAssemblyBlocked
)

// Category maps a skip reason to its report bucket.
func (r Reason) Category() report.BenignCategory {
	switch r {
	case ReasonCotaNotFound:
		return report.BenignNotFound
	case ReasonCotaNotActive:
		return report.BenignNotActive
	case ReasonRequiresProtocol:
		return report.BenignProtocol
	case ReasonFidelityLocked:
		return report.BenignFidelity
	case ReasonStatementCancelled:
		return report.BenignCancelled
	case ReasonAlreadyContemplated:
		return report.BenignContemplated
	case ReasonAssemblyBlocked:
		return report.BenignAssembly
	default:
		return report.BenignOther
	}
}

func (r Reason) String() string {
	switch r {
	case ReasonCotaNotFound:
		return "cota-not-found"
	case ReasonCotaNotActive:
		return "cota-not-active"
	case ReasonRequiresProtocol:
		return "requires-protocol"
	case ReasonFidelityLocked:
		return "fidelity-locked"
	case ReasonStatementCancelled:
		return "statement-cancelled"
	case ReasonAlreadyContemplated:
		return "already-contemplated"
	case ReasonAssemblyBlocked:
		return "assembly-blocked"
	default:
		return "unknown"
	}
}

// OutcomeKind discriminates the three terminal states of one record.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeBenign
	OutcomeCritical
)

// Outcome is the single result produced for one record. Benign outcomes carry
// a Reason from the closed set; critical outcomes carry the free-text
// diagnostic the classifier buckets on. Never mutated after creation.
type Outcome struct {
	Kind   OutcomeKind
	Reason Reason // set when Kind == OutcomeBenign
	Detail string // human-readable message or critical diagnostic
}

func Succeeded(detail string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Detail: detail}
}

func Skipped(reason Reason, detail string) Outcome {
	return Outcome{Kind: OutcomeBenign, Reason: reason, Detail: detail}
}

func Failed(diag string) Outcome {
	return Outcome{Kind: OutcomeCritical, Detail: diag}
}
