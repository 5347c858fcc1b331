package fingerprint

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Outcome is the kind of answer an identification produced.
type Outcome string

const (
	Matched  Outcome = "matched"
	NoMatch  Outcome = "no_match"
	Rejected Outcome = "rejected"
)

// Reasons attached to NoMatch results.
const (
	ReasonEmptyRoster    = "empty-roster"
	ReasonBelowThreshold = "below-threshold"
	ReasonAmbiguous      = "ambiguous"
)

// marginEpsilon absorbs float error when comparing score gaps to the margin.
const marginEpsilon = 1e-9

// Candidate is one ranked roster score.
type Candidate struct {
	PersonID string  `json:"person_id" cbor:"person_id"`
	Score    float64 `json:"score" cbor:"score"`
}

// MatchResult is the answer of Identify. PersonID and Confidence are set only
// for Matched; Reason only for NoMatch and Rejected. Candidates holds the top
// ranked scores for diagnostics and may be set for any scored roster.
type MatchResult struct {
	Outcome    Outcome     `json:"outcome" cbor:"outcome"`
	PersonID   string      `json:"person_id,omitempty" cbor:"person_id,omitempty"`
	Confidence float64     `json:"confidence,omitempty" cbor:"confidence,omitempty"`
	Reason     string      `json:"reason,omitempty" cbor:"reason,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty" cbor:"candidates,omitempty"`
}

// Identifier runs 1:N identification under a fixed policy. It holds no
// mutable state and may be shared between goroutines.
type Identifier struct {
	policy       Policy
	transparency *TransparencyLogger
}

// NewIdentifier returns an Identifier. transparency may be nil.
func NewIdentifier(p Policy, transparency *TransparencyLogger) *Identifier {
	if p.Workers < 1 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	return &Identifier{policy: p, transparency: transparency}
}

func (id *Identifier) Policy() Policy {
	return id.policy
}

// AssessQuality applies the identifier's quality policy to t.
func (id *Identifier) AssessQuality(t *Template) (QualityVerdict, error) {
	if t == nil {
		return QualityVerdict{}, ErrNilTemplate
	}
	if err := t.Validate(); err != nil {
		return QualityVerdict{}, fmt.Errorf("probe: %w", err)
	}
	v := AssessQuality(t, id.policy.Quality)
	if err := id.transparency.log(TransparencyQuality, v); err != nil {
		return QualityVerdict{}, err
	}
	return v, nil
}

// Identify decides which roster entry, if any, presented the probe finger.
//
// Quality rejection and negative identifications are returned as results.
// Errors are reserved for contract violations (nil probe, invalid roster),
// context cancellation and transparency sink failures. Scoring fans out over
// at most Policy.Workers goroutines; on cancellation the remaining roster
// entries are abandoned.
func (id *Identifier) Identify(ctx context.Context, probe *Template, roster Roster) (MatchResult, error) {
	verdict, err := id.AssessQuality(probe)
	if err != nil {
		return MatchResult{}, err
	}
	if !verdict.Accepted {
		return id.decided(MatchResult{Outcome: Rejected, Reason: verdict.Reason})
	}
	if len(roster) == 0 {
		return id.decided(MatchResult{Outcome: NoMatch, Reason: ReasonEmptyRoster})
	}
	if err := roster.Validate(); err != nil {
		return MatchResult{}, err
	}

	scores, alignments, err := id.scoreRoster(ctx, probe, roster)
	if err != nil {
		return MatchResult{}, err
	}
	for i, a := range alignments {
		rec := AlignmentRecord{PersonID: roster[i].PersonID, Score: scores[i], Alignment: a}
		if err := id.transparency.log(TransparencyAlignment, rec); err != nil {
			return MatchResult{}, err
		}
	}

	ranked := Rank(roster, scores)
	if err := id.transparency.log(TransparencyCandidates, ranked); err != nil {
		return MatchResult{}, err
	}

	result := Decide(ranked, id.policy.DecisionThreshold, id.policy.AmbiguityMargin)
	if k := id.policy.ReportCandidates; k > 0 {
		result.Candidates = ranked[:min(k, len(ranked))]
	}
	return id.decided(result)
}

func (id *Identifier) decided(r MatchResult) (MatchResult, error) {
	if err := id.transparency.log(TransparencyDecision, r); err != nil {
		return MatchResult{}, err
	}
	return r, nil
}

// scoreRoster computes one score per roster entry. Each task writes only its
// own slot. Alignments are kept only when a transparency sink wants them.
func (id *Identifier) scoreRoster(ctx context.Context, probe *Template, roster Roster) ([]float64, []Alignment, error) {
	scores := make([]float64, len(roster))
	var alignments []Alignment
	if id.transparency.accepts(TransparencyAlignment) {
		alignments = make([]Alignment, len(roster))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(id.policy.Workers)
	for i := range roster {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cand := roster[i].Template
			a := Align(probe, cand, id.policy.Match)
			scores[i] = scoreOf(a, min(len(probe.Minutiae), len(cand.Minutiae)))
			if alignments != nil {
				alignments[i] = a
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	// errgroup only reports task errors; a cancellation that stopped the
	// loop before any task failed still has to surface.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return scores, alignments, nil
}

// Rank orders roster scores best first. Equal scores are ordered by person id
// so the result never depends on roster order.
func Rank(roster Roster, scores []float64) []Candidate {
	ranked := make([]Candidate, len(roster))
	for i, e := range roster {
		ranked[i] = Candidate{PersonID: e.PersonID, Score: scores[i]}
	}
	slices.SortFunc(ranked, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.PersonID, b.PersonID)
		}
	})
	return ranked
}

// Decide applies the decision rule to a ranking produced by Rank.
func Decide(ranked []Candidate, threshold, margin float64) MatchResult {
	if len(ranked) == 0 {
		return MatchResult{Outcome: NoMatch, Reason: ReasonEmptyRoster}
	}
	best := ranked[0]
	if best.Score < threshold {
		return MatchResult{Outcome: NoMatch, Reason: ReasonBelowThreshold}
	}
	var runnerUp float64
	if len(ranked) > 1 {
		runnerUp = ranked[1].Score
	}
	if best.Score-runnerUp+marginEpsilon < margin {
		return MatchResult{Outcome: NoMatch, Reason: ReasonAmbiguous}
	}
	return MatchResult{Outcome: Matched, PersonID: best.PersonID, Confidence: best.Score}
}
