package fingerprint_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/internal/testutil"
)

func scenarioRoster() (fingerprint.Roster, *fingerprint.Template) {
	t1 := testutil.RandomTemplate(1, 20)
	t2 := testutil.RandomTemplate(2, 20)
	return fingerprint.Roster{
		{PersonID: "S1", Template: t1},
		{PersonID: "S2", Template: t2},
	}, t1
}

func TestIdentifyScenario(t *testing.T) {
	roster, t1 := scenarioRoster()
	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)
	ctx := context.Background()

	t.Run("shifted probe matches its owner", func(t *testing.T) {
		res, err := id.Identify(ctx, testutil.Shift(t1, 3, 1), roster)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.Matched, res.Outcome)
		assert.Equal(t, "S1", res.PersonID)
		assert.GreaterOrEqual(t, res.Confidence, fingerprint.DefaultDecisionThreshold)
		assert.Empty(t, res.Reason)
	})

	t.Run("unrelated probe matches nobody", func(t *testing.T) {
		res, err := id.Identify(ctx, testutil.RandomTemplate(3, 20), roster)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.NoMatch, res.Outcome)
		assert.Equal(t, fingerprint.ReasonBelowThreshold, res.Reason)
		assert.Empty(t, res.PersonID)
		assert.Zero(t, res.Confidence)
	})

	t.Run("self match is perfect", func(t *testing.T) {
		res, err := id.Identify(ctx, t1, roster)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.Matched, res.Outcome)
		assert.Equal(t, "S1", res.PersonID)
		assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	})

	t.Run("rotation within range", func(t *testing.T) {
		res, err := id.Identify(ctx, testutil.Rotate(t1, 10*math.Pi/180), roster)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.Matched, res.Outcome)
		assert.Equal(t, "S1", res.PersonID)
	})

	t.Run("candidates are ranked", func(t *testing.T) {
		res, err := id.Identify(ctx, t1, roster)
		require.NoError(t, err)
		require.Len(t, res.Candidates, 2)
		assert.Equal(t, "S1", res.Candidates[0].PersonID)
		assert.Greater(t, res.Candidates[0].Score, res.Candidates[1].Score)
	})
}

func TestIdentifyQualityGate(t *testing.T) {
	roster, t1 := scenarioRoster()
	// A malformed roster proves the gate runs before the roster is looked at.
	broken := append(roster, fingerprint.RosterEntry{PersonID: "S1", Template: t1})
	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)

	lowQuality := testutil.Clone(t1)
	lowQuality.Quality = 0.3

	tests := []struct {
		name   string
		probe  *fingerprint.Template
		roster fingerprint.Roster
		reason string
	}{
		{"too few minutiae", testutil.Truncate(t1, fingerprint.DefaultMinMinutiae-1), roster, fingerprint.ReasonInsufficientMinutiae},
		{"too few minutiae, empty roster", testutil.Truncate(t1, 3), nil, fingerprint.ReasonInsufficientMinutiae},
		{"too few minutiae, broken roster", testutil.Truncate(t1, 0), broken, fingerprint.ReasonInsufficientMinutiae},
		{"low quality", lowQuality, roster, fingerprint.ReasonQualityBelow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := id.Identify(context.Background(), tt.probe, tt.roster)
			require.NoError(t, err)
			assert.Equal(t, fingerprint.MatchResult{Outcome: fingerprint.Rejected, Reason: tt.reason}, res)
		})
	}
}

func TestIdentifyEmptyRoster(t *testing.T) {
	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)

	res, err := id.Identify(context.Background(), testutil.RandomTemplate(1, 20), fingerprint.Roster{})
	require.NoError(t, err)
	assert.Equal(t, fingerprint.MatchResult{Outcome: fingerprint.NoMatch, Reason: fingerprint.ReasonEmptyRoster}, res)
}

func TestIdentifyAmbiguous(t *testing.T) {
	t1 := testutil.RandomTemplate(1, 20)
	roster := fingerprint.Roster{
		{PersonID: "S1", Template: t1},
		{PersonID: "S2", Template: testutil.Clone(t1)},
		{PersonID: "S3", Template: testutil.RandomTemplate(2, 20)},
	}
	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)

	res, err := id.Identify(context.Background(), testutil.Shift(t1, 2, -2), roster)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.NoMatch, res.Outcome)
	assert.Equal(t, fingerprint.ReasonAmbiguous, res.Reason)
	assert.Empty(t, res.PersonID)
}

func TestIdentifyTieBreaksByPersonID(t *testing.T) {
	t1 := testutil.RandomTemplate(1, 20)
	policy := fingerprint.DefaultPolicy()
	policy.AmbiguityMargin = 0
	id := fingerprint.NewIdentifier(policy, nil)

	for _, roster := range []fingerprint.Roster{
		{{PersonID: "S2", Template: t1}, {PersonID: "S1", Template: testutil.Clone(t1)}},
		{{PersonID: "S1", Template: testutil.Clone(t1)}, {PersonID: "S2", Template: t1}},
	} {
		res, err := id.Identify(context.Background(), t1, roster)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.Matched, res.Outcome)
		assert.Equal(t, "S1", res.PersonID)
	}
}

func TestIdentifyRejectsInvalidRoster(t *testing.T) {
	t1 := testutil.RandomTemplate(1, 20)
	outside := testutil.RandomTemplate(2, 20)
	outside.Minutiae[0].X = outside.Shape.Width
	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)

	tests := []struct {
		name   string
		roster fingerprint.Roster
		err    error
	}{
		{"duplicate", fingerprint.Roster{{PersonID: "S1", Template: t1}, {PersonID: "S1", Template: t1}}, fingerprint.ErrDuplicatePerson},
		{"empty id", fingerprint.Roster{{PersonID: "", Template: t1}}, fingerprint.ErrEmptyPersonID},
		{"nil template", fingerprint.Roster{{PersonID: "S1"}}, fingerprint.ErrNilTemplate},
		{"invalid template", fingerprint.Roster{{PersonID: "S1", Template: outside}}, fingerprint.ErrInvariantViolated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := id.Identify(context.Background(), t1, tt.roster)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	var dup *fingerprint.DuplicatePersonError
	_, err := id.Identify(context.Background(), t1, tests[0].roster)
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "S1", dup.PersonID)

	_, err = id.Identify(context.Background(), nil, tests[0].roster)
	assert.ErrorIs(t, err, fingerprint.ErrNilTemplate)
}

func TestIdentifyIsDeterministic(t *testing.T) {
	probe := testutil.Shift(testutil.RandomTemplate(4, 24), 1, 1)
	roster := fingerprint.Roster{}
	for i, seed := range []int64{5, 6, 4, 7, 8} {
		roster = append(roster, fingerprint.RosterEntry{
			PersonID: string(rune('A' + i)),
			Template: testutil.RandomTemplate(seed, 24),
		})
	}
	reversed := make(fingerprint.Roster, len(roster))
	for i, e := range roster {
		reversed[len(roster)-1-i] = e
	}

	single := fingerprint.DefaultPolicy()
	single.Workers = 1
	first, err := fingerprint.NewIdentifier(single, nil).Identify(context.Background(), probe, roster)
	require.NoError(t, err)
	assert.Equal(t, "C", first.PersonID)

	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)
	for i := 0; i < 5; i++ {
		res, err := id.Identify(context.Background(), probe, roster)
		require.NoError(t, err)
		assert.Equal(t, first, res)

		res, err = id.Identify(context.Background(), probe, reversed)
		require.NoError(t, err)
		assert.Equal(t, first, res)
	}
}

func TestIdentifyCancelled(t *testing.T) {
	roster, t1 := scenarioRoster()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil).Identify(ctx, t1, roster)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingContents struct {
	mu      sync.Mutex
	accept  map[string]bool
	keys    []string
	records map[string][]byte
}

func (c *recordingContents) Accepts(key string) bool {
	return c.accept == nil || c.accept[key]
}

func (c *recordingContents) Accept(key, mime string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mime != "application/cbor" {
		return errors.New("unexpected mime " + mime)
	}
	c.keys = append(c.keys, key)
	if c.records == nil {
		c.records = map[string][]byte{}
	}
	c.records[key] = data
	return nil
}

func TestIdentifyTransparency(t *testing.T) {
	roster, t1 := scenarioRoster()

	t.Run("all records", func(t *testing.T) {
		contents := &recordingContents{}
		id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), fingerprint.NewTransparencyLogger(contents))

		res, err := id.Identify(context.Background(), t1, roster)
		require.NoError(t, err)

		assert.Equal(t, []string{
			fingerprint.TransparencyQuality,
			fingerprint.TransparencyAlignment,
			fingerprint.TransparencyAlignment,
			fingerprint.TransparencyCandidates,
			fingerprint.TransparencyDecision,
		}, contents.keys)

		var decision fingerprint.MatchResult
		require.NoError(t, cbor.Unmarshal(contents.records[fingerprint.TransparencyDecision], &decision))
		assert.Equal(t, res, decision)
	})

	t.Run("only accepted keys", func(t *testing.T) {
		contents := &recordingContents{accept: map[string]bool{fingerprint.TransparencyDecision: true}}
		id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), fingerprint.NewTransparencyLogger(contents))

		_, err := id.Identify(context.Background(), testutil.Truncate(t1, 2), roster)
		require.NoError(t, err)
		assert.Equal(t, []string{fingerprint.TransparencyDecision}, contents.keys)
	})

	t.Run("nil contents", func(t *testing.T) {
		assert.Nil(t, fingerprint.NewTransparencyLogger(nil))
	})
}

func TestIdentifyRejectsInvalidProbe(t *testing.T) {
	roster, t1 := scenarioRoster()
	id := fingerprint.NewIdentifier(fingerprint.DefaultPolicy(), nil)

	for _, q := range []float64{math.NaN(), 7} {
		probe := testutil.Clone(t1)
		probe.Quality = q

		res, err := id.Identify(context.Background(), probe, roster)
		assert.ErrorIs(t, err, fingerprint.ErrInvariantViolated)
		assert.Zero(t, res)
	}
}
