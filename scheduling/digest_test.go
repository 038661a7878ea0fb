package scheduling

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/schedule-engine/models"
)

func TestDigestShape(t *testing.T) {
	d := Digest([]byte("schedule"))

	assert.True(t, strings.HasPrefix(d, "blake2b:"))
	assert.Len(t, strings.TrimPrefix(d, "blake2b:"), 64, "BLAKE2b-256 hex digest")
	assert.Equal(t, d, Digest([]byte("schedule")))
	assert.NotEqual(t, d, Digest([]byte("schedule2")))
}

func TestEncodeRunInputCanonicalAcrossOrderAndZone(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)

	a := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 2, 0, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60, 1, 2),
			matchOf(11, models.StageBracketMain, 1, 1, 60, 3, 4),
		},
		Assignments: []models.Assignment{assigned(1, 10, 1, false, models.AssignedByAutomatic)},
	}

	// Same rows, shuffled slices, timestamps expressed in another zone.
	shiftZone := func(s models.Slot) models.Slot {
		s.StartTime = s.StartTime.In(moscow)
		s.EndTime = s.EndTime.In(moscow)
		return s
	}
	b := &State{
		VersionID: 1,
		Slots: []models.Slot{
			shiftZone(slotAt(2, 1, 2, 0, 60)),
			shiftZone(slotAt(1, 1, 1, 0, 60)),
		},
		Matches: []models.Match{
			matchOf(11, models.StageBracketMain, 1, 1, 60, 3, 4),
			matchOf(10, models.StageRoundRobin, 1, 1, 60, 1, 2),
		},
		Assignments: []models.Assignment{assigned(1, 10, 1, false, models.AssignedByAutomatic)},
	}

	cfg := DefaultPolicyConfig()
	rawA, err := EncodeRunInput(a, 1, cfg)
	require.NoError(t, err)
	rawB, err := EncodeRunInput(b, 1, cfg)
	require.NoError(t, err)

	assert.Equal(t, string(rawA), string(rawB))
	assert.Equal(t, Digest(rawA), Digest(rawB))
}

func TestDecodeRunInputRoundTrip(t *testing.T) {
	st := &State{
		VersionID: 7,
		Slots:     []models.Slot{slotAt(1, 1, 1, 0, 90)},
		Matches:   []models.Match{matchOf(10, models.StageConsolationT2, 2, 3, 45, 12)},
	}
	cfg := DefaultPolicyConfig()
	cfg.SpareSlotsPerDay = 2

	raw, err := EncodeRunInput(st, 3, cfg)
	require.NoError(t, err)

	doc, err := DecodeRunInput(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Day)
	assert.Equal(t, cfg, doc.Config)
	require.NotNil(t, doc.State)
	assert.Equal(t, 7, doc.State.VersionID)
	require.Len(t, doc.State.Matches, 1)
	assert.Equal(t, models.StageConsolationT2, doc.State.Matches[0].Stage)
	require.NotNil(t, doc.State.Matches[0].TeamAID)
	assert.Equal(t, 12, *doc.State.Matches[0].TeamAID)

	reencoded, err := EncodeRunInput(doc.State, doc.Day, doc.Config)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(reencoded), "round trip is lossless")
}

func TestDecodeRunInputRejectsGarbage(t *testing.T) {
	_, err := DecodeRunInput([]byte("{not json"))
	require.Error(t, err)

	_, err = DecodeRunInput([]byte(`{"day":1,"config":{}}`))
	require.Error(t, err, "a document without a state section is unusable")
}
