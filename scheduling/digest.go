package scheduling

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// digestPrefix names the algorithm inside the rendered digest so stored
// hashes stay self-describing if the algorithm ever changes.
const digestPrefix = "blake2b:"

// Digest returns the BLAKE2b-256 digest of raw rendered as "blake2b:<hex>".
func Digest(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return digestPrefix + hex.EncodeToString(sum[:])
}

// RunInput is the canonical pre-run document of one policy invocation.
// Its JSON encoding is the replay contract: the snapshot stores these exact
// bytes, and replay decodes them to re-run the engine on identical input.
type RunInput struct {
	Day    int          `json:"day"`
	Config PolicyConfig `json:"config"`
	State  *State       `json:"state"`
}

// EncodeRunInput renders the canonical pre-run document: state slices in
// canonical order, all timestamps in UTC. Encoding the same logical state
// twice yields identical bytes.
func EncodeRunInput(st *State, day int, cfg PolicyConfig) ([]byte, error) {
	doc := RunInput{Day: day, Config: cfg, State: st.normalizedCopy()}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode run input: %w", err)
	}
	return raw, nil
}

func DecodeRunInput(raw []byte) (*RunInput, error) {
	var doc RunInput
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode run input: %w", err)
	}
	if doc.State == nil {
		return nil, fmt.Errorf("decode run input: missing state document")
	}
	return &doc, nil
}

// outputEntry is one post-run binding in the canonical output document.
// Row IDs and timestamps are deliberately absent: two runs that produce the
// same placements hash identically regardless of when they ran.
type outputEntry struct {
	MatchID    int    `json:"match_id"`
	SlotID     int    `json:"slot_id"`
	Locked     bool   `json:"locked"`
	AssignedBy string `json:"assigned_by"`
}

type runOutput struct {
	Assignments []outputEntry  `json:"assignments"`
	Failed      []SkippedMatch `json:"failed"`
}

func encodeRunOutput(entries []outputEntry, failed []SkippedMatch) ([]byte, error) {
	sorted := make([]outputEntry, 0, len(entries))
	sorted = append(sorted, entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MatchID != sorted[j].MatchID {
			return sorted[i].MatchID < sorted[j].MatchID
		}
		return sorted[i].SlotID < sorted[j].SlotID
	})
	failedSorted := make([]SkippedMatch, 0, len(failed))
	failedSorted = append(failedSorted, failed...)
	sort.Slice(failedSorted, func(i, j int) bool {
		if failedSorted[i].MatchID != failedSorted[j].MatchID {
			return failedSorted[i].MatchID < failedSorted[j].MatchID
		}
		return failedSorted[i].Code < failedSorted[j].Code
	})
	raw, err := json.Marshal(runOutput{Assignments: sorted, Failed: failedSorted})
	if err != nil {
		return nil, fmt.Errorf("encode run output: %w", err)
	}
	return raw, nil
}
