package models

import (
	"encoding/json"
	"time"
)

// PolicyRunSnapshot is an append-only audit record of one policy-engine
// invocation. It captures the canonical pre-run input state alongside the
// input/output digests and a signed receipt, so a past run can be replayed
// and verified bit-for-bit. Never mutated after creation.
type PolicyRunSnapshot struct {
	ID            string          `json:"id" db:"id"`
	VersionID     int             `json:"version_id" db:"version_id"`
	Day           int             `json:"day" db:"day"`
	PolicyVersion string          `json:"policy_version" db:"policy_version"`
	Config        json.RawMessage `json:"config" db:"config"`
	InputState    []byte          `json:"-" db:"input_state"`
	InputHash     string          `json:"input_hash" db:"input_hash"`
	OutputHash    string          `json:"output_hash" db:"output_hash"`
	Signature     string          `json:"signature" db:"signature"`
	AssignedCount int             `json:"assigned_count" db:"assigned_count"`
	FailedCount   int             `json:"failed_count" db:"failed_count"`
	InvariantOK   bool            `json:"invariant_ok" db:"invariant_ok"`
	BatchResults  json.RawMessage `json:"batch_results" db:"batch_results"`
	Violations    json.RawMessage `json:"violations" db:"violations"`
	SpareSlotIDs  json.RawMessage `json:"spare_slot_ids" db:"spare_slot_ids"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
