package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/courtside/schedule-engine/models"
)

// archivedRun is the document written to the object store. The database
// row hides the raw input state from API responses; the archive is replay
// material, so it carries the canonical input bytes inline.
type archivedRun struct {
	models.PolicyRunSnapshot
	InputState json.RawMessage `json:"input_state"`
}

// SnapshotArchiver mirrors committed policy-run snapshots into an object
// store, one JSON document per run. Uploads are fire-and-forget from the
// caller's point of view; the database row stays the source of truth.
type SnapshotArchiver struct {
	uploader FileUploader
}

func NewSnapshotArchiver(uploader FileUploader) *SnapshotArchiver {
	return &SnapshotArchiver{uploader: uploader}
}

// ArchiveRun uploads the snapshot under policy-runs/<version>/<run>.json
// and returns the object key.
func (a *SnapshotArchiver) ArchiveRun(ctx context.Context, run *models.PolicyRunSnapshot) (string, error) {
	doc := archivedRun{
		PolicyRunSnapshot: *run,
		InputState:        json.RawMessage(run.InputState),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", run.ID, err)
	}

	key := fmt.Sprintf("policy-runs/%d/%s.json", run.VersionID, run.ID)
	if _, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return "", err
	}
	return key, nil
}
