package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/schedule-engine/models"
)

type fakeUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, reader io.Reader) (*UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.key = key
	f.contentType = contentType
	f.body = body
	return &UploadResult{Key: key}, nil
}

func (f *fakeUploader) Delete(context.Context, string) error { return nil }

func (f *fakeUploader) GetPublicURL(string) string { return "" }

func sampleRun() *models.PolicyRunSnapshot {
	return &models.PolicyRunSnapshot{
		ID:            "7b0c9f1e-aa11-4d9e-9f7e-0cc6a1b2c3d4",
		VersionID:     42,
		Day:           2,
		PolicyVersion: "v1",
		Config:        json.RawMessage(`{"spare_slots_per_day":1}`),
		InputState:    []byte(`{"version_id":42,"day":2}`),
		InputHash:     "abc123",
		OutputHash:    "def456",
		Signature:     "signed",
		AssignedCount: 3,
		FailedCount:   1,
		InvariantOK:   true,
		BatchResults:  json.RawMessage(`[]`),
		Violations:    json.RawMessage(`[]`),
		SpareSlotIDs:  json.RawMessage(`[9]`),
		CreatedAt:     time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotArchiverWritesReplayableDocument(t *testing.T) {
	uploader := &fakeUploader{}
	archiver := NewSnapshotArchiver(uploader)

	key, err := archiver.ArchiveRun(context.Background(), sampleRun())
	require.NoError(t, err)

	assert.Equal(t, "policy-runs/42/7b0c9f1e-aa11-4d9e-9f7e-0cc6a1b2c3d4.json", key)
	assert.Equal(t, key, uploader.key)
	assert.Equal(t, "application/json", uploader.contentType)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(uploader.body, &doc))

	// The API representation hides the raw input; the archive must not.
	require.Contains(t, doc, "input_state")
	assert.JSONEq(t, `{"version_id":42,"day":2}`, string(doc["input_state"]))
	assert.JSONEq(t, `"abc123"`, string(doc["input_hash"]))
	assert.JSONEq(t, `"signed"`, string(doc["signature"]))
}

func TestSnapshotArchiverPropagatesUploadFailure(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("bucket unreachable")}
	archiver := NewSnapshotArchiver(uploader)

	key, err := archiver.ArchiveRun(context.Background(), sampleRun())
	require.Error(t, err)
	assert.Empty(t, key)
}
