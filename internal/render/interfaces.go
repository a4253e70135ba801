package render

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrQueueClosed is returned by a Queue that no longer hands out or accepts items.
var ErrQueueClosed = errors.New("queue closed")

// JobStore persists job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// JobUpdate carries a status transition and any artifact details known at that point.
type JobUpdate struct {
	Status    JobStatus
	ErrorText string
	BlobURI   string
	MirrorURI string
	Hash      string
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Renderer turns a source file into an artifact using a preset.
type Renderer interface {
	Render(ctx context.Context, sourcePath string, preset Preset) (Artifact, error)
}

// PresetCatalog resolves preset names.
type PresetCatalog interface {
	List() ([]string, error)
	Load(name string) (Preset, error)
}

// Queue provides enqueue/dequeue semantics for render jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
