// Package render defines core types shared across the render service and its clients.
package render

import (
	"encoding/json"
	"time"
)

// Request is the body of POST /api/blue/v1/render.
// Token is nil when the caller has no session cookie and encodes as null.
type Request struct {
	Token  *string `json:"token"`
	From   string  `json:"from"`
	To     string  `json:"to"`
	Preset string  `json:"preset"`
}

// Response type discriminants.
const (
	TypeError    = "error"
	TypeRendered = "blue rendered"
	TypePresets  = "blue presets"
	TypeDirItems = "dir content"
	TypeCreated  = "service created"
)

// Response is the tagged envelope returned by the render API.
type Response struct {
	Type    string     `json:"type"`
	Kind    *ErrorKind `json:"kind,omitempty"`
	NewPath string     `json:"newpath,omitempty"`
	ID      string     `json:"id,omitempty"`
	Presets []string   `json:"presets,omitempty"`
	Default string     `json:"default,omitempty"`
}

// DirItemsResponse lists one directory.
type DirItemsResponse struct {
	Type    string    `json:"type"`
	Content []DirItem `json:"content"`
}

// DirItem is one entry of a directory listing.
type DirItem struct {
	Name         string `json:"name"`
	IsFile       bool   `json:"is_file"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"last_modified"`
}

// ErrorKind describes why a request failed.
type ErrorKind struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Error kind values.
const (
	KindBadRequest       = "bad request"
	KindInvalidToken     = "invalid token"
	KindNotVerified      = "not verified"
	KindFileNotFound     = "file not found"
	KindPermissionDenied = "permission denied"
	KindPathOccupied     = "path occupied"
	KindPresetNotFound   = "preset not found"
	KindQueueFull        = "queue full"
	KindTooManyRequests  = "too many requests"
	KindTimedOut         = "timed out"
	KindExternal         = "external"
	KindTypeMismatch     = "type mismatch"
	KindFeatureDisabled  = "feature disabled"
	KindAlreadyCreated   = "already created"
	KindNotCreated       = "not created"
)

// ErrorResponse builds an error envelope.
func ErrorResponse(kind, content string) Response {
	return Response{Type: TypeError, Kind: &ErrorKind{Type: kind, Content: content}}
}

// Failure is an ErrorKind carried as a Go error.
type Failure struct {
	Kind ErrorKind
}

// NewFailure creates a Failure of the given kind.
func NewFailure(kind string) *Failure {
	return &Failure{Kind: ErrorKind{Type: kind}}
}

// External wraps a renderer failure message.
func External(content string) *Failure {
	return &Failure{Kind: ErrorKind{Type: KindExternal, Content: content}}
}

func (f *Failure) Error() string {
	if f.Kind.Content == "" {
		return f.Kind.Type
	}
	return f.Kind.Type + ": " + f.Kind.Content
}

// MarshalJSON encodes the failure as its kind.
func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Kind)
}

// Task is one unit of render work against a user's file tree.
type Task struct {
	AccountID int64  `json:"account_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Preset    string `json:"preset"`
}

// JobStatus represents the lifecycle state of a render job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// IsTerminal reports whether no further transitions happen from status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// Job represents the metadata persisted for each submitted render.
type Job struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	Task      Task       `json:"task"`
	Submitted time.Time  `json:"submitted_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	BlobURI   string     `json:"blob_uri,omitempty"`
	MirrorURI string     `json:"mirror_uri,omitempty"`
	Hash      string     `json:"hash,omitempty"`
}

// Result is delivered to the submitter once a job reaches a terminal state.
type Result struct {
	JobID   string
	NewPath string
	Err     error
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID    string
	Task     Task
	Deadline time.Time
	Reply    chan<- Result
}

// Artifact is the encoded output of a render.
type Artifact struct {
	Data        []byte
	ContentType string
	Duration    time.Duration
}
