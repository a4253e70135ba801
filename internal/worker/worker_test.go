package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

func TestWorker_ProcessJob_SuccessFlow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{
		JobID: "job-success",
		Task:  render.Task{AccountID: 7, From: "files/world.zip", To: "blue/maps/world", Preset: "fast"},
		Reply: reply,
	}}}
	jobStore := newFakeJobStore()
	files := newFakeBlobStore("file")
	mirror := newFakeBlobStore("gs")
	publisher := newFakePublisher()
	renderer := &fakeRenderer{artifact: render.Artifact{Data: []byte("png"), ContentType: "image/png", Duration: time.Second}}

	w := New(
		queue,
		jobStore,
		files,
		mirror,
		publisher,
		renderer,
		fakePresets{"fast": {Name: "fast", Format: render.FormatPNG}},
		&fakeHasher{hash: "abc123"},
		&fakeClock{now: time.Unix(100, 0).UTC()},
		Config{UsersDir: "/srv/users", MirrorPrefix: "/renders/", Topic: "renders"},
		zap.NewNop(),
	)

	go w.Run(ctx)

	var res render.Result
	select {
	case res = <-reply:
	case <-time.After(time.Second):
		t.Fatal("worker did not reply")
	}
	require.NoError(t, res.Err)
	require.Equal(t, "job-success", res.JobID)
	require.Equal(t, "blue/maps/world", res.NewPath)

	require.Equal(t, filepath.Join("/srv/users", "7", "files", "world.zip"), renderer.lastSource())
	require.Equal(t, "7/blue/maps/world", files.lastPath)
	require.Equal(t, "renders/7/blue/maps/world", mirror.lastPath)
	require.Equal(t, []byte("png"), files.objects["7/blue/maps/world"])

	require.Equal(t, []render.JobStatus{render.JobStatusRunning, render.JobStatusSucceeded}, jobStore.statusList())
	final := jobStore.last()
	require.Equal(t, "file://7/blue/maps/world", final.BlobURI)
	require.Equal(t, "gs://renders/7/blue/maps/world", final.MirrorURI)
	require.Equal(t, "abc123", final.Hash)

	msgs := publisher.all()
	require.Len(t, msgs, 1)
	require.Equal(t, "succeeded", msgs[0]["status"])
	require.Equal(t, int64(7), msgs[0]["account_id"])
	require.Equal(t, "1970-01-01T00:01:40Z", msgs[0]["timestamp"])
	for _, key := range []string{"job_id", "from", "to", "preset", "blob_uri", "mirror_uri", "hash"} {
		require.Contains(t, msgs[0], key)
	}
}

func TestWorker_ProcessJob_RendererFailureIsExternal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{
		JobID: "job-fail",
		Task:  render.Task{AccountID: 1, From: "a", To: "blue/b", Preset: "fast"},
		Reply: reply,
	}}}
	jobStore := newFakeJobStore()
	files := newFakeBlobStore("file")

	w := New(queue, jobStore, files, nil, nil,
		&fakeRenderer{err: errors.New("chrome crashed")},
		fakePresets{"fast": {Format: render.FormatPNG}},
		&fakeHasher{}, &fakeClock{}, Config{}, zap.NewNop())
	go w.Run(ctx)

	res := <-reply
	var failure *render.Failure
	require.ErrorAs(t, res.Err, &failure)
	require.Equal(t, render.KindExternal, failure.Kind.Type)
	require.Equal(t, "chrome crashed", failure.Kind.Content)
	require.Empty(t, res.NewPath)
	require.Empty(t, files.objects)
	require.Eventually(t, func() bool {
		return jobStore.last().Status == render.JobStatusFailed
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "external: chrome crashed", jobStore.last().ErrorText)
}

func TestWorker_ProcessJob_UnknownPreset(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{JobID: "job-preset", Task: render.Task{Preset: "gone"}, Reply: reply}}}
	renderer := &fakeRenderer{}

	w := New(queue, newFakeJobStore(), newFakeBlobStore("file"), nil, nil, renderer,
		fakePresets{}, &fakeHasher{}, &fakeClock{}, Config{}, zap.NewNop())
	go w.Run(ctx)

	res := <-reply
	var failure *render.Failure
	require.ErrorAs(t, res.Err, &failure)
	require.Equal(t, render.KindPresetNotFound, failure.Kind.Type)
	require.Empty(t, renderer.lastSource())
}

func TestWorker_ProcessJob_ExpiredDeadlineTimesOut(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{
		JobID:    "job-late",
		Task:     render.Task{Preset: "fast"},
		Deadline: time.Now().Add(-time.Second),
		Reply:    reply,
	}}}
	jobStore := newFakeJobStore()
	publisher := newFakePublisher()

	w := New(queue, jobStore, newFakeBlobStore("file"), nil, publisher, &fakeRenderer{},
		fakePresets{"fast": {}}, &fakeHasher{}, &fakeClock{}, Config{Topic: "renders"}, zap.NewNop())
	go w.Run(ctx)

	res := <-reply
	var failure *render.Failure
	require.ErrorAs(t, res.Err, &failure)
	require.Equal(t, render.KindTimedOut, failure.Kind.Type)
	require.Eventually(t, func() bool {
		return jobStore.last().Status == render.JobStatusTimedOut
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		msgs := publisher.all()
		return len(msgs) == 1 && msgs[0]["status"] == "timed_out"
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_PublishFailureDoesNotFailRender(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{JobID: "job-pub", Task: render.Task{To: "blue/x", Preset: "p"}, Reply: reply}}}
	publisher := newFakePublisher()
	publisher.err = errors.New("pub failure")
	jobStore := newFakeJobStore()

	w := New(queue, jobStore, newFakeBlobStore("file"), nil, publisher,
		&fakeRenderer{artifact: render.Artifact{Data: []byte("x")}},
		fakePresets{"p": {}}, &fakeHasher{}, &fakeClock{}, Config{Topic: "renders"}, zap.NewNop())
	go w.Run(ctx)

	res := <-reply
	require.NoError(t, res.Err)
	require.Equal(t, render.JobStatusSucceeded, jobStore.last().Status)
}

func TestWorker_MirrorFailureKeepsArtifact(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{JobID: "job-mirror", Task: render.Task{To: "blue/x", Preset: "p"}, Reply: reply}}}
	mirror := newFakeBlobStore("gs")
	mirror.err = errors.New("bucket gone")
	jobStore := newFakeJobStore()

	w := New(queue, jobStore, newFakeBlobStore("file"), mirror, nil,
		&fakeRenderer{artifact: render.Artifact{Data: []byte("x")}},
		fakePresets{"p": {}}, &fakeHasher{hash: "h"}, &fakeClock{}, Config{}, zap.NewNop())
	go w.Run(ctx)

	res := <-reply
	require.NoError(t, res.Err)
	final := jobStore.last()
	require.Equal(t, render.JobStatusSucceeded, final.Status)
	require.NotEmpty(t, final.BlobURI)
	require.Empty(t, final.MirrorURI)
}

func TestWorker_BlobFailureFailsJob(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply := make(chan render.Result, 1)
	queue := &fakeQueue{items: []render.QueueItem{{JobID: "job-blob", Task: render.Task{To: "blue/x", Preset: "p"}, Reply: reply}}}
	files := newFakeBlobStore("file")
	files.err = errors.New("disk full")

	w := New(queue, newFakeJobStore(), files, nil, nil,
		&fakeRenderer{artifact: render.Artifact{Data: []byte("x")}},
		fakePresets{"p": {}}, &fakeHasher{}, &fakeClock{}, Config{}, zap.NewNop())
	go w.Run(ctx)

	res := <-reply
	var failure *render.Failure
	require.ErrorAs(t, res.Err, &failure)
	require.Equal(t, render.KindExternal, failure.Kind.Type)
	require.Contains(t, failure.Kind.Content, "disk full")
}

func TestWorker_RunStopsOnClosedQueue(t *testing.T) {
	t.Parallel()

	w := New(closedQueue{}, nil, nil, nil, nil, nil, nil, nil, nil, Config{}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on closed queue")
	}
}

func TestWorker_ReplyDoesNotBlockWithoutReader(t *testing.T) {
	t.Parallel()

	w := New(nil, nil, nil, nil, nil, nil, nil, nil, nil, Config{}, zap.NewNop())
	unbuffered := make(chan render.Result)
	w.reply(render.QueueItem{JobID: "j", Reply: unbuffered}, render.Result{JobID: "j"})
	w.reply(render.QueueItem{JobID: "j"}, render.Result{JobID: "j"})
}

func TestWorkerPaths(t *testing.T) {
	t.Parallel()

	w := New(nil, nil, nil, nil, nil, nil, nil, nil, nil, Config{UsersDir: "/data", MirrorPrefix: ""}, zap.NewNop())
	task := render.Task{AccountID: 3, From: "drive/a.zip", To: "blue/out"}
	require.Equal(t, filepath.Join("/data", "3", "drive", "a.zip"), w.sourcePath(task))
	require.Equal(t, "3/blue/out", w.targetPath(task))
	require.Equal(t, "3/blue/out", w.mirrorPath(task))
}

// --- fakes ---

type fakeQueue struct {
	mu    sync.Mutex
	items []render.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item render.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (render.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return render.QueueItem{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

type closedQueue struct{}

func (closedQueue) Enqueue(context.Context, render.QueueItem) error { return render.ErrQueueClosed }

func (closedQueue) Dequeue(context.Context) (render.QueueItem, error) {
	return render.QueueItem{}, render.ErrQueueClosed
}

type fakeJobStore struct {
	mu      sync.Mutex
	updates []render.JobUpdate
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{}
}

func (f *fakeJobStore) CreateJob(context.Context, render.Job) error {
	return nil
}

func (f *fakeJobStore) UpdateJob(_ context.Context, _ string, update render.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeJobStore) GetJob(context.Context, string) (render.Job, error) {
	return render.Job{}, nil
}

func (f *fakeJobStore) last() render.JobUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return render.JobUpdate{}
	}
	return f.updates[len(f.updates)-1]
}

func (f *fakeJobStore) statusList() []render.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]render.JobStatus, 0, len(f.updates))
	for _, u := range f.updates {
		out = append(out, u.Status)
	}
	return out
}

type fakeBlobStore struct {
	mu       sync.Mutex
	scheme   string
	objects  map[string][]byte
	lastPath string
	err      error
}

func newFakeBlobStore(scheme string) *fakeBlobStore {
	return &fakeBlobStore{scheme: scheme, objects: make(map[string][]byte)}
}

func (b *fakeBlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = data
	b.lastPath = path
	return b.scheme + "://" + path, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []map[string]any
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		p.messages = append(p.messages, m)
	}
	return "msgid", nil
}

func (p *fakePublisher) all() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.messages...)
}

type fakeRenderer struct {
	mu       sync.Mutex
	artifact render.Artifact
	err      error
	source   string
}

func (r *fakeRenderer) Render(_ context.Context, sourcePath string, _ render.Preset) (render.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = sourcePath
	if r.err != nil {
		return render.Artifact{}, r.err
	}
	return r.artifact, nil
}

func (r *fakeRenderer) lastSource() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

type fakePresets map[string]render.Preset

func (f fakePresets) List() ([]string, error) {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names, nil
}

func (f fakePresets) Load(name string) (render.Preset, error) {
	p, ok := f[name]
	if !ok {
		return render.Preset{}, errors.New("no such preset")
	}
	return p, nil
}

type fakeHasher struct {
	hash string
	err  error
}

func (h *fakeHasher) Hash(data []byte) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	if h.hash != "" {
		return h.hash, nil
	}
	return string(data), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
