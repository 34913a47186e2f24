package processing

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clippress/internal/ai"
	"clippress/internal/blob"
	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/services"
	"clippress/internal/store"
	"clippress/internal/testsupport"
)

type queuedJob struct {
	name string
	args map[string]string
}

// queueDispatcher records submissions so tests can drive handlers manually.
type queueDispatcher struct {
	registry *dispatch.Registry
	queue    []queuedJob
	revoked  []dispatch.Handle
}

func (d *queueDispatcher) Submit(_ context.Context, jobName string, args map[string]string) (dispatch.Handle, error) {
	d.queue = append(d.queue, queuedJob{name: jobName, args: args})
	return dispatch.Handle("handle-" + jobName + "-" + args["task_id"]), nil
}

func (d *queueDispatcher) Revoke(handle dispatch.Handle, _ bool) error {
	d.revoked = append(d.revoked, handle)
	return nil
}

func (d *queueDispatcher) Close() error { return nil }

// drain runs queued jobs to completion, including jobs submitted while
// draining. Handler errors are ignored; outcomes are persisted by the
// handlers themselves.
func (d *queueDispatcher) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < len(d.queue); i++ {
		job := d.queue[i]
		handler, ok := d.registry.Lookup(job.name)
		if !ok {
			t.Fatalf("no handler registered for %q", job.name)
		}
		_ = handler(context.Background(), job.args)
	}
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Name() string { return "openai" }
func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeAnalyzer struct {
	analysis ai.Analysis
	err      error
	calls    int
	inputs   []string
}

func (f *fakeAnalyzer) Name() string { return "openai" }
func (f *fakeAnalyzer) Analyze(_ context.Context, transcription string) (ai.Analysis, error) {
	f.calls++
	f.inputs = append(f.inputs, transcription)
	return f.analysis, f.err
}

type fakeNotifier struct {
	ready  []string
	failed []string
}

func (f *fakeNotifier) VideoReady(_ context.Context, video *store.Video) {
	f.ready = append(f.ready, video.ID)
}

func (f *fakeNotifier) VideoFailed(_ context.Context, video *store.Video, _ string) {
	f.failed = append(f.failed, video.ID)
}

type fixture struct {
	orchestrator *Orchestrator
	store        *store.Store
	blobs        *blob.Store
	blobDir      string
	dispatcher   *queueDispatcher
	notifier     *fakeNotifier
	transcriber  *fakeTranscriber
	analyzer     *fakeAnalyzer
}

func newFixture(t *testing.T, withAnalyzer bool) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	blobs, err := blob.NewStore(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blob.NewStore: %v", err)
	}

	registry := dispatch.NewRegistry()
	dispatcher := &queueDispatcher{registry: registry}
	transcriber := &fakeTranscriber{text: "hello from the clip"}
	notifier := &fakeNotifier{}
	var analyzer *fakeAnalyzer
	var analyzerIface ai.Analyzer
	if withAnalyzer {
		analyzer = &fakeAnalyzer{analysis: ai.Analysis{
			Summary:   "A short clip.",
			Tags:      []string{"clip", "demo"},
			Topics:    []string{"testing"},
			Sentiment: "neutral",
		}}
		analyzerIface = analyzer
	}

	orchestrator := NewOrchestrator(cfg, st, blobs, dispatcher, transcriber, analyzerIface, notifier, logging.NewNop())
	orchestrator.extractThumbnail = func(_ context.Context, _, _ string, _ float64, dest string) error {
		return os.WriteFile(dest, []byte("jpeg bytes"), 0o644)
	}
	orchestrator.extractAudio = func(_ context.Context, _, _, dest string) error {
		return os.WriteFile(dest, []byte("wav bytes"), 0o644)
	}
	orchestrator.compress = func(_ context.Context, _, _, dest string) error {
		return os.WriteFile(dest, []byte("compressed bytes"), 0o644)
	}
	orchestrator.RegisterJobs(registry)

	return &fixture{
		orchestrator: orchestrator,
		store:        st,
		blobs:        blobs,
		blobDir:      cfg.Paths.BlobDir,
		dispatcher:   dispatcher,
		notifier:     notifier,
		transcriber:  transcriber,
		analyzer:     analyzer,
	}
}

// assertNoScopedTemps verifies every task handler released its temp files,
// on success and failure paths alike.
func (f *fixture) assertNoScopedTemps(t *testing.T) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(f.blobDir, "scoped-*"))
	if err != nil {
		t.Fatalf("glob scoped temps: %v", err)
	}
	if len(leftovers) > 0 {
		t.Errorf("scoped temp files left behind: %v", leftovers)
	}
}

func (f *fixture) seedVideo(t *testing.T) *store.Video {
	t.Helper()
	handle, _, err := f.blobs.Put(strings.NewReader("original video bytes"))
	if err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	return testsupport.SeedVideo(t, f.store, func(v *store.Video) {
		v.BlobHandle = handle
		v.DurationSecs = 30
	})
}

func TestStartProcessingCreatesBatchAndSubmitsJobs(t *testing.T) {
	f := newFixture(t, true)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	tasks, err := f.store.TasksForVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("TasksForVideo: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks with analyzer configured, got %d", len(tasks))
	}

	// Analysis waits for the transcription, so only three jobs go out up front.
	if len(f.dispatcher.queue) != 3 {
		t.Fatalf("expected 3 immediate submissions, got %d", len(f.dispatcher.queue))
	}
	for _, job := range f.dispatcher.queue {
		if job.name == JobContentAnalysis {
			t.Fatal("content analysis submitted before transcription completed")
		}
	}
}

func TestStartProcessingWithoutAnalyzerSkipsAnalysisTask(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	tasks, err := f.store.TasksForVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("TasksForVideo: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks without analyzer, got %d", len(tasks))
	}
}

func TestBatchCreateFailureFailsVideo(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	// Break batch creation underneath the orchestrator.
	db, err := sql.Open("sqlite", f.store.Path())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`ALTER TABLE processing_tasks RENAME TO processing_tasks_hidden`); err != nil {
		t.Fatalf("hide task table: %v", err)
	}

	if err := f.orchestrator.StartProcessing(context.Background(), video); err == nil {
		t.Fatal("expected error when the batch cannot be created")
	}

	if _, err := db.Exec(`ALTER TABLE processing_tasks_hidden RENAME TO processing_tasks`); err != nil {
		t.Fatalf("restore task table: %v", err)
	}

	current, err := f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoFailed {
		t.Fatalf("expected video failed after batch creation error, got %q", current.Status)
	}
	tasks, err := f.store.TasksForVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("TasksForVideo: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no partial task rows, got %d", len(tasks))
	}
}

func TestAllRequiredCompletedMovesVideoReady(t *testing.T) {
	f := newFixture(t, true)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	f.dispatcher.drain(t)

	current, err := f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoReady {
		t.Fatalf("expected ready video, got %q", current.Status)
	}
	if current.Thumbnail == "" {
		t.Fatal("expected thumbnail handle on video")
	}
	if current.Transcription != "hello from the clip" {
		t.Fatalf("expected stored transcription, got %q", current.Transcription)
	}
	if current.BlobHandle == video.BlobHandle {
		t.Fatal("expected compression to replace the stored binary")
	}
	if len(current.Tags) != 2 {
		t.Fatalf("expected analysis tags on video, got %v", current.Tags)
	}
	if f.analyzer.calls != 1 {
		t.Fatalf("expected one analysis call, got %d", f.analyzer.calls)
	}
	if f.analyzer.inputs[0] != "hello from the clip" {
		t.Fatalf("analysis read wrong transcription: %q", f.analyzer.inputs[0])
	}
	if len(f.notifier.ready) != 1 || f.notifier.ready[0] != video.ID {
		t.Fatalf("expected ready notification, got %v", f.notifier.ready)
	}
	f.assertNoScopedTemps(t)
}

func TestRequiredTaskFailureFailsVideo(t *testing.T) {
	f := newFixture(t, false)
	f.transcriber.err = errors.New("provider unavailable")
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	f.dispatcher.drain(t)

	current, err := f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoFailed {
		t.Fatalf("expected failed video, got %q", current.Status)
	}
	if len(f.notifier.failed) != 1 {
		t.Fatalf("expected failure notification, got %v", f.notifier.failed)
	}

	report, err := f.orchestrator.Status(context.Background(), video.ID, video.OwnerID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Counts[store.TaskFailed] != 1 {
		t.Fatalf("expected one failed task, got %v", report.Counts)
	}
	if report.Counts[store.TaskCompleted] != 2 {
		t.Fatalf("expected two completed tasks, got %v", report.Counts)
	}
	f.assertNoScopedTemps(t)
}

func TestAnalysisFailureDoesNotBlockReadiness(t *testing.T) {
	f := newFixture(t, true)
	f.analyzer.err = errors.New("model overloaded")
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	f.dispatcher.drain(t)

	current, err := f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoReady {
		t.Fatalf("expected ready video despite analysis failure, got %q", current.Status)
	}

	report, err := f.orchestrator.Status(context.Background(), video.ID, video.OwnerID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Counts[store.TaskFailed] != 1 {
		t.Fatalf("expected failed analysis task, got %v", report.Counts)
	}
}

func TestRetrySchedulesFreshBatchForFailedTypes(t *testing.T) {
	f := newFixture(t, false)
	f.transcriber.err = errors.New("provider unavailable")
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	f.dispatcher.drain(t)

	f.transcriber.err = nil
	if err := f.orchestrator.Retry(context.Background(), video.ID, video.OwnerID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	current, err := f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoProcessing {
		t.Fatalf("expected processing after retry, got %q", current.Status)
	}

	f.dispatcher.drain(t)

	current, err = f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoReady {
		t.Fatalf("expected ready after retry run, got %q", current.Status)
	}

	tasks, err := f.store.TasksForVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("TasksForVideo: %v", err)
	}
	transcriptionTasks := 0
	for _, task := range tasks {
		if task.Type == store.TaskTranscription {
			transcriptionTasks++
		}
	}
	if transcriptionTasks != 1 {
		t.Fatalf("expected the failed task replaced, found %d transcription tasks", transcriptionTasks)
	}
}

func TestRetryWithoutFailuresIsValidationError(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if err := f.orchestrator.Retry(context.Background(), video.ID, video.OwnerID); !services.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelRevokesJobsAndFailsVideo(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	if err := f.orchestrator.Cancel(context.Background(), video.ID, video.OwnerID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(f.dispatcher.revoked) != 3 {
		t.Fatalf("expected 3 revocations, got %d", len(f.dispatcher.revoked))
	}

	current, err := f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoFailed {
		t.Fatalf("expected failed video after cancel, got %q", current.Status)
	}

	tasks, err := f.store.TasksForVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("TasksForVideo: %v", err)
	}
	for _, task := range tasks {
		if task.Status != store.TaskCancelled {
			t.Fatalf("expected cancelled task, got %q for %s", task.Status, task.Type)
		}
	}

	// Jobs that still fire after cancellation lose the conditional start and
	// leave no trace.
	f.dispatcher.drain(t)
	current, err = f.store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("VideoByID: %v", err)
	}
	if current.Status != store.VideoFailed {
		t.Fatalf("cancelled video changed status to %q after drain", current.Status)
	}
}

func TestCancelTerminalVideoRejected(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	f.dispatcher.drain(t)

	if err := f.orchestrator.Cancel(context.Background(), video.ID, video.OwnerID); !services.IsValidation(err) {
		t.Fatalf("expected validation error cancelling ready video, got %v", err)
	}
}

func TestStatusReportsProgress(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	if err := f.orchestrator.StartProcessing(context.Background(), video); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	report, err := f.orchestrator.Status(context.Background(), video.ID, video.OwnerID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Progress != 0 {
		t.Fatalf("expected 0 progress before work, got %f", report.Progress)
	}

	f.dispatcher.drain(t)

	report, err = f.orchestrator.Status(context.Background(), video.ID, video.OwnerID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Progress != 100 {
		t.Fatalf("expected 100 progress, got %f", report.Progress)
	}
	if report.Video.Status != store.VideoReady {
		t.Fatalf("expected ready video in report, got %q", report.Video.Status)
	}
}

func TestStatusUnknownOwnerIsNotFound(t *testing.T) {
	f := newFixture(t, false)
	video := f.seedVideo(t)

	_, err := f.orchestrator.Status(context.Background(), video.ID, "someone-else")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
