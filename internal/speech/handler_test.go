package speech_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/services"
	"reelsmith/internal/services/tts"
	"reelsmith/internal/speech"
	"reelsmith/internal/sse"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
	"reelsmith/internal/testsupport"
)

type fakeTTS struct {
	mu    sync.Mutex
	calls []tts.Request
	fail  func(req tts.Request) error
}

func (f *fakeTTS) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return tts.Result{}, err
		}
	}
	return tts.Result{Audio: []byte("audio-" + req.Text), ContentType: "audio/mpeg"}, nil
}

type fakeAudio struct{}

func (fakeAudio) Duration(ctx context.Context, path string) (float64, error) { return 6.5, nil }

func (fakeAudio) Normalize(ctx context.Context, path string, targetDB float64) (string, error) {
	return path, nil
}

func newFixture(t *testing.T) (*speech.Handler, *store.Store, *store.Project, *fakeTTS) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, db, "Roman Aqueducts")
	testsupport.SeedSegments(t, db, project.ID, 3)

	artifacts, err := storage.NewLocal(cfg.Paths.MediaDir, cfg.Paths.MediaBaseURL)
	require.NoError(t, err)

	client := &fakeTTS{}
	handler := speech.New(cfg, db, client, artifacts, fakeAudio{})
	return handler, db, project, client
}

func TestExecuteSynthesizesAllSegments(t *testing.T) {
	handler, db, project, client := newFixture(t)
	var rec sse.Recorder
	handler.SetEvents(&rec)

	require.NoError(t, handler.Execute(context.Background(), project))

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	for _, segment := range segments {
		require.Equal(t, store.ItemCompleted, segment.TTSStatus)
		require.NotEmpty(t, segment.AudioURL)
		require.InDelta(t, 6.5, segment.AudioDuration, 0.001)
	}
	require.Len(t, client.calls, 3)
	require.Equal(t, "test-voice", client.calls[0].Voice, "project speaker is passed through")
}

func TestExecuteConcurrentBatchCompletesEverySegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.TTS.Concurrency = 3
	db := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, db, "Roman Aqueducts")
	testsupport.SeedSegments(t, db, project.ID, 8)

	artifacts, err := storage.NewLocal(cfg.Paths.MediaDir, cfg.Paths.MediaBaseURL)
	require.NoError(t, err)
	handler := speech.New(cfg, db, &fakeTTS{}, artifacts, fakeAudio{})

	require.NoError(t, handler.Execute(context.Background(), project))

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, segments, 8)
	for _, segment := range segments {
		require.Equal(t, store.ItemCompleted, segment.TTSStatus,
			"segment %d must not fail when synthesis succeeded", segment.Ord)
	}
}

func TestExecuteSkipsCompletedSegments(t *testing.T) {
	handler, db, project, client := newFixture(t)

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	segments[0].TTSStatus = store.ItemCompleted
	segments[0].AudioURL = "http://media/audio/existing.mp3"
	segments[0].AudioDuration = 3.0
	require.NoError(t, db.UpdateSegment(context.Background(), segments[0]))

	require.NoError(t, handler.Execute(context.Background(), project))
	require.Len(t, client.calls, 2, "completed segments are not re-synthesized")
}

func TestExecuteMarksFailuresAndContinues(t *testing.T) {
	handler, db, project, client := newFixture(t)

	seeded, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	seeded[1].Text = "unpronounceable"
	require.NoError(t, db.UpdateSegment(context.Background(), seeded[1]))

	client.fail = func(req tts.Request) error {
		if strings.Contains(req.Text, "unpronounceable") {
			return services.Wrap(services.ErrValidation, "tts", "synthesize", "rejected", nil)
		}
		return nil
	}

	require.NoError(t, handler.Execute(context.Background(), project))

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	failed := 0
	completed := 0
	for _, segment := range segments {
		switch segment.TTSStatus {
		case store.ItemFailed:
			failed++
		case store.ItemCompleted:
			completed++
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 2, completed)
}

func TestExecuteFailsWhenEverySegmentFails(t *testing.T) {
	handler, _, project, client := newFixture(t)
	client.fail = func(tts.Request) error {
		return services.Wrap(services.ErrValidation, "tts", "synthesize", "rejected", nil)
	}

	err := handler.Execute(context.Background(), project)
	require.ErrorIs(t, err, services.ErrUpstream)
}

func TestRegenerateSegment(t *testing.T) {
	handler, db, project, _ := newFixture(t)

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)

	segment, err := handler.RegenerateSegment(context.Background(), project, segments[1].ID, "")
	require.NoError(t, err)
	require.Equal(t, store.ItemCompleted, segment.TTSStatus)
	require.NotEmpty(t, segment.AudioURL)
}

func TestRegenerateSegmentOverrideText(t *testing.T) {
	handler, db, project, _ := newFixture(t)

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)

	segment, err := handler.RegenerateSegment(context.Background(), project, segments[0].ID, "A rewritten narration line.")
	require.NoError(t, err)
	require.Equal(t, "A rewritten narration line.", segment.Text)

	stored, err := db.GetSegment(context.Background(), segment.ID)
	require.NoError(t, err)
	require.Equal(t, "A rewritten narration line.", stored.Text)
}

func TestRegenerateSegmentWrongProject(t *testing.T) {
	handler, db, project, _ := newFixture(t)
	other := testsupport.NewProject(t, db, "Other Topic")

	segments, err := db.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)

	_, err = handler.RegenerateSegment(context.Background(), other, segments[0].ID, "")
	require.ErrorIs(t, err, services.ErrNotFound)
}
