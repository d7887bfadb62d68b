package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/store"
	"reelsmith/internal/testsupport"
)

func TestCreateAndGetProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	project, err := st.CreateProject(context.Background(), store.NewProjectParams{
		Topic:       "太阳系",
		Speaker:     "zh-CN-XiaoxiaoNeural",
		ImageModel:  "flux-schnell",
		AspectRatio: "16:9",
	})
	require.NoError(t, err)
	require.Equal(t, store.StatusDraft, project.Status)
	require.Equal(t, 1.0, project.Speed)
	require.False(t, project.CreatedAt.IsZero())

	loaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, "太阳系", loaded.Topic)
}

func TestGetProjectMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	project, err := st.GetProject(context.Background(), 999)
	require.NoError(t, err)
	require.Nil(t, project)
}

func TestProjectJSONHelpers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "quantum computing")

	dims := []store.Dimension{
		{ID: "d1", Title: "History", Query: "history of quantum computing"},
		{ID: "d2", Title: "Hardware", Query: "quantum hardware approaches"},
	}
	require.NoError(t, project.SetDimensions(dims))
	require.NoError(t, project.SetFindings([]store.Finding{{DimensionID: "d1", Title: "History", Content: "notes"}}))
	require.NoError(t, st.UpdateProject(context.Background(), project))

	loaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, dims, loaded.Dimensions())
	require.Len(t, loaded.Findings(), 1)
}

func TestTransitionStatusGuardsExpectedState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")

	require.NoError(t, st.TransitionStatus(context.Background(), project.ID, store.StatusDraft, store.StatusScripting))

	// A second invocation expecting draft loses the race.
	err := st.TransitionStatus(context.Background(), project.ID, store.StatusDraft, store.StatusResearching)
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, st.TransitionStatus(context.Background(), project.ID, store.StatusScripting, store.StatusDraft))
}

func TestMarkFailedSkipsCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")

	require.NoError(t, st.MarkFailed(context.Background(), project.ID, "tts exploded"))
	loaded, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, loaded.Status)
	require.Equal(t, "tts exploded", loaded.ErrorMessage)

	loaded.Status = store.StatusCompleted
	require.NoError(t, st.UpdateProject(context.Background(), loaded))
	require.NoError(t, st.MarkFailed(context.Background(), project.ID, "too late"))
	final, err := st.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, final.Status)
}

func TestReplaceSegmentsAssignsDenseOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")

	first := testsupport.SeedSegments(t, st, project.ID, 3)
	require.Len(t, first, 3)
	for i, segment := range first {
		require.Equal(t, i, segment.Ord)
		require.Equal(t, store.ItemPending, segment.TTSStatus)
		require.Equal(t, store.ItemPending, segment.ImageStatus)
	}

	// Re-running script generation fully replaces the set: new count, not old+new.
	second := testsupport.SeedSegments(t, st, project.ID, 2)
	require.Len(t, second, 2)
	for i, segment := range second {
		require.Equal(t, i, segment.Ord)
	}
}

func TestUpdateSegmentLeavesSiblingsUntouched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")
	segments := testsupport.SeedSegments(t, st, project.ID, 2)

	target := segments[0]
	target.AudioURL = "http://media/audio0.mp3"
	target.AudioDuration = 3.2
	target.TTSStatus = store.ItemCompleted
	require.NoError(t, st.UpdateSegment(context.Background(), target))

	reloaded, err := st.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.ItemCompleted, reloaded[0].TTSStatus)
	require.Equal(t, 3.2, reloaded[0].AudioDuration)
	require.Equal(t, store.ItemPending, reloaded[1].TTSStatus)
	require.Empty(t, reloaded[1].AudioURL)
}

func TestSegmentImagesRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")
	segments := testsupport.SeedSegments(t, st, project.ID, 1)

	segment := segments[0]
	require.NoError(t, segment.SetImages([]store.ImageAsset{
		{ImageURL: "http://media/a.png", DurationRatio: 0.6},
		{ImageURL: "http://media/b.png", DurationRatio: 0.4},
	}))
	segment.ImageStatus = store.ItemCompleted
	require.NoError(t, st.UpdateSegment(context.Background(), segment))

	loaded, err := st.GetSegment(context.Background(), segment.ID)
	require.NoError(t, err)
	images := loaded.Images()
	require.Len(t, images, 2)
	require.Equal(t, 0.6, images[0].DurationRatio)
	require.True(t, loaded.HasVisual())
}

func TestReadyForCompose(t *testing.T) {
	segment := &store.Segment{Text: "hi"}
	require.False(t, segment.ReadyForCompose())
	segment.AudioURL = "http://media/a.mp3"
	segment.AudioDuration = 2.5
	require.False(t, segment.ReadyForCompose())
	segment.ImageURL = "http://media/a.png"
	require.True(t, segment.ReadyForCompose())
}

func TestRemoveProjectCascadesSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")
	testsupport.SeedSegments(t, st, project.ID, 2)

	removed, err := st.RemoveProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.True(t, removed)

	segments, err := st.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Empty(t, segments)
}

func TestConcurrentSegmentUpdates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, st, "topic")
	segments := testsupport.SeedSegments(t, st, project.ID, 8)

	// Batch stages write one row per worker goroutine; none of those
	// writes may surface lock contention as an error.
	var wg sync.WaitGroup
	errs := make(chan error, len(segments)*10)
	for _, segment := range segments {
		wg.Add(1)
		go func(segment *store.Segment) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				segment.TTSStatus = store.ItemGenerating
				if err := st.UpdateSegment(context.Background(), segment); err != nil {
					errs <- err
					return
				}
				segment.TTSStatus = store.ItemCompleted
				segment.AudioURL = "http://media/audio/a.mp3"
				segment.AudioDuration = 1.5
				if err := st.UpdateSegment(context.Background(), segment); err != nil {
					errs <- err
					return
				}
			}
		}(segment)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	loaded, err := st.SegmentsByProject(context.Background(), project.ID)
	require.NoError(t, err)
	for _, segment := range loaded {
		require.Equal(t, store.ItemCompleted, segment.TTSStatus)
	}
}
