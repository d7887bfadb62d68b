package compose_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/compose"
	"reelsmith/internal/media/ffmpeg"
	"reelsmith/internal/services"
	"reelsmith/internal/sse"
	"reelsmith/internal/storage"
	"reelsmith/internal/store"
	"reelsmith/internal/testsupport"
)

type renderCall struct {
	op            string
	output        string
	duration      float64
	hasAudio      bool
	width, height int
}

type fakeRenderer struct {
	calls []renderCall
}

func (f *fakeRenderer) RenderSlide(ctx context.Context, spec ffmpeg.SlideSpec) error {
	f.calls = append(f.calls, renderCall{
		op:       "slide",
		output:   spec.Output,
		duration: spec.Duration,
		hasAudio: spec.AudioPath != "",
		width:    spec.Width,
		height:   spec.Height,
	})
	return os.WriteFile(spec.Output, []byte("clip"), 0o644)
}

func (f *fakeRenderer) Concat(ctx context.Context, clipPaths []string, output string) error {
	f.calls = append(f.calls, renderCall{op: "concat", output: output})
	return os.WriteFile(output, []byte("joined"), 0o644)
}

func (f *fakeRenderer) ConcatWithTransition(ctx context.Context, first, second string, firstDuration float64, transition string, output string) error {
	f.calls = append(f.calls, renderCall{op: "transition", output: output, duration: firstDuration})
	return os.WriteFile(output, []byte("joined"), 0o644)
}

func (f *fakeRenderer) MuxAudio(ctx context.Context, videoPath, audioPath, output string) error {
	f.calls = append(f.calls, renderCall{op: "mux", output: output, hasAudio: true})
	return os.WriteFile(output, []byte("muxed"), 0o644)
}

func (f *fakeRenderer) ExtractCover(ctx context.Context, videoPath, output string) error {
	f.calls = append(f.calls, renderCall{op: "cover", output: output})
	return os.WriteFile(output, []byte("jpeg"), 0o644)
}

func (f *fakeRenderer) ops() []string {
	out := make([]string, len(f.calls))
	for i, call := range f.calls {
		out[i] = call.op
	}
	return out
}

type fakeProber struct {
	width, height int
}

func (f fakeProber) Dimensions(ctx context.Context, path string) (int, int, error) {
	return f.width, f.height, nil
}

type fixture struct {
	handler   *compose.Handler
	db        *store.Store
	project   *store.Project
	renderer  *fakeRenderer
	artifacts storage.Store
}

func newFixture(t *testing.T, segments int, prober compose.Prober) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	project := testsupport.NewProject(t, db, "Roman Aqueducts")
	seeded := testsupport.SeedSegments(t, db, project.ID, segments)

	artifacts, err := storage.NewLocal(cfg.Paths.MediaDir, cfg.Paths.MediaBaseURL)
	require.NoError(t, err)

	for _, segment := range seeded {
		audioURL, err := artifacts.Save(context.Background(), "audio", ".mp3", []byte("audio"))
		require.NoError(t, err)
		imageURL, err := artifacts.Save(context.Background(), "images", ".png", []byte("image"))
		require.NoError(t, err)
		segment.AudioURL = audioURL
		segment.AudioDuration = 6.0
		segment.TTSStatus = store.ItemCompleted
		segment.ImageURL = imageURL
		segment.ImageStatus = store.ItemCompleted
		require.NoError(t, db.UpdateSegment(context.Background(), segment))
	}

	renderer := &fakeRenderer{}
	handler := compose.New(cfg, db, artifacts, renderer, prober)
	return fixture{handler: handler, db: db, project: project, renderer: renderer, artifacts: artifacts}
}

func TestExecuteComposesOrderedClips(t *testing.T) {
	f := newFixture(t, 3, fakeProber{width: 1600, height: 900})
	var rec sse.Recorder
	f.handler.SetEvents(&rec)

	require.NoError(t, f.handler.Prepare(context.Background(), f.project))
	require.NoError(t, f.handler.Execute(context.Background(), f.project))

	require.Equal(t, []string{"slide", "slide", "slide", "concat", "cover"}, f.renderer.ops())
	for _, call := range f.renderer.calls[:3] {
		require.True(t, call.hasAudio, "single-image clips carry narration directly")
		require.InDelta(t, 6.5, call.duration, 0.001, "clip length is audio plus buffer")
	}

	require.NotEmpty(t, f.project.VideoURL)
	require.NotEmpty(t, f.project.CoverURL)
	require.InDelta(t, 19.5, f.project.Duration, 0.001)

	last, ok := rec.Last()
	require.True(t, ok)
	require.Equal(t, sse.EventComplete, last.Type)
}

func TestExecuteMultiImageSegment(t *testing.T) {
	f := newFixture(t, 1, fakeProber{width: 1600, height: 900})

	segments, err := f.db.SegmentsByProject(context.Background(), f.project.ID)
	require.NoError(t, err)

	secondURL, err := f.artifacts.Save(context.Background(), "images", ".png", []byte("image2"))
	require.NoError(t, err)
	require.NoError(t, segments[0].SetImages([]store.ImageAsset{
		{ImageURL: segments[0].ImageURL, DurationRatio: 0.5},
		{ImageURL: secondURL, DurationRatio: 0.5},
	}))
	require.NoError(t, f.db.UpdateSegment(context.Background(), segments[0]))

	require.NoError(t, f.handler.Execute(context.Background(), f.project))

	ops := f.renderer.ops()
	require.Equal(t, []string{"slide", "slide", "concat", "mux", "concat", "cover"}, ops)
	require.False(t, f.renderer.calls[0].hasAudio, "sub-clips are silent")
	require.InDelta(t, 3.25, f.renderer.calls[0].duration, 0.001, "half of audio+buffer")
}

func TestExecuteTransitionPath(t *testing.T) {
	f := newFixture(t, 3, fakeProber{width: 1600, height: 900})

	cfg := testsupport.NewConfig(t, testsupport.WithTransition("fade"))
	handler := compose.New(cfg, f.db, f.artifacts, f.renderer, fakeProber{width: 1600, height: 900})
	require.NoError(t, handler.Execute(context.Background(), f.project))

	ops := f.renderer.ops()
	require.Equal(t, []string{"slide", "slide", "slide", "transition", "transition", "cover"}, ops)
	require.InDelta(t, 6.5, f.renderer.calls[3].duration, 0.001, "first offset is clip 0 length")
	require.InDelta(t, 12.5, f.renderer.calls[4].duration, 0.001, "second offset is the stitched length, minus the overlap")
	require.InDelta(t, 18.5, f.project.Duration, 0.001, "each transition overlaps clips by half a second")
}

func TestPrepareReportsIncompleteSegments(t *testing.T) {
	f := newFixture(t, 4, fakeProber{width: 1600, height: 900})

	segments, err := f.db.SegmentsByProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	segments[1].AudioURL = ""
	segments[1].AudioDuration = 0
	require.NoError(t, f.db.UpdateSegment(context.Background(), segments[1]))
	segments[3].ImageURL = ""
	segments[3].ImagesJSON = ""
	require.NoError(t, f.db.UpdateSegment(context.Background(), segments[3]))

	err = f.handler.Prepare(context.Background(), f.project)
	require.ErrorIs(t, err, services.ErrPrecondition)

	var precondition *services.PreconditionError
	require.ErrorAs(t, err, &precondition)
	require.Equal(t, []int{1, 3}, precondition.Missing)
}

func TestResolveFramePortrait(t *testing.T) {
	f := newFixture(t, 1, fakeProber{width: 900, height: 1600})
	require.NoError(t, f.handler.Execute(context.Background(), f.project))
	require.Equal(t, 1080, f.renderer.calls[0].width)
	require.Equal(t, 1920, f.renderer.calls[0].height)
}

func TestResolveFrameSquare(t *testing.T) {
	f := newFixture(t, 1, fakeProber{width: 1024, height: 1024})
	require.NoError(t, f.handler.Execute(context.Background(), f.project))
	require.Equal(t, 1080, f.renderer.calls[0].width)
	require.Equal(t, 1080, f.renderer.calls[0].height)
}
