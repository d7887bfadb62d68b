package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/logging"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/services"
	"reelsmith/internal/sse"
	"reelsmith/internal/stage"
	"reelsmith/internal/store"
	"reelsmith/internal/testsupport"
)

type fakeHandler struct {
	prepareErr error
	executeErr error
	executed   bool
	execute    func(ctx context.Context, project *store.Project) error
}

func (f *fakeHandler) Prepare(ctx context.Context, project *store.Project) error {
	return f.prepareErr
}

func (f *fakeHandler) Execute(ctx context.Context, project *store.Project) error {
	f.executed = true
	if f.execute != nil {
		return f.execute(ctx, project)
	}
	return f.executeErr
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("fake")
}

func TestRunTransitionsThroughProcessing(t *testing.T) {
	db := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	project := testsupport.NewProject(t, db, "Roman Aqueducts")

	var rec sse.Recorder
	handler := &fakeHandler{
		execute: func(ctx context.Context, p *store.Project) error {
			current, err := db.GetProject(ctx, p.ID)
			require.NoError(t, err)
			require.Equal(t, store.StatusResearching, current.Status)
			p.ResearchResults = "findings"
			return nil
		},
	}

	err := pipeline.Run(context.Background(), pipeline.Options{
		Logger:     logging.NewNop(),
		Store:      db,
		Events:     &rec,
		Handler:    handler,
		StageName:  "researching",
		Expected:   store.StatusDraft,
		Processing: store.StatusResearching,
		Done:       store.StatusDraft,
		Project:    project,
	})
	require.NoError(t, err)
	require.True(t, handler.executed)

	persisted, err := db.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusDraft, persisted.Status)
	require.Equal(t, "findings", persisted.ResearchResults)

	progress := rec.OfType(sse.EventProgress)
	require.Len(t, progress, 2)
	require.Equal(t, 0, progress[0].Percent)
	require.Equal(t, 100, progress[1].Percent)
}

func TestRunFailureMarksProjectFailed(t *testing.T) {
	db := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	project := testsupport.NewProject(t, db, "Roman Aqueducts")

	var rec sse.Recorder
	handler := &fakeHandler{
		executeErr: services.Wrap(services.ErrUpstream, "researching", "generate", "all dimensions failed", nil),
	}

	err := pipeline.Run(context.Background(), pipeline.Options{
		Logger:     logging.NewNop(),
		Store:      db,
		Events:     &rec,
		Handler:    handler,
		StageName:  "researching",
		Expected:   store.StatusDraft,
		Processing: store.StatusResearching,
		Done:       store.StatusDraft,
		Project:    project,
	})
	require.Error(t, err)

	persisted, dbErr := db.GetProject(context.Background(), project.ID)
	require.NoError(t, dbErr)
	require.Equal(t, store.StatusFailed, persisted.Status)
	require.Contains(t, persisted.ErrorMessage, "all dimensions failed")

	errorEvents := rec.OfType(sse.EventError)
	require.Len(t, errorEvents, 1)
}

func TestRunConflictSkipsHandler(t *testing.T) {
	db := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	project := testsupport.NewProject(t, db, "Roman Aqueducts")
	require.NoError(t, db.TransitionStatus(context.Background(), project.ID, store.StatusDraft, store.StatusResearching))

	handler := &fakeHandler{}
	err := pipeline.Run(context.Background(), pipeline.Options{
		Logger:     logging.NewNop(),
		Store:      db,
		Handler:    handler,
		StageName:  "researching",
		Expected:   store.StatusDraft,
		Processing: store.StatusResearching,
		Done:       store.StatusDraft,
		Project:    project,
	})
	require.ErrorIs(t, err, store.ErrConflict)
	require.False(t, handler.executed, "losing invocation must not run the handler")
}

func TestRunPrepareFailureDoesNotExecute(t *testing.T) {
	db := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	project := testsupport.NewProject(t, db, "Roman Aqueducts")

	handler := &fakeHandler{prepareErr: errors.New("missing api key")}
	err := pipeline.Run(context.Background(), pipeline.Options{
		Logger:     logging.NewNop(),
		Store:      db,
		Handler:    handler,
		StageName:  "scripting",
		Expected:   store.StatusDraft,
		Processing: store.StatusScripting,
		Done:       store.StatusDraft,
		Project:    project,
	})
	require.Error(t, err)
	require.False(t, handler.executed)

	persisted, dbErr := db.GetProject(context.Background(), project.ID)
	require.NoError(t, dbErr)
	require.Equal(t, store.StatusFailed, persisted.Status)
}
