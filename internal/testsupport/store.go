package testsupport

import (
	"context"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewProject creates a draft project for tests using the provided store.
func NewProject(t testing.TB, st *store.Store, topic string) *store.Project {
	t.Helper()

	project, err := st.CreateProject(context.Background(), store.NewProjectParams{
		Topic:       topic,
		Speaker:     "test-voice",
		Speed:       1.0,
		ImageModel:  "test-model",
		AspectRatio: "16:9",
	})
	if err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	return project
}

// SeedSegments replaces a project's segments with n simple ordered segments.
func SeedSegments(t testing.TB, st *store.Store, projectID int64, n int) []*store.Segment {
	t.Helper()

	segments := make([]*store.Segment, n)
	for i := range segments {
		segments[i] = &store.Segment{
			Text:         "segment text",
			ChapterTitle: "chapter",
			VisualStyle:  store.StyleIllustration,
		}
	}
	if err := st.ReplaceSegments(context.Background(), projectID, segments); err != nil {
		t.Fatalf("store.ReplaceSegments: %v", err)
	}
	out, err := st.SegmentsByProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("store.SegmentsByProject: %v", err)
	}
	return out
}
