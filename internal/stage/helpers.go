package stage

import (
	"context"
	"fmt"

	"reelsmith/internal/services"
	"reelsmith/internal/store"
)

// SegmentLister is the slice of the store the helpers need.
type SegmentLister interface {
	SegmentsByProject(ctx context.Context, projectID int64) ([]*store.Segment, error)
}

// LoadSegments fetches a project's segments and fails with a validation
// error when the script stage has not produced any yet.
func LoadSegments(ctx context.Context, lister SegmentLister, project *store.Project) ([]*store.Segment, error) {
	segments, err := lister.SegmentsByProject(ctx, project.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "stage", "load segments", "read segments", err)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "load segments",
			fmt.Sprintf("project %d has no segments; run scripting first", project.ID), nil)
	}
	return segments, nil
}
