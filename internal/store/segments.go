package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReplaceSegments deletes a project's segment set and inserts the new one in
// a single transaction, so readers never observe a mixed old/new set. Orders
// are reassigned densely from zero in slice order.
func (s *Store) ReplaceSegments(ctx context.Context, projectID int64, segments []*Segment) error {
	// The whole transaction reruns on lock contention, so a busy writer
	// elsewhere never surfaces as a failed replacement.
	return retryOnBusy(ctx, func() error {
		return s.replaceSegmentsOnce(ctx, projectID, segments)
	})
}

func (s *Store) replaceSegmentsOnce(ctx context.Context, projectID int64, segments []*Segment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("delete prior segments: %w", err)
	}

	now := formatTime(time.Now())
	for i, segment := range segments {
		segment.ProjectID = projectID
		segment.Ord = i
		if segment.TTSStatus == "" {
			segment.TTSStatus = ItemPending
		}
		if segment.ImageStatus == "" {
			segment.ImageStatus = ItemPending
		}
		if segment.VisualStyle == "" {
			segment.VisualStyle = StyleIllustration
		}
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO segments (
                project_id, ord, text, chapter_title, key_points_json, visual_style,
                estimated_duration, audio_url, audio_duration, tts_status,
                image_url, images_json, image_prompt, image_status, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			segment.ProjectID,
			segment.Ord,
			segment.Text,
			nullableString(segment.ChapterTitle),
			nullableString(segment.KeyPointsJSON),
			segment.VisualStyle,
			segment.EstimatedDuration,
			nullableString(segment.AudioURL),
			segment.AudioDuration,
			segment.TTSStatus,
			nullableString(segment.ImageURL),
			nullableString(segment.ImagesJSON),
			nullableString(segment.ImagePrompt),
			segment.ImageStatus,
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
		if segment.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("segment insert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segment replacement: %w", err)
	}
	return nil
}

// SegmentsByProject returns a project's segments in narration order.
func (s *Store) SegmentsByProject(ctx context.Context, projectID int64) ([]*Segment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE project_id = ? ORDER BY ord`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

// GetSegment fetches a segment by identifier. Returns nil when absent.
func (s *Store) GetSegment(ctx context.Context, id int64) (*Segment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	segment, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return segment, nil
}

// UpdateSegment persists changes to an existing segment. Only this segment's
// row is written; siblings are untouched.
func (s *Store) UpdateSegment(ctx context.Context, segment *Segment) error {
	if segment == nil {
		return errors.New("segment is nil")
	}
	segment.UpdatedAt = time.Now().UTC()
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE segments
         SET text = ?, chapter_title = ?, key_points_json = ?, visual_style = ?,
             estimated_duration = ?, audio_url = ?, audio_duration = ?, tts_status = ?,
             image_url = ?, images_json = ?, image_prompt = ?, image_status = ?, updated_at = ?
         WHERE id = ?`,
		segment.Text,
		nullableString(segment.ChapterTitle),
		nullableString(segment.KeyPointsJSON),
		segment.VisualStyle,
		segment.EstimatedDuration,
		nullableString(segment.AudioURL),
		segment.AudioDuration,
		segment.TTSStatus,
		nullableString(segment.ImageURL),
		nullableString(segment.ImagesJSON),
		nullableString(segment.ImagePrompt),
		segment.ImageStatus,
		formatTime(segment.UpdatedAt),
		segment.ID,
	)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	return nil
}

const segmentColumns = "id, project_id, ord, text, chapter_title, key_points_json, visual_style, estimated_duration, audio_url, audio_duration, tts_status, image_url, images_json, image_prompt, image_status, created_at, updated_at"

func scanSegment(scanner interface{ Scan(dest ...any) error }) (*Segment, error) {
	var (
		id            int64
		projectID     int64
		ord           int
		text          string
		chapterTitle  sql.NullString
		keyPoints     sql.NullString
		visualStyle   string
		estimated     sql.NullFloat64
		audioURL      sql.NullString
		audioDuration sql.NullFloat64
		ttsStatus     string
		imageURL      sql.NullString
		imagesJSON    sql.NullString
		imagePrompt   sql.NullString
		imageStatus   string
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&ord,
		&text,
		&chapterTitle,
		&keyPoints,
		&visualStyle,
		&estimated,
		&audioURL,
		&audioDuration,
		&ttsStatus,
		&imageURL,
		&imagesJSON,
		&imagePrompt,
		&imageStatus,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	segment := &Segment{
		ID:                id,
		ProjectID:         projectID,
		Ord:               ord,
		Text:              text,
		ChapterTitle:      chapterTitle.String,
		KeyPointsJSON:     keyPoints.String,
		VisualStyle:       VisualStyle(visualStyle),
		EstimatedDuration: estimated.Float64,
		AudioURL:          audioURL.String,
		AudioDuration:     audioDuration.Float64,
		TTSStatus:         ItemStatus(ttsStatus),
		ImageURL:          imageURL.String,
		ImagesJSON:        imagesJSON.String,
		ImagePrompt:       imagePrompt.String,
		ImageStatus:       ItemStatus(imageStatus),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		segment.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		segment.UpdatedAt = updated
	}
	return segment, nil
}
