package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewProjectParams carries caller-supplied fields for project creation.
type NewProjectParams struct {
	Topic       string
	Speaker     string
	Speed       float64
	ImageModel  string
	AspectRatio string
	FullScript  string
}

// CreateProject inserts a new project in draft status.
func (s *Store) CreateProject(ctx context.Context, params NewProjectParams) (*Project, error) {
	now := formatTime(time.Now())
	speed := params.Speed
	if speed <= 0 {
		speed = 1.0
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (
            topic, status, full_script, speaker, speed, image_model, aspect_ratio,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.Topic,
		StatusDraft,
		nullableString(params.FullScript),
		nullableString(params.Speaker),
		speed,
		nullableString(params.ImageModel),
		nullableString(params.AspectRatio),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject fetches a project by identifier. Returns nil when absent.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns projects ordered by creation time, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// ListProjectsByStatus returns projects in the given status, newest first.
func (s *Store) ListProjectsByStatus(ctx context.Context, status Status) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE status = ? ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list projects by status: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject persists changes to an existing project.
func (s *Store) UpdateProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	project.UpdatedAt = time.Now().UTC()
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE projects
         SET topic = ?, status = ?, dimensions_json = ?, research_results = ?,
             findings_json = ?, full_script = ?, speaker = ?, speed = ?,
             image_model = ?, aspect_ratio = ?, video_url = ?, cover_url = ?,
             duration = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		project.Topic,
		project.Status,
		nullableString(project.DimensionsJSON),
		nullableString(project.ResearchResults),
		nullableString(project.FindingsJSON),
		nullableString(project.FullScript),
		nullableString(project.Speaker),
		project.Speed,
		nullableString(project.ImageModel),
		nullableString(project.AspectRatio),
		nullableString(project.VideoURL),
		nullableString(project.CoverURL),
		project.Duration,
		nullableString(project.ErrorMessage),
		formatTime(project.UpdatedAt),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// TransitionStatus moves a project from an expected status to a new one in a
// single guarded write. Returns ErrConflict when the project is not in the
// expected status, which is how a duplicate concurrent invocation surfaces.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		formatTime(time.Now()),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetProject(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return fmt.Errorf("project %d not found", id)
		}
		return fmt.Errorf("%w: project %d is %s, expected %s", ErrConflict, id, current.Status, from)
	}
	return nil
}

// MarkFailed records a terminal failure regardless of the current status,
// unless the project already completed.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE projects SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status != ?`,
		StatusFailed,
		nullableString(message),
		formatTime(time.Now()),
		id,
		StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RemoveProject deletes a project and, via cascade, its segments.
func (s *Store) RemoveProject(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const projectColumns = "id, topic, status, dimensions_json, research_results, findings_json, full_script, speaker, speed, image_model, aspect_ratio, video_url, cover_url, duration, error_message, created_at, updated_at"

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		id          int64
		topic       string
		statusStr   string
		dimensions  sql.NullString
		research    sql.NullString
		findings    sql.NullString
		fullScript  sql.NullString
		speaker     sql.NullString
		speed       sql.NullFloat64
		imageModel  sql.NullString
		aspectRatio sql.NullString
		videoURL    sql.NullString
		coverURL    sql.NullString
		duration    sql.NullFloat64
		errMessage  sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&topic,
		&statusStr,
		&dimensions,
		&research,
		&findings,
		&fullScript,
		&speaker,
		&speed,
		&imageModel,
		&aspectRatio,
		&videoURL,
		&coverURL,
		&duration,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	project := &Project{
		ID:              id,
		Topic:           topic,
		Status:          Status(statusStr),
		DimensionsJSON:  dimensions.String,
		ResearchResults: research.String,
		FindingsJSON:    findings.String,
		FullScript:      fullScript.String,
		Speaker:         speaker.String,
		Speed:           speed.Float64,
		ImageModel:      imageModel.String,
		AspectRatio:     aspectRatio.String,
		VideoURL:        videoURL.String,
		CoverURL:        coverURL.String,
		Duration:        duration.Float64,
		ErrorMessage:    errMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}
