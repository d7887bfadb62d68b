package api

import (
	"time"

	"reelsmith/internal/store"
)

// CreateProjectRequest is the payload for POST /api/projects. Either Topic
// or DocumentContent must be present; DocumentContent supplies a finished
// script and lets the project skip research and script writing.
type CreateProjectRequest struct {
	Topic           string  `json:"topic"`
	Speaker         string  `json:"speaker"`
	Speed           float64 `json:"speed"`
	ImageModel      string  `json:"imageModel"`
	AspectRatio     string  `json:"aspectRatio"`
	DocumentContent string  `json:"documentContent"`
}

// CreateProjectResponse carries the identifier of a freshly created project.
type CreateProjectResponse struct {
	ProjectID int64 `json:"projectId"`
}

// DimensionsRequest is the payload for POST /api/dimensions.
type DimensionsRequest struct {
	ProjectID     int64  `json:"projectId"`
	Topic         string `json:"topic"`
	MaxDimensions int    `json:"maxDimensions"`
}

// ResearchRequest is the payload for POST /api/research.
type ResearchRequest struct {
	ProjectID       int64  `json:"projectId"`
	ReasoningEffort string `json:"reasoningEffort"`
}

// ProjectStageRequest addresses a stage run that needs only the project.
type ProjectStageRequest struct {
	ProjectID int64 `json:"projectId"`
}

// ImagesRequest is the payload for POST /api/images. Style, when set,
// replaces the visual style of every segment that still needs an image.
type ImagesRequest struct {
	ProjectID int64  `json:"projectId"`
	Style     string `json:"style"`
}

// RegenerateRequest is the payload for POST /api/segments/regenerate. Kind
// selects the side to redo ("tts" or "image"); when omitted it is inferred
// from which override is present, defaulting to tts.
type RegenerateRequest struct {
	SegmentID      int64  `json:"segmentId"`
	Kind           string `json:"kind"`
	OverrideText   string `json:"overrideText"`
	OverridePrompt string `json:"overridePrompt"`
}

// ProjectView is the JSON shape of a project record.
type ProjectView struct {
	ID              int64             `json:"id"`
	Topic           string            `json:"topic"`
	Status          store.Status      `json:"status"`
	Dimensions      []store.Dimension `json:"dimensions,omitempty"`
	Findings        []store.Finding   `json:"findings,omitempty"`
	ResearchResults string            `json:"researchResults,omitempty"`
	FullScript      string            `json:"fullScript,omitempty"`
	Speaker         string            `json:"speaker,omitempty"`
	Speed           float64           `json:"speed,omitempty"`
	ImageModel      string            `json:"imageModel,omitempty"`
	AspectRatio     string            `json:"aspectRatio,omitempty"`
	VideoURL        string            `json:"videoUrl,omitempty"`
	CoverURL        string            `json:"coverUrl,omitempty"`
	Duration        float64           `json:"duration,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// SegmentView is the JSON shape of a segment record.
type SegmentView struct {
	ID                int64              `json:"id"`
	ProjectID         int64              `json:"projectId"`
	Order             int                `json:"order"`
	Text              string             `json:"text"`
	ChapterTitle      string             `json:"chapterTitle,omitempty"`
	KeyPoints         []string           `json:"keyPoints,omitempty"`
	VisualStyle       store.VisualStyle  `json:"visualStyle,omitempty"`
	EstimatedDuration float64            `json:"estimatedDuration,omitempty"`
	AudioURL          string             `json:"audioUrl,omitempty"`
	AudioDuration     float64            `json:"audioDuration,omitempty"`
	TTSStatus         store.ItemStatus   `json:"ttsStatus"`
	ImageURL          string             `json:"imageUrl,omitempty"`
	Images            []store.ImageAsset `json:"images,omitempty"`
	ImagePrompt       string             `json:"imagePrompt,omitempty"`
	ImageStatus       store.ItemStatus   `json:"imageStatus"`
}

// ProjectListResponse wraps the project listing.
type ProjectListResponse struct {
	Projects []ProjectView `json:"projects"`
}

// ProjectDetailResponse pairs a project with its ordered segments.
type ProjectDetailResponse struct {
	Project  ProjectView   `json:"project"`
	Segments []SegmentView `json:"segments"`
}

// StageHealth reports one stage's readiness in the status payload.
type StageHealth struct {
	Stage   string `json:"stage"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// DependencyStatus reports one external binary in the status payload.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// StatusResponse is the payload of GET /api/status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	Database     string             `json:"database"`
	Projects     map[string]int     `json:"projects"`
	Stages       []StageHealth      `json:"stages"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// FromProject converts a store record into its view.
func FromProject(project *store.Project) ProjectView {
	return ProjectView{
		ID:              project.ID,
		Topic:           project.Topic,
		Status:          project.Status,
		Dimensions:      project.Dimensions(),
		Findings:        project.Findings(),
		ResearchResults: project.ResearchResults,
		FullScript:      project.FullScript,
		Speaker:         project.Speaker,
		Speed:           project.Speed,
		ImageModel:      project.ImageModel,
		AspectRatio:     project.AspectRatio,
		VideoURL:        project.VideoURL,
		CoverURL:        project.CoverURL,
		Duration:        project.Duration,
		ErrorMessage:    project.ErrorMessage,
		CreatedAt:       project.CreatedAt,
		UpdatedAt:       project.UpdatedAt,
	}
}

// FromSegment converts a store record into its view.
func FromSegment(segment *store.Segment) SegmentView {
	return SegmentView{
		ID:                segment.ID,
		ProjectID:         segment.ProjectID,
		Order:             segment.Ord,
		Text:              segment.Text,
		ChapterTitle:      segment.ChapterTitle,
		KeyPoints:         segment.KeyPoints(),
		VisualStyle:       segment.VisualStyle,
		EstimatedDuration: segment.EstimatedDuration,
		AudioURL:          segment.AudioURL,
		AudioDuration:     segment.AudioDuration,
		TTSStatus:         segment.TTSStatus,
		ImageURL:          segment.ImageURL,
		Images:            segment.Images(),
		ImagePrompt:       segment.ImagePrompt,
		ImageStatus:       segment.ImageStatus,
	}
}

// FromSegments converts an ordered segment slice into views.
func FromSegments(segments []*store.Segment) []SegmentView {
	views := make([]SegmentView, len(segments))
	for i, segment := range segments {
		views[i] = FromSegment(segment)
	}
	return views
}
