package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a project.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusResearching      Status = "researching"
	StatusScripting        Status = "scripting"
	StatusGeneratingTTS    Status = "generating_tts"
	StatusGeneratingImages Status = "generating_images"
	StatusReadyForEdit     Status = "ready_for_edit"
	StatusComposing        Status = "composing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

var allStatuses = []Status{
	StatusDraft,
	StatusResearching,
	StatusScripting,
	StatusGeneratingTTS,
	StatusGeneratingImages,
	StatusReadyForEdit,
	StatusComposing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusResearching:      {},
	StatusScripting:        {},
	StatusGeneratingTTS:    {},
	StatusGeneratingImages: {},
	StatusComposing:        {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status Status) bool {
	return status == StatusCompleted
}

// ItemStatus tracks one segment's progress through a synthesis stage. The
// audio and image sides of a segment evolve independently.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemGenerating ItemStatus = "generating"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// VisualStyle hints how a segment should be illustrated.
type VisualStyle string

const (
	StyleInfographic  VisualStyle = "infographic"
	StylePhoto        VisualStyle = "photo"
	StyleIllustration VisualStyle = "illustration"
	StyleDiagram      VisualStyle = "diagram"
)

// ParseVisualStyle normalizes a style string, falling back to illustration.
func ParseVisualStyle(value string) VisualStyle {
	switch VisualStyle(strings.ToLower(strings.TrimSpace(value))) {
	case StyleInfographic:
		return StyleInfographic
	case StylePhoto:
		return StylePhoto
	case StyleDiagram:
		return StyleDiagram
	default:
		return StyleIllustration
	}
}

// Dimension is one independently researched angle of a topic.
type Dimension struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Query string `json:"query"`
}

// Finding is the research output for a single dimension.
type Finding struct {
	DimensionID string `json:"dimensionId"`
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ImageAsset is one sub-image of a segment together with its share of the
// segment's clip duration. Ratios across a segment sum to 1.0.
type ImageAsset struct {
	ImageURL      string  `json:"imageUrl"`
	DurationRatio float64 `json:"durationRatio"`
}

// Project is the root record owned by the pipeline; stage handlers are its
// only writers.
type Project struct {
	ID              int64
	Topic           string
	Status          Status
	DimensionsJSON  string
	ResearchResults string
	FindingsJSON    string
	FullScript      string
	Speaker         string
	Speed           float64
	ImageModel      string
	AspectRatio     string
	VideoURL        string
	CoverURL        string
	Duration        float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Dimensions decodes the persisted research dimensions, preserving order.
func (p *Project) Dimensions() []Dimension {
	if strings.TrimSpace(p.DimensionsJSON) == "" {
		return nil
	}
	var dims []Dimension
	if err := json.Unmarshal([]byte(p.DimensionsJSON), &dims); err != nil {
		return nil
	}
	return dims
}

// SetDimensions persists the ordered dimension list onto the record.
func (p *Project) SetDimensions(dims []Dimension) error {
	data, err := json.Marshal(dims)
	if err != nil {
		return err
	}
	p.DimensionsJSON = string(data)
	return nil
}

// Findings decodes the persisted per-dimension research findings.
func (p *Project) Findings() []Finding {
	if strings.TrimSpace(p.FindingsJSON) == "" {
		return nil
	}
	var findings []Finding
	if err := json.Unmarshal([]byte(p.FindingsJSON), &findings); err != nil {
		return nil
	}
	return findings
}

// SetFindings persists per-dimension research findings onto the record.
func (p *Project) SetFindings(findings []Finding) error {
	data, err := json.Marshal(findings)
	if err != nil {
		return err
	}
	p.FindingsJSON = string(data)
	return nil
}

// IsProcessing returns true when the project has an in-flight stage.
func (p *Project) IsProcessing() bool {
	return IsProcessingStatus(p.Status)
}

// SetFailed marks the project failed with the given message.
func (p *Project) SetFailed(message string) {
	p.Status = StatusFailed
	p.ErrorMessage = message
}

// Segment is one narration unit of the output video. One row per
// (ProjectID, Ord); stage-specific fields stay empty until their stage runs.
type Segment struct {
	ID                int64
	ProjectID         int64
	Ord               int
	Text              string
	ChapterTitle      string
	KeyPointsJSON     string
	VisualStyle       VisualStyle
	EstimatedDuration float64
	AudioURL          string
	AudioDuration     float64
	TTSStatus         ItemStatus
	ImageURL          string
	ImagesJSON        string
	ImagePrompt       string
	ImageStatus       ItemStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// KeyPoints decodes the ordered key point list.
func (s *Segment) KeyPoints() []string {
	if strings.TrimSpace(s.KeyPointsJSON) == "" {
		return nil
	}
	var points []string
	if err := json.Unmarshal([]byte(s.KeyPointsJSON), &points); err != nil {
		return nil
	}
	return points
}

// SetKeyPoints persists the ordered key point list.
func (s *Segment) SetKeyPoints(points []string) error {
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	s.KeyPointsJSON = string(data)
	return nil
}

// Images decodes the ordered sub-image list.
func (s *Segment) Images() []ImageAsset {
	if strings.TrimSpace(s.ImagesJSON) == "" {
		return nil
	}
	var images []ImageAsset
	if err := json.Unmarshal([]byte(s.ImagesJSON), &images); err != nil {
		return nil
	}
	return images
}

// SetImages persists the ordered sub-image list.
func (s *Segment) SetImages(images []ImageAsset) error {
	data, err := json.Marshal(images)
	if err != nil {
		return err
	}
	s.ImagesJSON = string(data)
	return nil
}

// HasVisual reports whether the segment carries at least one image.
func (s *Segment) HasVisual() bool {
	return strings.TrimSpace(s.ImageURL) != "" || len(s.Images()) > 0
}

// ReadyForCompose reports whether the segment can be rendered into a clip.
func (s *Segment) ReadyForCompose() bool {
	return strings.TrimSpace(s.AudioURL) != "" && s.AudioDuration > 0 && s.HasVisual()
}
