package types

import "time"

// Stage is a named phase of a production run's state machine
type Stage string

const (
	StageIdle             Stage = "idle"
	StageResearching      Stage = "researching"
	StageScripting        Stage = "scripting"
	StageGeneratingAssets Stage = "generating_assets"
	StageReview           Stage = "review"
	StageRendering        Stage = "rendering"
	StageUploading        Stage = "uploading"
	StageCompleted        Stage = "completed"
)

// Startable reports whether a new run may begin from this stage
func (s Stage) Startable() bool {
	return s == StageIdle || s == StageCompleted
}

// Topic is a candidate subject for one video, immutable once selected
type Topic struct {
	ID            string   `json:"id"`
	Headline      string   `json:"headline"`
	Category      string   `json:"category"`
	ViralityScore float64  `json:"virality_score"`
	Description   string   `json:"description"`
	Sources       []string `json:"sources"`
}

// Script is the full generated script for one video, immutable once generated
type Script struct {
	Title         string   `json:"title"`
	ThumbnailText string   `json:"thumbnail_text"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Hook          string   `json:"hook"`
	Outline       []string `json:"outline"`
	FullScript    string   `json:"full_script"`
}

// AssetBundle accumulates the produced media references for a run.
// Each production sub-stage fills exactly one field via an AssetPatch.
type AssetBundle struct {
	ThumbnailURL      string   `json:"thumbnail_url,omitempty"`
	ThumbnailVariants []string `json:"thumbnail_variants,omitempty"`
	AudioURL          string   `json:"audio_url,omitempty"`
	StoryboardURLs    []string `json:"storyboard_urls,omitempty"`
	VideoURL          string   `json:"video_url,omitempty"`
}

// AssetPatch is one sub-stage's contribution to the bundle. Nil fields are
// left untouched, so completion order between sub-stages cannot clobber
// fields written by the others.
type AssetPatch struct {
	ThumbnailURL      *string
	ThumbnailVariants []string
	AudioURL          *string
	StoryboardURLs    []string
	VideoURL          *string
}

// Apply folds a patch into the bundle, only ever adding or overwriting the
// patched fields
func (b *AssetBundle) Apply(p AssetPatch) {
	if p.ThumbnailURL != nil {
		b.ThumbnailURL = *p.ThumbnailURL
	}
	if p.ThumbnailVariants != nil {
		b.ThumbnailVariants = append([]string(nil), p.ThumbnailVariants...)
	}
	if p.AudioURL != nil {
		b.AudioURL = *p.AudioURL
	}
	if p.StoryboardURLs != nil {
		b.StoryboardURLs = append([]string(nil), p.StoryboardURLs...)
	}
	if p.VideoURL != nil {
		b.VideoURL = *p.VideoURL
	}
}

// Clone returns a deep copy of the bundle
func (b AssetBundle) Clone() AssetBundle {
	out := b
	out.ThumbnailVariants = append([]string(nil), b.ThumbnailVariants...)
	out.StoryboardURLs = append([]string(nil), b.StoryboardURLs...)
	return out
}

// Run is one end-to-end production cycle. Exactly one run is live at a time;
// a new run fully replaces the previous one's fields.
type Run struct {
	Stage      Stage       `json:"stage"`
	Topic      *Topic      `json:"topic,omitempty"`
	Script     *Script     `json:"script,omitempty"`
	Assets     AssetBundle `json:"assets"`
	UploadedID string      `json:"uploaded_id,omitempty"`
	Autonomous bool        `json:"autonomous"`
}

// Clone returns a deep copy so a render can never observe mid-run writes
func (r Run) Clone() Run {
	out := r
	out.Assets = r.Assets.Clone()
	if r.Topic != nil {
		t := *r.Topic
		t.Sources = append([]string(nil), r.Topic.Sources...)
		out.Topic = &t
	}
	if r.Script != nil {
		s := *r.Script
		s.Tags = append([]string(nil), r.Script.Tags...)
		s.Outline = append([]string(nil), r.Script.Outline...)
		out.Script = &s
	}
	return out
}

// Severity classifies a log entry for the audit trail
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityError    Severity = "error"
	SeverityThinking Severity = "thinking"
)

// LogEntry is one line of the append-only, user-facing audit trail
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}
