package store

import (
	"strings"
	"time"
)

// VideoStatus represents the lifecycle of a video.
type VideoStatus string

const (
	VideoUploading  VideoStatus = "uploading"
	VideoProcessing VideoStatus = "processing"
	VideoReady      VideoStatus = "ready"
	VideoFailed     VideoStatus = "failed"
)

var videoStatuses = map[VideoStatus]struct{}{
	VideoUploading:  {},
	VideoProcessing: {},
	VideoReady:      {},
	VideoFailed:     {},
}

// ParseVideoStatus converts a string into a known VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, bool) {
	normalized := VideoStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := videoStatuses[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends a processing run.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoReady || s == VideoFailed
}

// Video is a persisted video record.
type Video struct {
	ID            string
	OwnerID       string
	Title         string
	Description   string
	BlobHandle    string
	Thumbnail     string
	DurationSecs  float64
	SizeBytes     int64
	Status        VideoStatus
	Transcription string
	Tags          []string
	Public        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TaskType identifies one processing transform.
type TaskType string

const (
	TaskThumbnail       TaskType = "thumbnail"
	TaskTranscription   TaskType = "transcription"
	TaskCompression     TaskType = "compression"
	TaskContentAnalysis TaskType = "content_analysis"
)

// RequiredTaskTypes returns the task types that gate video readiness.
func RequiredTaskTypes() []TaskType {
	return []TaskType{TaskThumbnail, TaskTranscription, TaskCompression}
}

// Required reports whether the task type gates video readiness.
func (t TaskType) Required() bool {
	switch t {
	case TaskThumbnail, TaskTranscription, TaskCompression:
		return true
	default:
		return false
	}
}

// TaskStatus represents the lifecycle of a processing task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the task status can no longer change.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// ProcessingTask is one unit of work from a video's task batch.
type ProcessingTask struct {
	ID           string
	VideoID      string
	Type         TaskType
	JobHandle    string
	Status       TaskStatus
	ResultJSON   string
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DownloadStatus represents the lifecycle of a YouTube download.
type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "pending"
	DownloadProcessing DownloadStatus = "processing"
	DownloadCompleted  DownloadStatus = "completed"
	DownloadFailed     DownloadStatus = "failed"
)

// YouTubeDownload tracks ingestion of an external YouTube source.
type YouTubeDownload struct {
	ID           string
	OwnerID      string
	SourceURL    string
	VideoID      string
	Status       DownloadStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UploadStatus represents the lifecycle of a social media upload.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadPublished UploadStatus = "published"
	UploadFailed    UploadStatus = "failed"
	UploadScheduled UploadStatus = "scheduled"
)

// CancelledByUserMessage is the sentinel error message set on user-cancelled uploads.
const CancelledByUserMessage = "Cancelled by user"

// ActiveUploadStatuses are the statuses that block a new upload for the same
// (video, platform) pair.
func ActiveUploadStatuses() []UploadStatus {
	return []UploadStatus{UploadPending, UploadUploading, UploadPublished, UploadScheduled}
}

// SocialMediaUpload is one publish attempt of a video to a platform.
type SocialMediaUpload struct {
	ID           string
	OwnerID      string
	VideoID      string
	Platform     string
	Caption      string
	Hashtags     string
	ScheduleAt   *time.Time
	Status       UploadStatus
	ExternalID   string
	ExternalURL  string
	ErrorMessage string
	CreatedAt    time.Time
	PublishedAt  *time.Time
	UpdatedAt    time.Time
}

// Platform is a configured publish target.
type Platform struct {
	Name             string
	Endpoint         string
	AccessToken      string
	Active           bool
	MaxVideoBytes    int64
	MaxDurationSecs  int
	SupportedFormats []string
	UpdatedAt        time.Time
}

// SupportsFormat reports whether the platform accepts the container format.
// An empty supported list accepts everything.
func (p Platform) SupportsFormat(format string) bool {
	if len(p.SupportedFormats) == 0 {
		return true
	}
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	for _, supported := range p.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}

// PlatformAnalytics holds per-upload engagement counters.
type PlatformAnalytics struct {
	UploadID       string
	Views          int64
	Likes          int64
	Comments       int64
	Shares         int64
	EngagementRate float64
	RefreshedAt    time.Time
}

// ComputeEngagementRate derives the engagement rate from the raw counters.
func (a *PlatformAnalytics) ComputeEngagementRate() {
	if a.Views <= 0 {
		a.EngagementRate = 0
		return
	}
	a.EngagementRate = float64(a.Likes+a.Comments+a.Shares) / float64(a.Views)
}
