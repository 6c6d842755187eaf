package domain

import "time"

// FileSource records how a GRIB file entered storage.
type FileSource string

const (
	SourceUpload FileSource = "upload"
	SourceURL    FileSource = "url"
)

// FileInfo describes a stored GRIB file.
type FileInfo struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename"`
	Size       int64      `json:"size"`
	Source     FileSource `json:"source"`
	OriginURL  string     `json:"origin_url,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

// FileEventType identifies a file lifecycle transition.
type FileEventType string

const (
	FileUploaded FileEventType = "uploaded"
	FileFetched  FileEventType = "fetched"
	FileDeleted  FileEventType = "deleted"
)

// FileEvent is published to the event topic on every lifecycle transition.
type FileEvent struct {
	Type       FileEventType `json:"event"`
	File       FileInfo      `json:"file"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewFileEvent stamps a lifecycle event with the package clock.
func NewFileEvent(t FileEventType, file FileInfo) FileEvent {
	return FileEvent{Type: t, File: file, OccurredAt: clock.Now().UTC()}
}
