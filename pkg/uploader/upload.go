package uploader

import (
	"maps"
	"time"

	"github.com/shashiranjanraj/upbridge/pkg/callback"
)

// Status is the lifecycle state of one upload.
type Status string

const (
	StatusSubmitting       Status = "submitting"
	StatusSubmitted        Status = "submitted"
	StatusRejected         Status = "rejected"
	StatusQueued           Status = "queued"
	StatusUploading        Status = "uploading"
	StatusUploadSuccessful Status = "upload successful"
	StatusUploadFailed     Status = "upload failed"
	StatusCanceled         Status = "canceled"
	StatusDeleting         Status = "deleting"
	StatusDeleteFailed     Status = "delete failed"
	StatusDeleted          Status = "deleted"

	// StatusPaused belongs to chunked transfers, which this engine does not
	// perform; records never enter it.
	StatusPaused Status = "paused"
)

// Terminal reports whether no further transition is expected without an
// explicit retry or delete.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusUploadSuccessful, StatusUploadFailed,
		StatusCanceled, StatusDeleted, StatusDeleteFailed:
		return true
	}
	return false
}

// Upload is the record kept for every submitted file.
type Upload struct {
	ID          int             `json:"id"`
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Size        int64           `json:"size"`
	ContentType string          `json:"content_type,omitempty"`
	Status      Status          `json:"status"`
	Params      callback.Record `json:"params,omitempty"`
	Disk        string          `json:"disk,omitempty"`
	Path        string          `json:"path,omitempty"`
	URL         string          `json:"url,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (u *Upload) clone() *Upload {
	c := *u
	if u.Params != nil {
		c.Params = maps.Clone(u.Params)
	}
	return &c
}

// FileInfo is the argument passed to onValidate and, as a slice, to
// onValidateBatch.
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// File is one entry of a batch submission.
type File struct {
	Name string
	Data []byte
}
