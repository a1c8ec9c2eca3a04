package models

import "time"

// Image is the metadata row for one stored upload. Rows are written once and
// only ever deleted, never updated.
type Image struct {
	ID           string    `gorm:"primaryKey;size:32" json:"id"`
	Filename     string    `gorm:"size:64;not null" json:"filename"`       // {id}.{ext} inside the upload dir
	OriginalName string    `gorm:"size:255;not null" json:"original_name"` // advisory only
	UploadTime   time.Time `gorm:"not null" json:"upload_time"`
	DeleteAt     *int64    `gorm:"index" json:"delete_at,omitempty"` // unix seconds, nil = keep forever
	FileSize     int64     `json:"file_size"`
	MimeType     string    `gorm:"size:64" json:"mime_type"`
}

// TableName keeps the table name stable regardless of gorm naming strategy.
func (Image) TableName() string {
	return "images"
}

// ExpiresAt returns the deletion deadline, or nil when the image never expires.
func (i *Image) ExpiresAt() *time.Time {
	if i.DeleteAt == nil {
		return nil
	}
	t := time.Unix(*i.DeleteAt, 0).UTC()
	return &t
}
