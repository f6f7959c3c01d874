package domain

import "time"

// Analysis is an archived analysis result. Records are only written when the
// archive is enabled.
type Analysis struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	SourceType     string    `gorm:"type:text;not null;index:idx_analyses_source" json:"source_type"`
	SourceURL      string    `gorm:"type:text" json:"source_url,omitempty"`
	Filename       string    `gorm:"type:text" json:"filename,omitempty"`
	MIMEType       string    `gorm:"type:text" json:"mime_type"`
	OriginalSize   int64     `json:"original_size"`
	NormalizedSize int64     `json:"normalized_size"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	MD5Hash        string    `gorm:"type:text;index:idx_analyses_md5" json:"md5_hash"`
	StorageKey     string    `gorm:"type:text" json:"storage_key,omitempty"`
	StorageURL     string    `gorm:"-" json:"storage_url,omitempty"`
	Prompt         string    `gorm:"type:text" json:"prompt"`
	Model          string    `gorm:"type:text" json:"model"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `gorm:"index:idx_analyses_created" json:"created_at"`
}

// TableName returns the database table name for Analysis.
func (Analysis) TableName() string {
	return "analyses"
}
