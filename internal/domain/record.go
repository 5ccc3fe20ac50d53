package domain

import "time"

// ConversionRecord is the persisted outcome of a finished conversion job.
// Records are written once when a job reaches a terminal state and are only
// used for history listings; they are never loaded back as live jobs.
type ConversionRecord struct {
	ID           string       `gorm:"type:text;primaryKey" json:"id"`
	SourceURL    string       `gorm:"type:text;not null" json:"source_url"`
	Format       AudioFormat  `gorm:"type:text;not null" json:"format"`
	Title        string       `gorm:"type:text" json:"title,omitempty"`
	State        JobState     `gorm:"type:text;not null;index:idx_conversion_jobs_state" json:"status"`
	Progress     int          `gorm:"default:0" json:"progress"`
	ResultPath   string       `gorm:"type:text" json:"file,omitempty"`
	PublicURL    string       `gorm:"type:text" json:"public_url,omitempty"`
	ErrorClass   FailureClass `gorm:"type:text" json:"error_class,omitempty"`
	ErrorMessage string       `gorm:"type:text" json:"error,omitempty"`
	Tempo        *int         `json:"bpm,omitempty"`
	Key          *string      `gorm:"type:text" json:"key,omitempty"`
	CreatedAt    time.Time    `gorm:"index:idx_conversion_jobs_created" json:"created_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// TableName returns the database table name for ConversionRecord.
func (ConversionRecord) TableName() string {
	return "conversion_jobs"
}

// RecordFromJob converts a terminal job snapshot into a history record.
func RecordFromJob(j Job) ConversionRecord {
	rec := ConversionRecord{
		ID:         j.ID,
		SourceURL:  j.SourceURL,
		Format:     j.Format,
		Title:      j.Title,
		State:      j.State,
		Progress:   j.Progress,
		ResultPath: j.Result,
		PublicURL:  j.PublicURL,
		Tempo:      j.Tempo,
		Key:        j.Key,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.UpdatedAt,
	}
	if j.Error != nil {
		rec.ErrorClass = j.Error.Class
		rec.ErrorMessage = j.Error.Message
	}
	return rec
}
