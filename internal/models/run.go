package models

import "time"

// ScrapeRun is one ingestion batch against one market.
type ScrapeRun struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	Market         string     `json:"market"`
	StartedAt      time.Time  `json:"started_at" gorm:"index"`
	FinishedAt     *time.Time `json:"finished_at"`
	PagesFetched   *int       `json:"pages_fetched"`
	PropertiesSeen *int       `json:"properties_seen"`
	Success        *bool      `json:"success"`
	ErrorMessage   *string    `json:"error_message"`
}

// ScrapeRunPage is the outcome of one fetched page within a run. Recording
// the same page again is an upsert, not a duplicate, which is what makes an
// interrupted run resumable.
type ScrapeRunPage struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	ScrapeRunID     int64     `json:"scrape_run_id" gorm:"uniqueIndex:idx_run_pages,priority:1"`
	PageNumber      int       `json:"page_number" gorm:"uniqueIndex:idx_run_pages,priority:2"`
	URL             string    `json:"url"`
	Success         bool      `json:"success"`
	PropertiesFound int       `json:"properties_found"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// RunSummary is a run plus its derived outcome: a run only counts as
// successful when every recorded page succeeded.
type RunSummary struct {
	ScrapeRun
	PagesRecorded  int  `json:"pages_recorded"`
	DerivedSuccess bool `json:"derived_success"`
}
