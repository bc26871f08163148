package types

import "time"

// ExportOutcome summarizes one completed entity export.
type ExportOutcome struct {
	Entity      string
	OutputPath  string
	RecordCount int64
	Identifiers *IdentifierSet
	BlobField   string // non-empty when a binary-content pass is required
	Duration    time.Duration
}

// SessionStats aggregates counters across one export session.
type SessionStats struct {
	EntitiesExported int
	EntitiesSkipped  int
	EntitiesFailed   int
	RecordsExported  int64
	RelatedTasksRun  int
	BlobsDownloaded  int
	BlobsSkipped     int
	BlobsFailed      int
}
