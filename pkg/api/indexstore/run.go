package indexstore

import "time"

// Run is the indexed summary of one run directory.
type Run struct {
	ID      uint   `gorm:"primaryKey"`
	RunName string `gorm:"not null;uniqueIndex"`
	Path    string `gorm:"not null"`

	// Parsed from the directory name.
	DirDate    string
	DirProject string

	// Denormalized from the run record.
	GTProject   string `gorm:"index"`
	FlowCell    string `gorm:"index"`
	RunDate     string
	MachineID   string
	SeqProtocol string
	SampleSize  string

	// Complete is set when the record carries both identifying keys.
	Complete    bool
	Diagnostics int

	// The full record serialized as JSON.
	RecordJSON string `gorm:"type:text"`

	IndexedAt   time.Time
	ReindexedAt *time.Time
}

// Diagnostic is one non-fatal parse problem recorded while indexing a run.
type Diagnostic struct {
	ID      uint   `gorm:"primaryKey"`
	RunName string `gorm:"not null;index"`
	Source  string
	Line    int
	Message string `gorm:"type:text"`
}
