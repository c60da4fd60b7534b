package model

// Status is the terminal outcome of processing one document.
type Status string

// Status constants. Exactly one of these is reported per document; the
// invoking layer maps them onto success/failure semantics (HTTP status,
// process exit code).
const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Document is the metadata the vault reports for a stored file.
type Document struct {
	ID       string
	Name     string
	MimeType string
	Parents  []string
	WebLink  string
}

// Outcome summarizes a finished pipeline run for one document.
type Outcome struct {
	Status      Status
	Document    Document
	NewName     string
	Destination []string // ordered folder segments, top-down
	Category    Category
}
