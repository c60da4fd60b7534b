package model

// Event is a dated occurrence extracted from a document (a sports day, a
// parents' meeting). StartTime and EndTime are "HH:MM" or empty when the
// document gives no time.
type Event struct {
	Title       string `json:"title"`
	Date        string `json:"date"` // YYYY-MM-DD
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// Task is a deadline-bearing obligation extracted from a document
// (a form to submit, supplies to prepare).
type Task struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date"` // YYYY-MM-DD
	Notes   string `json:"notes"`
}

// Schedule holds the events and tasks extracted from one document. Transient,
// produced only for the children/education category.
type Schedule struct {
	Events []Event `json:"events"`
	Tasks  []Task  `json:"tasks"`
}

// Empty reports whether the extraction found nothing actionable.
func (s *Schedule) Empty() bool {
	return s == nil || (len(s.Events) == 0 && len(s.Tasks) == 0)
}
