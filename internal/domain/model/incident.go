package model

// ReportCategory classifies an incident report.
type ReportCategory string

const (
	CategorySafety      ReportCategory = "Safety"
	CategoryCrime       ReportCategory = "Crime"
	CategoryMaintenance ReportCategory = "Maintenance"
	CategoryOther       ReportCategory = "Other"
)

// ReportStatus is the review state of an incident report.
type ReportStatus string

const (
	StatusNew      ReportStatus = "New"
	StatusInReview ReportStatus = "In Review"
	StatusApproved ReportStatus = "Approved"
	StatusAssigned ReportStatus = "Assigned"
	StatusOngoing  ReportStatus = "Ongoing"
	StatusResolved ReportStatus = "Resolved"
)

// Open reports whether the incident still needs attention.
func (s ReportStatus) Open() bool { return s != StatusResolved }

// ReportPriority is the triage priority of an incident report.
type ReportPriority string

const (
	PriorityUrgent ReportPriority = "Urgent"
	PriorityNormal ReportPriority = "Normal"
	PriorityLow    ReportPriority = "Low"
)

// Note is an officer comment on a report. At is kept as the server sent it.
type Note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	At   string `json:"at"`
	By   string `json:"by"`
}

// Report is an incident reported by a citizen.
type Report struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Category    ReportCategory `json:"category"`
	Location    string         `json:"location"`
	ReportedBy  string         `json:"reportedBy"`
	ReportedAt  string         `json:"reportedAt"`
	Status      ReportStatus   `json:"status"`
	Priority    ReportPriority `json:"priority"`
	Description string         `json:"description,omitempty"`
	Notes       []Note         `json:"notes"`
}
