package domain

// ClassificationMethod tags how a classification was produced.
type ClassificationMethod string

const (
	MethodKeyword ClassificationMethod = "keyword"
	MethodAI      ClassificationMethod = "ai"
	MethodBlended ClassificationMethod = "blended"
	MethodManual  ClassificationMethod = "manual"
)

// ClassificationResult is the outcome of a classification call. An empty
// Category means "unclassified", which is a valid terminal value.
type ClassificationResult struct {
	Category   string               `json:"category,omitempty"`
	Confidence float64              `json:"confidence"`
	Method     ClassificationMethod `json:"method"`
	Priority   Priority             `json:"priority,omitempty"`
	SLAHours   int                  `json:"sla_hours,omitempty"`
	TeamName   string               `json:"team_name,omitempty"`
}

// Classified reports whether a category was selected.
func (r ClassificationResult) Classified() bool {
	return r.Category != ""
}
