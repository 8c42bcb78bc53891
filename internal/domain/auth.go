package domain

// SubjectType identifies who performed an action.
type SubjectType string

const (
	SubjectTypeCitizen SubjectType = "CITIZEN"
	SubjectTypeStaff   SubjectType = "STAFF"
	SubjectTypeSystem  SubjectType = "SYSTEM"
)
