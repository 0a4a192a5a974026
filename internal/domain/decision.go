package domain

// DecisionKind enumerates the closed set of dispatch outcomes.
type DecisionKind int

const (
	Ignore DecisionKind = iota
	Delete
	FileIssue
	FileUpload
	Query
)

func (k DecisionKind) String() string {
	switch k {
	case Ignore:
		return "ignore"
	case Delete:
		return "delete"
	case FileIssue:
		return "file_issue"
	case FileUpload:
		return "file_upload"
	case Query:
		return "query"
	}
	return "unknown"
}

// Decision is the classification outcome for one inbound event. It is derived
// deterministically from the event text and subtype and never stored.
type Decision struct {
	Kind  DecisionKind
	Title string // FileIssue: issue title ("" means usage error)
	Body  string // FileIssue: issue body ("" means the handler synthesizes one)
	Text  string // Query: the trimmed query text
}
