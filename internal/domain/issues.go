package domain

import "context"

// IssueRequest is a one-shot create-issue submission.
type IssueRequest struct {
	Title string
	Body  string
}

// IssueResult identifies a created issue.
type IssueResult struct {
	Number int
	URL    string
}

// IssueFiler submits issues to an external tracker.
type IssueFiler interface {
	CreateIssue(ctx context.Context, req IssueRequest) (IssueResult, error)
}
