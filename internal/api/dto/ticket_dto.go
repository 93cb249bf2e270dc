package dto

import "time"

// MinSubjectIDLength is the shortest accepted subject document id.
const MinSubjectIDLength = 4

// IssueTicketRequest payload for reception.
type IssueTicketRequest struct {
	SubjectID string `json:"subject_id"`
	Priority  string `json:"priority"`
}

// TicketResponse describes an issued ticket.
type TicketResponse struct {
	Code      string    `json:"code"`
	SubjectID string    `json:"subject_id"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
	// ModuleID is set when the ticket went straight to a free module.
	ModuleID int `json:"module_id,omitempty"`
	Waiting  int `json:"waiting"`
}
