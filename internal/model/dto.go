package model

import "time"

type ImportJob struct {
	S3Path      string `json:"s3_path"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type ReplayJob struct {
	StudentKey int64  `json:"student_key"`
	RequestID  string `json:"request_id,omitempty"`
}

type ApplyResultRequest struct {
	StudentID    string    `json:"student_id" binding:"required"`
	CourseID     string    `json:"course" binding:"required"`
	Outcome      Outcome   `json:"outcome" binding:"required"`
	ExamDate     time.Time `json:"exam_date" binding:"required"`
	SerialNumber int64     `json:"serial_nbr"`
	ExamVersion  string    `json:"version"`
	ExamSource   string    `json:"exam_source"`
}

func (r ApplyResultRequest) Record() CreditRecord {
	return CreditRecord{
		StudentID:    r.StudentID,
		CourseID:     r.CourseID,
		Outcome:      r.Outcome,
		ExamDate:     r.ExamDate,
		SerialNumber: r.SerialNumber,
		ExamVersion:  r.ExamVersion,
		ExamSource:   r.ExamSource,
	}
}

// SubmissionRequest carries the parameters shared by every submission flow.
// CourseID is used by the challenge and tutorial flows, Courses by placement.
type SubmissionRequest struct {
	StudentKey int64     `json:"student_key" binding:"required"`
	CourseID   string    `json:"course,omitempty"`
	Courses    []string  `json:"courses,omitempty"`
	FinishedAt time.Time `json:"finished_at" binding:"required"`
}

type ImportRequest struct {
	S3Path string `json:"s3_path" binding:"required"`
}

type QueueResponse struct {
	StudentKey int64             `json:"student_key,omitempty"`
	Count      int               `json:"count"`
	Entries    []ScoreQueueEntry `json:"entries"`
}

type BreakerResponse struct {
	Open      bool       `json:"open"`
	OpenUntil *time.Time `json:"open_until,omitempty"`
}

// BreakerOpenRequest marks the records system down. Duration is a Go duration
// string; an empty request uses the configured cooldown.
type BreakerOpenRequest struct {
	Duration   string `json:"duration"`
	Indefinite bool   `json:"indefinite"`
}

type AuthTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// ExternalScore is the records system's wire format for one test score.
type ExternalScore struct {
	StudentKey int64     `json:"student_key"`
	TestCode   string    `json:"test_code"`
	TestDate   time.Time `json:"test_date"`
	Score      string    `json:"score"`
	Source     string    `json:"source,omitempty"`
}

type ExternalScoreList struct {
	Scores []ExternalScore `json:"scores"`
}

type ExternalWriteResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}
