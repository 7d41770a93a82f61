package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Payload is implemented by every typed domain payload.
type Payload interface {
	Check() error
}

// Unwrap decodes Record.Data into a typed payload. Unknown fields are kept
// out of T but remain untouched in the raw data.
func Unwrap[T Payload](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// Child is a registered child.
type Child struct {
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Guardian    string `json:"guardian,omitempty"`
	Village     string `json:"village,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (c Child) Check() error { return nil }

// Event is a scheduled activity children can attend.
type Event struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
}

func (e Event) Check() error {
	if !e.EndsAt.IsZero() && e.EndsAt.Before(e.StartsAt) {
		return errors.New("event ends before it starts")
	}
	return nil
}

// AttendanceMark records one child's attendance at one event.
type AttendanceMark struct {
	EventID    string `json:"eventId"`
	ChildID    string `json:"childId"`
	Status     string `json:"status"`
	RecordedBy string `json:"recordedBy,omitempty"`
}

func (a AttendanceMark) Check() error {
	if a.EventID == "" || a.ChildID == "" {
		return errors.New("attendance requires eventId and childId")
	}
	return nil
}

// AssessmentQuestion is one question of an assessment form.
type AssessmentQuestion struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Order    int    `json:"order"`
	Active   bool   `json:"active"`
}

func (q AssessmentQuestion) Check() error { return nil }

// AssessmentAnswer is a child's answer to an assessment question.
type AssessmentAnswer struct {
	QuestionID string `json:"questionId"`
	ChildID    string `json:"childId"`
	Answer     string `json:"answer"`
	Score      *int   `json:"score,omitempty"`
	Assessor   string `json:"assessor,omitempty"`
}

func (a AssessmentAnswer) Check() error {
	if a.QuestionID == "" || a.ChildID == "" {
		return errors.New("answer requires questionId and childId")
	}
	return nil
}
