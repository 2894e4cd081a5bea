package domain

import "time"

// ConversationTurn is one completed question/answer exchange in a session.
type ConversationTurn struct {
	StudentMessage  string `json:"studentMessage"`
	TeacherResponse string `json:"teacherResponse"`
	Timestamp       string `json:"timestamp"`
	GradeLevel      string `json:"gradeLevel"`
}

// NewConversationTurn stamps a turn with the given time in RFC 3339 UTC.
func NewConversationTurn(student, teacher, gradeLevel string, at time.Time) ConversationTurn {
	return ConversationTurn{
		StudentMessage:  student,
		TeacherResponse: teacher,
		Timestamp:       FormatTimestamp(at),
		GradeLevel:      gradeLevel,
	}
}

// FormatTimestamp renders t the way every API timestamp is rendered.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
