package domain

import "time"

// Question is a single multiple-choice question. Correct holds the exact text
// of the winning option; grading compares by string equality.
type Question struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Correct string   `json:"correct"`
}

// Quiz is the immutable content a participant attempts: an ordered list of
// questions published under a short code.
type Quiz struct {
	Code            string     `json:"code"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
}

// Duration returns the attempt window as a time.Duration.
func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// AttemptKey identifies one participant's single permitted attempt at a quiz.
type AttemptKey struct {
	Identity string
	QuizCode string
}

// Trigger names which of the two finalize paths fired.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
)

// AnswerReview is the per-question grading record kept for review and export.
// Selected is the empty string when the question was left unanswered.
type AnswerReview struct {
	Question string `json:"question"`
	Selected string `json:"selected"`
	Correct  string `json:"correct"`
	Match    bool   `json:"match"`
}

// Submission is the single durable result of an attempt. At most one exists
// per (identity, quiz code), and it is never updated in place.
type Submission struct {
	ID         string         `json:"id"`
	Identity   string         `json:"identity"`
	QuizCode   string         `json:"quizCode"`
	Score      int            `json:"score"`
	Answers    []AnswerReview `json:"answers"`
	RecordedAt time.Time      `json:"recordedAt"`
}
