package app

import "quiz-attempt-service/internal/domain"

// Score grades recorded answers against the quiz. Pure function: for each
// question in order it compares the recorded answer to the correct option by
// exact string equality. Unanswered questions count as incorrect, never as an
// error. Returns the point total and the ordered per-question breakdown.
func Score(quiz domain.Quiz, answers map[int]string) (int, []domain.AnswerReview) {
	points := 0
	breakdown := make([]domain.AnswerReview, 0, len(quiz.Questions))
	for i, question := range quiz.Questions {
		selected := answers[i] // empty string when unanswered
		match := selected != "" && selected == question.Correct
		if match {
			points++
		}
		breakdown = append(breakdown, domain.AnswerReview{
			Question: question.Text,
			Selected: selected,
			Correct:  question.Correct,
			Match:    match,
		})
	}
	return points, breakdown
}
