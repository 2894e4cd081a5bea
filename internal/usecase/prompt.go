package usecase

import (
	"fmt"
	"strings"

	"k12-tutor/internal/domain"
)

type promptContext struct {
	subject  string
	gradeTag string
	grade    domain.GradeConfig
}

// buildPrompt renders the single instruction prompt sent to the model. The
// whole history is included; nothing is truncated or summarised.
func buildPrompt(pc promptContext, question string, history []domain.ConversationTurn) string {
	return strings.Join([]string{
		personaStatement(pc.subject),
		fmt.Sprintf("Your student is in grade level: %s.", pc.gradeTag),
		fmt.Sprintf("Your response should be tailored to this level with a complexity of \"%s\".", pc.grade.Complexity),
		fmt.Sprintf("Keep the response under %d words.", pc.grade.MaxWords),
		examplesDirective(pc.grade.AllowExamples),
		"Previous conversation history is provided for context. Do not repeat answers.",
		"",
		"History:",
		renderHistory(history),
		"",
		"Student's Question: \"" + question + "\"",
		"",
		"Provide an educational, age-appropriate response. Be encouraging and clear.",
	}, "\n")
}

func personaStatement(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "You are a friendly and encouraging K-12 teaching assistant."
	}
	return fmt.Sprintf("You are a friendly and encouraging K-12 teaching assistant for %s.", subject)
}

func examplesDirective(allow bool) string {
	if allow {
		return "Use simple, relatable examples."
	}
	return "Do not use complex examples."
}

func renderHistory(history []domain.ConversationTurn) string {
	if len(history) == 0 {
		return "(no previous turns)"
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. [%s, grade %s]\n   Student: %s\n   Teacher: %s",
			i+1, turn.Timestamp, turn.GradeLevel, turn.StudentMessage, turn.TeacherResponse)
	}
	return b.String()
}
