// Package offline provides a canned responder for running the tutor without
// model credentials.
package offline

import (
	"context"
	"strings"
)

// questionMarker introduces the learner's question in rendered prompts. Only
// the text after its last occurrence is scanned so persona and history lines
// do not influence the topic.
const questionMarker = "Student's Question:"

type topic struct {
	keyword string
	reply   string
}

var topics = []topic{
	{"science", "Science is all about asking questions and finding answers! When you drop a ball, it falls down because of gravity - a force that pulls things toward Earth. Try dropping different objects and see what happens!"},
	{"math", "Math helps us solve problems every day! If you have 3 apples and eat 1, you have 2 left. That's subtraction: 3 - 1 = 2. Practice with objects around you!"},
	{"history", "History tells us stories about people who lived long ago. They built amazing things like pyramids and castles, and their discoveries help us today!"},
}

const defaultReply = "That's a great question! Learning happens when we're curious about the world around us. What specifically would you like to know more about?"

// Responder answers from a fixed set of topic replies chosen by keyword.
type Responder struct{}

func NewResponder() *Responder { return &Responder{} }

func (r *Responder) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := strings.ToLower(question(prompt))
	for _, t := range topics {
		if strings.Contains(q, t.keyword) {
			return t.reply, nil
		}
	}
	return defaultReply, nil
}

func question(prompt string) string {
	if i := strings.LastIndex(prompt, questionMarker); i >= 0 {
		return prompt[i+len(questionMarker):]
	}
	return prompt
}
