package usecase

import (
	"fmt"

	"form-ai-queue/internal/domain/model"
)

var continuePhrasings = []string{
	"Continue writing from exactly where you stopped.",
	"Please carry on with the next part of the document.",
	"Keep going with the content, picking up at the last sentence.",
	"Proceed with the following section.",
	"Resume the document seamlessly from the point where it ended.",
}

const continuationRules = "Do not repeat earlier content, do not restate these instructions, and do not add headings like [continued]."

// continuationPrompt varies the follow-up instruction by progress so the
// model does not echo one fixed string back.
func continuationPrompt(index int, progress float64, visibleLen int, s model.CompletionSettings) string {
	var lead string
	switch {
	case progress >= 0.85:
		lead = "You are close to the length limit. Wrap up the remaining points and finish with a clear conclusion."
	case visibleLen < s.MinContentLength:
		lead = "The document is still too short. Continue and add more detail and examples to the current section."
	default:
		lead = continuePhrasings[index%len(continuePhrasings)]
	}
	msg := lead + " " + continuationRules
	if s.EnableSmartCompletion && s.CompletionMarker != "" {
		msg += fmt.Sprintf(" When the document is completely finished, end your reply with %s on its own line.", s.CompletionMarker)
	}
	return msg
}

// markerInstruction is appended to the system prompt so the model knows how to signal completion.
func markerInstruction(s model.CompletionSettings) string {
	if !s.EnableSmartCompletion || s.CompletionMarker == "" {
		return ""
	}
	return fmt.Sprintf("When your response is completely finished, write %s on its own line as the very last thing. Never write it before the end.", s.CompletionMarker)
}
