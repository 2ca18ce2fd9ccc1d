package chat

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
)

// DefaultRefusalMessage is the reply given when retrieval finds nothing.
const DefaultRefusalMessage = "I'm sorry, I couldn't find information about that in the available documents."

const groundedPrompt = `You are a friendly and professional assistant.

Answer using only the information in the CONTEXT.
Do not use outside knowledge and do not invent facts.

If the answer is not in the CONTEXT, reply exactly:
"%s"

CONTEXT:
%s`

const generalPrompt = `You are a helpful virtual assistant.
Answer clearly, concisely and professionally.`

// systemPrompt returns the grounded prompt when context is present and the
// general one otherwise.
func systemPrompt(contextBlock string, grounded bool, refusal string) string {
	if grounded {
		return fmt.Sprintf(groundedPrompt, refusal, contextBlock)
	}
	return generalPrompt
}

// buildMessages converts stored history plus the new user message into a
// strictly alternating user/assistant sequence that starts with a user
// message. Consecutive messages of one role are merged.
func buildMessages(history []*core.Message, userMessage string) []ai.Message {
	messages := make([]ai.Message, 0, len(history)+1)
	appendMessage := func(role ai.ChatRole, content string) {
		if strings.TrimSpace(content) == "" {
			return
		}
		if len(messages) == 0 && role != ai.ChatRoleUser {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n\n" + content
			return
		}
		messages = append(messages, ai.Message{Role: role, Content: content})
	}

	for _, msg := range history {
		switch msg.Role {
		case core.RoleUser:
			appendMessage(ai.ChatRoleUser, msg.Content)
		case core.RoleAssistant:
			appendMessage(ai.ChatRoleAssistant, msg.Content)
		}
	}
	appendMessage(ai.ChatRoleUser, userMessage)
	return messages
}
