package kb

import (
	"fmt"
	"strings"

	"github.com/leomaro7/kb-chat/internal/model/chat"
)

// answerTemplate is the fixed generation instruction handed to the managed
// service. $search_results$ is substituted by Bedrock with the retrieved
// passages before generation.
const answerTemplate = `Answer using the search results below, taking the conversation so far into account:
'$search_results$'
Answer format:
---
[Referenced documents]
- Title of each referenced document
- Page of each referenced document
[Answer]
The answer itself
---
Notes:
- When search results exist, always state the title of the referenced document and the page it appears on.
- When no search results exist, mark the answer with [Supplementary information].
- Structure the answer according to the format above.
- Take the context of the previous conversation into account.`

// Exchange is one completed question/answer pair.
type Exchange struct {
	Question string
	Answer   string
}

// recentExchanges folds a strictly alternating transcript into its most
// recent question/answer pairs, newest last.
func recentExchanges(messages []chat.Message, limit int) []Exchange {
	exchanges := make([]Exchange, 0, limit)
	for i := 0; i+1 < len(messages); i += 2 {
		if messages[i].Role != chat.RoleUser || messages[i+1].Role != chat.RoleAssistant {
			continue
		}
		exchanges = append(exchanges, Exchange{
			Question: messages[i].Content,
			Answer:   messages[i+1].Content,
		})
	}

	if limit >= 0 && len(exchanges) > limit {
		exchanges = exchanges[len(exchanges)-limit:]
	}
	return exchanges
}

// buildPrompt combines recent exchanges and the new question into the
// query text sent for retrieval.
func buildPrompt(exchanges []Exchange, question string) string {
	if len(exchanges) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.Question, ex.Answer)
	}
	b.WriteString("\nNew question:\n")
	b.WriteString(question)
	return b.String()
}
