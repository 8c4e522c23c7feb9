package agent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/support-agent/internal/model"
)

const reformulateSystemPrompt = `Given a chat history and the latest user question, which might reference context in the chat history, formulate a standalone question which can be understood without the chat history.
Replace every pronoun that refers to something earlier in the conversation with the thing it refers to.
Do NOT answer the question. Return only the standalone question, or the question unchanged if it is already standalone.`

const generateSystemPrompt = `You are a helpful customer support assistant.
Answer the user's question using only the context below. If the context does not contain the answer, say that you do not know rather than guessing.
Keep the answer concise.

Context:
%s`

const assessSystemPrompt = `You grade customer support answers.
Given a question, the retrieved context and a draft answer, rate how confident you are that the answer is correct, complete and supported by the context.
Reply with a single number between 0 and 1 and nothing else.`

// BridgeMessage is shown to the user when the thread is handed to a human.
const BridgeMessage = "I'm not fully certain about this one, so I've passed your question to a member of our support team. They'll reply here as soon as they can."

// ApologyMessage is shown when a run fails.
const ApologyMessage = "Sorry, something went wrong while answering your question. Please try again."

// phase labels sent as status events when a node starts.
var phases = map[model.Node]string{
	model.NodeCacheCheck:  "Checking previous answers",
	model.NodeReformulate: "Understanding your question",
	model.NodeRetrieve:    "Searching the knowledge base",
	model.NodeGenerate:    "Writing an answer",
	model.NodeAssess:      "Reviewing the answer",
	model.NodeCacheUpdate: "Saving the answer",
	model.NodeEscalate:    "Contacting support",
}

func formatContext(chunks []model.ContextChunk) string {
	if len(chunks) == 0 {
		return "(no relevant context found)"
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if c.Source != "" {
			fmt.Fprintf(&b, "[%d] (%s) %s", i+1, c.Source, c.Content)
		} else {
			fmt.Fprintf(&b, "[%d] %s", i+1, c.Content)
		}
	}
	return b.String()
}

func formatAssessment(question, answer string, chunks []model.ContextChunk) string {
	return fmt.Sprintf("Question:\n%s\n\nContext:\n%s\n\nDraft answer:\n%s", question, formatContext(chunks), answer)
}
