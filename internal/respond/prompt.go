// Package respond orchestrates one conversational turn: persist the inbound
// message, assemble grounding context, call the completion gateway, detect
// escalation, persist the reply. Every channel adapter funnels through the
// same engine; only delivery differs.
package respond

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/relaydesk/relaydesk/internal/bots"
)

// MaxKnowledgeEntries bounds how many knowledge entries are injected per turn.
const MaxKnowledgeEntries = 10

// promptSuffix is the sole escalation-signaling contract between the model
// and the orchestrator: a textual marker, no structured output. Parsing must
// tolerate the marker being absent or malformed.
const promptSuffix = `Guidelines:
- Be helpful, professional, and concise.
- Ground your answers in the business information provided above.
- If you do not know the answer, say so and offer to connect the visitor with a team member. Never invent order details, prices, or policies.
- If a request is beyond what you can handle (refunds, complaints, account changes, anything requiring human judgment), append [ESCALATE: <short reason>] to the very end of your reply.`

// escalationSuffix replaces the stripped marker in the visitor-facing text.
const escalationSuffix = "A member of our team will follow up with you shortly."

var escalationPattern = regexp.MustCompile(`(?i)\[escalate:\s*([^\]]*)\]`)

// BuildSystemPrompt assembles the grounding text for one turn.
func BuildSystemPrompt(bot bots.Bot, knowledge []bots.KnowledgeEntry, commerceContext string) string {
	var b strings.Builder

	instructions := strings.TrimSpace(bot.Instructions)
	if instructions == "" {
		instructions = fmt.Sprintf("You are %s, a customer support assistant.", bot.Name)
	}
	b.WriteString(instructions)
	b.WriteString("\n\n")

	if len(knowledge) > 0 {
		if len(knowledge) > MaxKnowledgeEntries {
			knowledge = knowledge[:MaxKnowledgeEntries]
		}
		b.WriteString("Business knowledge:\n")
		for _, entry := range knowledge {
			fmt.Fprintf(&b, "- %s: %s\n", entry.Title, entry.Content)
		}
		b.WriteString("\n")
	}

	if commerceContext != "" {
		b.WriteString(commerceContext)
		b.WriteString("\n\n")
	}

	b.WriteString(promptSuffix)
	return b.String()
}

// ParseEscalation scans a model reply for the escalation marker. It returns
// the visitor-facing text with the marker stripped (and the follow-up notice
// appended), the captured reason, and whether the marker was present.
func ParseEscalation(reply string) (text, reason string, escalated bool) {
	match := escalationPattern.FindStringSubmatch(reply)
	if match == nil {
		return strings.TrimSpace(reply), "", false
	}
	reason = strings.TrimSpace(match[1])
	text = strings.TrimSpace(escalationPattern.ReplaceAllString(reply, ""))
	if text == "" {
		text = "Let me get a team member to help you with this."
	}
	return text + " " + escalationSuffix, reason, true
}
