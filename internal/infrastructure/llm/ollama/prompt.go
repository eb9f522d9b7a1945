package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

func buildSimplifyPrompt(text string) string {
	return `You are a legal document simplifier. Your task is to:
1. Extract all distinct clauses from the contract below
2. Rewrite each clause in simple, plain language that anyone can understand
3. Keep the legal meaning while removing jargon

Return a JSON object with a "clauses" array. Each item has clause_id (integer, starting at 1),
original_text (the clause verbatim) and simplified_text.
No markdown, no extra keys.

CONTRACT TEXT:
` + text
}

func buildTranslatePrompt(clauses []domain.Clause) string {
	return `You are a translator specializing in legal documents.
Translate the simplified text of every clause to both Hindi and Bengali.
Keep translations natural and easy to understand for native speakers.

Return a JSON object with "hindi" and "bengali" arrays. Each item has clause_id (matching the input)
and translated_text.
No markdown, no extra keys.

CLAUSES TO TRANSLATE:
` + clausesJSON(clauses)
}

func buildRisksPrompt(clauses []domain.Clause) string {
	return `You are a legal risk analyst. Analyze the contract clauses to identify:
- unfair clauses that heavily favor one party
- ambiguous language that could be exploited
- clauses that may not be legally enforceable
- hidden fees or penalties
- unusual termination conditions
- excessive liability limitations

Return a JSON object with a "risks" array and a "summary" string. Each risk has clause_id (matching the input),
risk_type, severity (one of low, medium, high), description and recommendation.
No markdown, no extra keys.

CLAUSES TO ANALYZE:
` + clausesJSON(clauses)
}

func buildMetadataPrompt(text string) string {
	return `You are a legal document analyzer. Extract metadata from the contract below.

category: one of employment, rental, nda, service, sales, partnership, loan, insurance, other.
expiry_date: the end, termination or expiration date as YYYY-MM-DD. If only a duration is given,
compute the approximate end date from today. Use null when no date can be determined.

Return a JSON object with keys category and expiry_date.
No markdown, no extra keys.

CONTRACT TEXT:
` + text
}

func clausesJSON(clauses []domain.Clause) string {
	type promptClause struct {
		ClauseID       int    `json:"clause_id"`
		SimplifiedText string `json:"simplified_text"`
	}
	items := make([]promptClause, 0, len(clauses))
	for _, clause := range clauses {
		items = append(items, promptClause{ClauseID: clause.Index, SimplifiedText: clause.SimplifiedText})
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(raw)
}

const chatClauseExcerptRunes = 500

func buildChatPrompt(contract *domain.ContractDetail, message string, history []domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString(`You are an expert legal assistant helping a user understand their contract.
You have access to the contract's clauses, simplified explanations, and identified risks.

Be helpful, clear, and concise. When referring to specific clauses, mention the clause number.
If the user asks about something not in the contract, let them know.
Always provide actionable advice when relevant.

CONTRACT INFORMATION:
`)
	b.WriteString(chatContractContext(contract))
	b.WriteString("\n\nCONVERSATION HISTORY:\n")
	b.WriteString(chatHistory(history))
	b.WriteString("\n\nUSER'S CURRENT QUESTION:\n")
	b.WriteString(message)
	b.WriteString("\n\nPlease provide a helpful response:")
	return b.String()
}

func chatContractContext(contract *domain.ContractDetail) string {
	var b strings.Builder
	b.WriteString("CLAUSES:\n")
	for _, clause := range contract.Clauses {
		fmt.Fprintf(&b, "\nClause %d:\n- Original: %s\n- Simplified: %s\n",
			clause.Index, excerpt(clause.OriginalText, chatClauseExcerptRunes), clause.SimplifiedText)
	}
	if len(contract.Risks) > 0 {
		b.WriteString("\nIDENTIFIED RISKS:\n")
		for _, risk := range contract.Risks {
			fmt.Fprintf(&b, "\n- Clause %d (%s - %s):\n  %s\n  Recommendation: %s\n",
				risk.ClauseIndex, strings.ToUpper(string(risk.Severity)), risk.Type, risk.Description, risk.Recommendation)
		}
	}
	if summary := strings.TrimSpace(contract.Contract.RiskSummary); summary != "" {
		b.WriteString("\nOVERALL RISK SUMMARY:\n")
		b.WriteString(summary)
	}
	return b.String()
}

func chatHistory(history []domain.ChatMessage) string {
	if len(history) == 0 {
		return "No previous conversation."
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "Assistant"
		if msg.Role == domain.ChatRoleUser {
			role = "User"
		}
		lines = append(lines, role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
