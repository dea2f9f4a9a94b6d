package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildResponseSynthesisPrompt asks for a plain-language answer grounded in
// the returned rows. Callers cap rows before rendering.
func BuildResponseSynthesisPrompt(question, sqlQuery string, rows []map[string]any) string {
	var prompt strings.Builder

	prompt.WriteString("Based on the following UCLA women's basketball statistics, provide a clear and informative answer to the user's question.\n\n")
	prompt.WriteString(fmt.Sprintf("User question: %s\n\n", question))
	prompt.WriteString(fmt.Sprintf("SQL query used: %s\n\n", sqlQuery))
	prompt.WriteString(fmt.Sprintf("Query results (%d rows):\n%s\n\n", len(rows), FormatRows(rows)))

	prompt.WriteString("Instructions:\n")
	prompt.WriteString("- Provide a direct answer to the user's question\n")
	prompt.WriteString("- Include specific numbers and statistics from the data\n")
	prompt.WriteString("- Format the response in a clear, readable way\n")
	prompt.WriteString("- If comparing players, present the comparison clearly\n")
	prompt.WriteString("- Keep the response concise but informative\n")
	prompt.WriteString("- Don't mention the SQL query or technical details\n")

	return prompt.String()
}

// FormatRows renders rows as indented JSON. Maps are emitted with sorted
// keys, so the output is stable.
func FormatRows(rows []map[string]any) string {
	if len(rows) == 0 {
		return "[]"
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(data)
}
