package prompts

import (
	"fmt"
	"strings"
)

// BuildEntityExtractionPrompt asks for the question's entities as a single
// JSON object with fixed keys.
func BuildEntityExtractionPrompt(question string) string {
	var prompt strings.Builder

	prompt.WriteString("Extract entities from this UCLA women's basketball statistics query.\n")
	prompt.WriteString("Return a JSON object with these fields:\n")
	prompt.WriteString("- player_names: Array of player names mentioned (can be multiple players)\n")
	prompt.WriteString("- player_number: Jersey number mentioned (if any)\n")
	prompt.WriteString("- opponent: Opponent team mentioned (if any)\n")
	prompt.WriteString("- statistic: Specific statistic mentioned (points, rebounds, assists, etc.)\n")
	prompt.WriteString("- comparison: Any comparison operator (>, <, >=, <=, =)\n")
	prompt.WriteString("- value: Any numeric value mentioned for comparison\n")
	prompt.WriteString("- exclude_totals: true if the query asks to exclude team totals or only individual players\n")
	prompt.WriteString("- is_comparison_query: true if the query compares multiple players\n\n")
	prompt.WriteString("Use null for fields that are not mentioned.\n\n")

	prompt.WriteString(fmt.Sprintf("Query: %s\n\n", question))
	prompt.WriteString("JSON output:\n")

	return prompt.String()
}
