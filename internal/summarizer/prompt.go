package summarizer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed default_prompt.txt
var defaultPrompt string

// DefaultPrompt returns the built-in summary prompt.
func DefaultPrompt() string {
	return defaultPrompt
}

// LoadPrompt picks the summary prompt: an inline prompt wins over a prompt
// file, which wins over the built-in default.
func LoadPrompt(inline, file string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("summarizer: read prompt file: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("summarizer: prompt file %s is empty", file)
		}
		return string(data), nil
	}
	return defaultPrompt, nil
}

const detailsPrompt = `You are analyzing a legal case document. Answer the following questions and return your response in valid JSON format.

Questions:
1. Is this a patent-related case? (true/false)
2. Which judges were on the panel? Return an array of judge last names. If it is Per Curiam, return ["Per Curiam"]. If unsigned, return ["Unsigned"].
3. Which judge authored the opinion? Return the last name of the authoring judge, or "Per Curiam" or "Unsigned" if applicable. Return null if you cannot determine.
4. Provide a 4-5 sentence summary of the case. Focus on the key facts, legal issues, and outcome.
5. What are the major holdings or rules from this case? Provide 1 to 4 (only the amount needed) concise points highlighting only the most important legal principles. Format each holding on a new line like: "1. [holding]\n2. [holding]"

Return ONLY valid JSON in this exact format (no additional text):
{
  "is_patent_case": true,
  "panel_judges": ["Judge1", "Judge2", "Judge3"],
  "author_judge": "Judge1",
  "case_summary": "4-5 sentence summary here",
  "major_holdings": "1. [holding]\n2. [holding]"
}`
