// Package prompts builds the exact prompt text for each relay operation. Every builder is pure.
package prompts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

// SystemMessage sets the assistant's role for every call.
const SystemMessage = "You are a professional translator. Follow instructions exactly and output only the requested content."

// Translate asks for a tone-preserving translation of text, applying glossary substitutions if any.
func Translate(text, targetLang string, glossary []models.GlossaryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translate the following text into %s, preserving tone and style.\n", targetLang)
	sb.WriteString("Output only the translated text, with no explanations or commentary.\n")
	if block := glossaryBlock(glossary); block != "" {
		sb.WriteString("\n")
		sb.WriteString(block)
	}
	sb.WriteString("\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	return sb.String()
}

func glossaryBlock(glossary []models.GlossaryEntry) string {
	var lines []string
	for _, e := range glossary {
		term, replacement := strings.TrimSpace(e.Term), strings.TrimSpace(e.Replacement)
		if term == "" || replacement == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %q -> %q", term, replacement))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Apply this glossary exactly. Wherever a source term appears, use its replacement verbatim in the translation:\n" +
		strings.Join(lines, "\n") + "\n"
}

type webpageInput struct {
	IDs   []int64  `json:"ids"`
	Texts []string `json:"texts"`
}

// TranslateWebpage asks for a JSON object {"ids": [...], "outputs": [...]} translating every
// element of texts in order. The input JSON and the literal ids are embedded in the prompt.
func TranslateWebpage(ids []int64, texts []string, targetLang string) string {
	input, _ := json.MarshalIndent(webpageInput{IDs: nonNil(ids), Texts: nonNilStrings(texts)}, "", "  ")

	idList := make([]string, len(ids))
	for i, id := range ids {
		idList[i] = strconv.FormatInt(id, 10)
	}

	var sb strings.Builder
	sb.WriteString("You will receive exactly this JSON as input (do not change it):\n\n")
	sb.Write(input)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Translate each element of \"texts\" into %s, preserving tone and style.\n", targetLang)
	sb.WriteString("Then respond only with a JSON object in this exact shape (no code fences, no comments, no extra keys, no explanation):\n\n")
	sb.WriteString("{\n")
	fmt.Fprintf(&sb, "  \"ids\": [%s],\n", strings.Join(idList, ","))
	sb.WriteString("  \"outputs\": [\n")
	fmt.Fprintf(&sb, "    /* exactly %d translated strings in the same order */\n", len(texts))
	sb.WriteString("  ]\n}\n")
	return sb.String()
}

// ExplainPhrase asks for a learner-oriented explanation of text written in lang.
func ExplainPhrase(text, lang string) string {
	return fmt.Sprintf(`Explain the meaning and usage of the following phrase for a language learner:
- Give a simple definition
- Provide one usage note if needed
- Give one or two example sentences
Output only the explanation in %s, no extra formatting.

%s
`, lang, text)
}

// EnhanceText asks for a grammar and fluency rewrite of text.
func EnhanceText(text string) string {
	return fmt.Sprintf(`Improve the following text by correcting grammar, refining word choice, and enhancing clarity and fluency.
Return only the improved version, without explanations or formatting.

%s
`, text)
}

// SummarizeWebpage asks for a summary of page text in lang.
func SummarizeWebpage(text, lang string) string {
	return fmt.Sprintf(`Summarize the main content of the following webpage in %s.
Focus on the article or post and key replies; ignore HTML, ads, navigation, and unrelated content.
Output a clear, concise summary without extra formatting.

%s
`, lang, text)
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
