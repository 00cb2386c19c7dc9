package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hoanghai1803/paperfeed/internal/models"
)

// unparseableReason is recorded when a classifier answer carries no usable
// JSON object.
const unparseableReason = "Unparseable model output"

// RankingPrompt fills the ranking template placeholders and appends the
// batch text under a "Papers:" heading. Unknown placeholders are left as-is.
func RankingPrompt(template string, num int, researchFocus, thinkTime, batchText string) string {
	r := strings.NewReplacer(
		"{num}", strconv.Itoa(num),
		"{research_focus}", researchFocus,
		"{think_time}", thinkTime,
	)
	return r.Replace(template) + "\n\nPapers:\n" + batchText
}

// ClassificationPrompt builds the prompt asking for a JSON relevance verdict
// on a single paper.
func ClassificationPrompt(instructions string, paper models.Paper) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Title: %s\n", paper.Title)
	fmt.Fprintf(&b, "Abstract: %s\n\n", paper.Abstract)
	b.WriteString("JSON:")
	return b.String()
}

// extractJSON strips markdown code fences from a string that may contain
// JSON wrapped in ```json ... ``` or ``` ... ``` blocks. This handles the
// common case where LLMs return JSON inside code fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Try ```json ... ``` first.
	if after, found := strings.CutPrefix(s, "```json"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	// Try plain ``` ... ```.
	if after, found := strings.CutPrefix(s, "```"); found {
		if idx := strings.LastIndex(after, "```"); idx >= 0 {
			after = after[:idx]
		}
		return strings.TrimSpace(after)
	}

	return s
}

// extractObject returns the text between the first '{' and the last '}', or
// s unchanged when there is no such span.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// classifierAnswer accepts the relevance flag under either key; older
// prompts asked for is_interpretability.
type classifierAnswer struct {
	Reason             string `json:"reason"`
	IsRelevant         *bool  `json:"is_relevant"`
	IsInterpretability *bool  `json:"is_interpretability"`
}

// parseClassification turns a raw classifier answer into a Classification.
// On failure it returns the conservative not-relevant verdict together with
// an ErrMalformedResponse error.
func parseClassification(raw string) (models.Classification, error) {
	text := extractObject(extractJSON(raw))

	var ans classifierAnswer
	if err := json.Unmarshal([]byte(text), &ans); err != nil {
		return models.Classification{Relevant: false, Reason: unparseableReason},
			fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	c := models.Classification{Reason: ans.Reason}
	switch {
	case ans.IsRelevant != nil:
		c.Relevant = *ans.IsRelevant
	case ans.IsInterpretability != nil:
		c.Relevant = *ans.IsInterpretability
	}
	return c, nil
}
