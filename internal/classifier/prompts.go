package classifier

import (
	"fmt"
	"strings"
)

// buildL1Prompt asks for exactly one coarse topic from the closed L1
// enumeration, with a confidence score.
func (c *Classifier) buildL1Prompt(text string) string {
	return fmt.Sprintf(`CRITICAL: You MUST output ONLY valid JSON. No text before or after the JSON object, no markdown code fences.

You are classifying a social-media post into a topic taxonomy.

Choose exactly ONE category from this closed list:
%s

Post text:
---
%s
---

Output Format: Your response MUST be ONLY this exact JSON structure:
{
  "level1": "one category from the list above, verbatim",
  "confidence": 0.0
}

"confidence" is your confidence in the choice, a number between 0.0 and 1.0. Do not invent categories outside the list.`,
		bulletList(c.taxonomy.Level1), text)
}

// buildL2Prompt asks for fine topics scoped to the chosen L1 category.
func (c *Classifier) buildL2Prompt(level1, text string) string {
	return fmt.Sprintf(`CRITICAL: You MUST output ONLY valid JSON. No text before or after the JSON object, no markdown code fences.

A social-media post has been classified under the coarse category %q.
Now choose the fine-grained topic(s) that apply, from this closed list only:
%s

Post text:
---
%s
---

Output Format: Your response MUST be ONLY this exact JSON structure:
{
  "level2": ["one or more topics from the list above, verbatim"],
  "confidence": 0.0
}

"confidence" is your confidence in the selection, a number between 0.0 and 1.0. Do not invent topics outside the list.`,
		level1, bulletList(c.taxonomy.Level2For(level1)), text)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return strings.TrimRight(b.String(), "\n")
}
