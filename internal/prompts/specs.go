package prompts

import (
	"fmt"
	"strings"

	"github.com/JaimeStill/vigil/internal/concerns"
)

var classifySpec = fmt.Sprintf(`Respond with a JSON object matching this exact structure:

{
  "category": "<category>",
  "confidence": <0-100>,
  "secondaryCategories": [
    {"category": "<category>", "confidence": <0-100>}
  ]
}

Field constraints:
- category: exactly one of %s.
- confidence: integer from 0 to 100.
- secondaryCategories: other categories from the same list that also apply,
  excluding the primary category. Empty array when none apply.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Describe only what is visible in the screenshot`, quoteList(concerns.BasicCategories))

var concernsSpec = fmt.Sprintf(`Respond with a JSON object matching this exact structure:

{
  "concerns": [
    {
      "category": "<category>",
      "severity": "<low|medium|high>",
      "confidence": <0-100>,
      "reasoning": "<explanation>"
    }
  ]
}

Field constraints:
- category: exactly one of %s.
- severity: low, medium or high.
- confidence: integer from 0 to 100.
- reasoning: one or two sentences citing the visible evidence.
- concerns: empty array when nothing of concern is visible.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Report each category at most once`, quoteList(concerns.ConcernCategories))

var specs = map[Stage]string{
	StageClassify: classifySpec,
	StageConcerns: concernsSpec,
}

// Spec returns the fixed response specification for a stage.
// Specifications are not overridable because the response decoder depends on them.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
