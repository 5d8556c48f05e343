package compress

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const promptTemplate = `You are a context compression assistant. Given the following conversation transcript, extract and compress it into a structured handoff format that another LLM can use to seamlessly continue the conversation.

<conversation>
%s
</conversation>

Output the following structure in markdown. Be concise but preserve critical information. Omit sections if not applicable.

## CONTEXT HANDOFF
Generated: %s

### PROJECT
[1-2 sentences: core topic/goal of this conversation]

### USER PROFILE
- Communication style: [observed preferences - brief/detailed, technical level, tone]
- Explicit instructions: [any direct requests about how to respond]

### KEY DECISIONS
[Bullet list of conclusions reached, choices made, things agreed upon]

### CURRENT STATE
[What was actively being worked on when conversation paused. Be specific.]

### NEXT STEPS
[What should happen next based on conversation flow]

### OPEN QUESTIONS
[Unresolved items, pending decisions, things user seemed uncertain about]

### CRITICAL CONTEXT
[Facts, constraints, or details that would be lost without explicit capture - project names, technical specs, deadlines, preferences expressed, etc.]

---
Compress now. Prioritize information density over completeness.`

func compressionPrompt(transcript string, now time.Time) string {
	return fmt.Sprintf(promptTemplate, transcript, now.UTC().Format(time.RFC3339))
}

const defaultTitle = "Context handoff"

var reProjectSection = regexp.MustCompile(`(?s)### PROJECT\s*\n(.*?)(?:\n###|\z)`)

// ExtractTitle pulls a short title out of the PROJECT section of a
// compressed handoff, truncating long ones.  Handoffs without the section
// get the default title.
func ExtractTitle(markdown string) string {
	m := reProjectSection.FindStringSubmatch(markdown)
	if m == nil {
		return defaultTitle
	}
	title := strings.TrimSpace(m[1])
	title = strings.TrimSuffix(strings.TrimPrefix(title, "["), "]")
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultTitle
	}
	// truncate on a rune boundary, titles can contain multi-byte characters.
	if r := []rune(title); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return title
}
