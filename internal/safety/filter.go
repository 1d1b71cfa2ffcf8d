package safety

import (
	"regexp"
	"strings"
)

// Level classifies a candidate outgoing message.
type Level string

const (
	LevelSafe     Level = "safe"
	LevelDistress Level = "distress"
	LevelCrisis   Level = "crisis"
)

// Result of classifying one message.
type Result struct {
	Safe         bool   `json:"safe"`
	Level        Level  `json:"level"`
	Intervention string `json:"intervention,omitempty"`
}

// Crisis phrases trigger a hard block.
var crisisPatterns = compile([]string{
	`\bsuicide\b`,
	`\bkill myself\b`,
	`\bend my life\b`,
	`\bwant to die\b`,
	`\bself[- ]?harm\b`,
	`\bhurt myself\b`,
	`\bno reason to live\b`,
	`\bending it all\b`,
	`\btake my own life\b`,
	`\bcut myself\b`,
	`\bkill themselves\b`,
	`\bsuicidal\b`,
})

// Distress phrases get a soft warning; the message still goes through.
var distressPatterns = compile([]string{
	`\bhopeless\b`,
	`\bworthless\b`,
	`\bcan't go on\b`,
	`\bwant to disappear\b`,
	`\bno point\b`,
	`\bgive up\b`,
})

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Filter detects crisis and distress signals in user messages before they
// are sent to the model.
type Filter struct{}

func NewFilter() *Filter {
	return &Filter{}
}

// Classify checks a message and returns the matched safety tier.
func (f *Filter) Classify(text string) Result {
	lower := strings.ToLower(text)

	for _, re := range crisisPatterns {
		if re.MatchString(lower) {
			return Result{
				Safe:         false,
				Level:        LevelCrisis,
				Intervention: CrisisIntervention,
			}
		}
	}

	for _, re := range distressPatterns {
		if re.MatchString(lower) {
			return Result{
				Safe:         true,
				Level:        LevelDistress,
				Intervention: DistressMessage,
			}
		}
	}

	return Result{Safe: true, Level: LevelSafe}
}

// AugmentResponse appends support resources to a finished reply when the
// triggering message was distress-level.
func (f *Filter) AugmentResponse(response string, r Result) string {
	if r.Level == LevelDistress {
		return response + "\n\n" + SupportResources
	}
	return response
}

// CrisisIntervention is shown in the blocking modal when a message is
// refused outright.
const CrisisIntervention = `I'm concerned about what you've shared. Your wellbeing matters.

If you're having thoughts of hurting yourself, please reach out:

• National Suicide Prevention Lifeline: 988 (call or text)
• Crisis Text Line: Text HOME to 741741
• International Association for Suicide Prevention: https://www.iasp.info/resources/Crisis_Centres/

You don't have to face this alone. A trained counselor is available 24/7.`

// DistressMessage is shown as a dismissible banner alongside the sent message.
const DistressMessage = "I hear that you're going through a difficult time. Your feelings are valid."

// SupportResources is appended to replies to distress-level messages.
const SupportResources = `---
If you'd like to talk to someone, support is available:
• 988 Suicide & Crisis Lifeline (call or text 988)
• Crisis Text Line (text HOME to 741741)`
