package generate

import (
	"context"
	"fmt"
	"strings"
)

// Static is an offline generator used when no API key is configured. It
// produces deterministic placeholder output in the expected two-section
// format so the rest of the pipeline can be exercised.
type Static struct{}

// NewStatic returns the offline generator.
func NewStatic() *Static {
	return &Static{}
}

// Generate echoes a canned post derived from the prompt.
func (s *Static) Generate(_ context.Context, prompt string, _ []byte) (string, error) {
	topic := "your topic"
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "TOPIC INSTRUCTION: "); ok {
			rest = strings.TrimSpace(rest)
			if rest != "" {
				topic = rest
			}
			break
		}
	}
	return fmt.Sprintf(`[POST]
Here is a placeholder take on %s. Configure a generator API key for real output.
[IMAGE]
A minimalist illustration representing %s, soft studio lighting.`, topic, topic), nil
}
