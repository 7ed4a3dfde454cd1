package generate

import (
	"fmt"
	"strings"

	"github.com/feedforge/harvester/internal/harvest"
)

const (
	postMarker  = "[POST]"
	imageMarker = "[IMAGE]"
)

const trendTemplate = `Act as a World-Class Ghostwriter & Visual Director for a professional social feed.

CONTEXT (Viral Post Examples):
%s

TASK:
1. Write a viral post based on the instruction below.
2. Write a PROMPT for an AI Image Generator to create a stunning visual for this post.

TOPIC INSTRUCTION: %s
TONE: %s

--- IMAGE RULES ---
The image prompt must be HIGHLY DETAILED and ARTISTIC.
Include these style keywords in the image prompt: "Cinematic lighting, 8k resolution, photorealistic, shallow depth of field, vibrant colors, professional photography, trending on ArtStation."
Avoid generic descriptions. Make it visual and scroll-stopping.

--- OUTPUT FORMAT ---
[POST]
(Write the text here...)
[IMAGE]
(Write the detailed image prompt here...)`

const remixTemplate = `Act as a Viral Content Creator & Art Director.

I am providing an ORIGINAL IMAGE (visual input) and ORIGINAL CAPTION.

TASK: Remix this content for a NEW TOPIC: %q.

STEP 1: TEXT REMIX
Analyze the hook, sentence length, and psychological triggers of the ORIGINAL CAPTION.
Rewrite it completely for the %q using the same viral structure.
Tone: %s.

STEP 2: VISUAL REMIX
Analyze the uploaded IMAGE (composition, lighting, subject).
Create a NEW IMAGE PROMPT that keeps the same "Vibe" and "Composition" but changes the subject to fit the %q.

IMPORTANT: Make the new image prompt "High-End". Add keywords like: "Hyper-realistic, Studio Lighting, 4k, Sharp Focus, Modern Aesthetic."

ORIGINAL CAPTION: %q

--- OUTPUT FORMAT ---
[POST]
(Write the new post here...)
[IMAGE]
(Write the detailed high-quality image prompt here...)`

func trendPrompt(context []harvest.Post, topic, tone string) string {
	var sb strings.Builder
	if len(context) == 0 {
		sb.WriteString("(no harvested examples available)")
	}
	for i, p := range context {
		fmt.Fprintf(&sb, "Example %d (%d likes): %s\n", i+1, p.Likes, p.Content)
	}
	if topic == "" {
		topic = "Write about a theme the examples have in common."
	}
	if tone == "" {
		tone = "Professional"
	}
	return fmt.Sprintf(trendTemplate, strings.TrimRight(sb.String(), "\n"), topic, tone)
}

func remixPrompt(caption, topic, tone string) string {
	if tone == "" {
		tone = "Professional"
	}
	return fmt.Sprintf(remixTemplate, topic, topic, tone, topic, caption)
}

// splitSections separates a raw completion into its post text and image
// prompt. Output missing an [IMAGE] marker keeps everything as content.
func splitSections(raw string) harvest.GenerationResult {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, postMarker)

	var result harvest.GenerationResult
	if idx := strings.Index(text, imageMarker); idx >= 0 {
		result.Content = strings.TrimSpace(text[:idx])
		result.ImagePrompt = strings.TrimSpace(text[idx+len(imageMarker):])
	} else {
		result.Content = strings.TrimSpace(text)
	}
	return result
}
