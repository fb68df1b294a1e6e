package openai

import (
	"fmt"
	"strings"

	"appgen-backend/internal/provider"
)

const conceptSystemPrompt = `You are a senior mobile product designer. Given a short app description,
produce an app concept as a single JSON object with keys:
"name" (short app name), "tagline" (one sentence), "description" (2-3 sentences),
"visualStyle" (one sentence describing the visual language), and
"colorHints" (array of 2-4 color names or hex values).
Return only JSON.`

const structureSystemPrompt = `You are a senior mobile product designer. Given an app concept and a target
screen count, plan the app's screens as a single JSON object with keys:
"units" (array of {"name","prompt"} objects, ordered by importance, the first
screen being the app's primary screen) and "sharedLayoutNotes" (one short
paragraph of layout conventions every screen must follow).
Each unit prompt must fully describe the screen for an image generation model.
Return only JSON.`

func buildConceptPrompt(description string, hints []string) []chatMessage {
	user := "App description:\n" + strings.TrimSpace(description)
	if len(hints) > 0 {
		user += "\n\nDesign hints:\n- " + strings.Join(hints, "\n- ")
	}
	return []chatMessage{
		{Role: "system", Content: conceptSystemPrompt},
		{Role: "user", Content: user},
	}
}

func buildStructurePrompt(concept provider.ConceptDescriptor, targetCount int) []chatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "App: %s - %s\n", concept.Name, concept.Tagline)
	fmt.Fprintf(&b, "Description: %s\n", concept.Description)
	fmt.Fprintf(&b, "Visual style: %s\n", concept.VisualStyle)
	if len(concept.ColorHints) > 0 {
		fmt.Fprintf(&b, "Colors: %s\n", strings.Join(concept.ColorHints, ", "))
	}
	fmt.Fprintf(&b, "\nPlan exactly %d screens.", targetCount)
	return []chatMessage{
		{Role: "system", Content: structureSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}
