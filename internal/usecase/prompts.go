package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

func captionPrompt(imageCount int) string {
	if imageCount <= 1 {
		return `Describe what is visible on this screenshot of a computer screen.
Name the application in use and summarize the content the user is looking at
(page title, video topic, document subject, game, chat, and so on).

Respond with ONLY a JSON object in this exact format:
{"desc_image1": "one or two sentence description"}`
	}

	var keys strings.Builder
	for i := 1; i <= imageCount; i++ {
		if i > 1 {
			keys.WriteString(", ")
		}
		fmt.Fprintf(&keys, `"desc_image%d": "description of screenshot %d"`, i, i)
	}

	return fmt.Sprintf(`You are given %d screenshots of a computer screen, taken a few seconds apart,
in chronological order. For each screenshot, name the application in use and
summarize the content the user is looking at (page title, video topic,
document subject, game, chat, and so on). Keep each description to one or two
sentences.

Respond with ONLY a JSON object with one string value per screenshot:
{%s}`, imageCount, keys.String())
}

func verdictPrompt(descriptions []string, workTopic, additionalContext string) string {
	var history strings.Builder
	for i, desc := range descriptions {
		fmt.Fprintf(&history, "  %d. %s\n", i+1, desc)
	}

	contextSection := ""
	if strings.TrimSpace(additionalContext) != "" {
		contextSection = "\nAdditional context:\n" + additionalContext + "\n"
	}

	return fmt.Sprintf(`You are reviewing descriptions of consecutive screenshots to decide whether
the user has drifted away from their work.

The user should be working on: %s and related tasks.

Screenshot history:
%s%s
Looking things up (documentation, papers, tools, tutorials, relevant videos)
counts as work. Games, social media, chat, and entertainment unrelated to the
work topic count as distraction. False alarms are costly: only mark the user
as distracted when the evidence is clear.

Respond with ONLY a JSON object in this exact format, reasoning first:
{
    "Reasoning": "what you see and why it is or is not a distraction",
    "Distracted": true or false,
    "Confidence": a number from 0 to 100
}`, workTopic, history.String(), contextSection)
}

func reparsePrompt(raw string) string {
	return fmt.Sprintf(`The text below was meant to be a JSON object but could not be parsed.
Rewrite it as valid JSON.

Text:
%s

Use exactly this structure:
{
    "Reasoning": "the reasoning from the text",
    "Distracted": true or false,
    "Confidence": a number from 0 to 100
}

Return ONLY the JSON object.`, raw)
}

func titlePrompt(title, objectives, additionalContext string) string {
	contextLine := ""
	if strings.TrimSpace(additionalContext) != "" {
		contextLine = "\nContext: " + additionalContext
	}
	return fmt.Sprintf(`A user is supposed to be working on: %s
Their active window title is: "%s"%s

Is this window a distraction from that work? Answer with exactly one word:
Distracted or Normal.`, objectives, title, contextLine)
}

func profileClassificationPrompt(responses map[string]string, chunk []domain.CatalogEntry) string {
	questions := make([]string, 0, len(responses))
	for q := range responses {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	var profile strings.Builder
	for _, q := range questions {
		fmt.Fprintf(&profile, "- %s: %s\n", q, responses[q])
	}

	var apps strings.Builder
	for _, e := range chunk {
		fmt.Fprintf(&apps, "%s (%s, %s)\n", e.Exe, e.Product, e.Category)
	}

	return fmt.Sprintf(`Classify applications for a focus tracker based on how this user works.

About the user:
%s
Applications:
%s
For each application, decide whether for THIS user it is:
- Work: used only for their work
- Entertainment: never needed for their work
- Mixed: could be either, depending on what is on screen

Respond with one line per application and nothing else, in the form:
name.exe: Work|Mixed|Entertainment`, profile.String(), apps.String())
}
