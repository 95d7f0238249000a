package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Blog Generation Prompts
// ============================================================================

// BlogSystemPrompt defines the writer persona and the hard rules for every placement.
const BlogSystemPrompt = `You are an experienced content writer producing guest posts for partner websites.
Each post must read as an independent, useful article for the host site's audience and
contain exactly one natural, contextual link to the client's page.

Rules:
- Write in plain, confident English. No filler intros, no "In today's fast-paced world".
- Use the primary keyword as the link anchor text, once, inside the body.
- Work the secondary keywords in where they fit; never stuff them.
- The body is HTML using only <h2>, <h3>, <p>, <ul>, <li>, <strong>, <em> and <a>.
- Do not mention that the post is sponsored, generated or part of a link building campaign.
- meta_title stays under 60 characters, meta_description under 160.`

// BlogInput carries the per-placement facts the user prompt is built from.
type BlogInput struct {
	TargetURL         string
	PrimaryKeyword    string
	SecondaryKeywords []string
	Industry          string
	SiteURL           string
	SiteIndustry      string
	// RecentTitles are titles already published on the same site; the new post must not repeat them.
	RecentTitles []string
	// WordBudget is the approximate article length.
	WordBudget int
}

// BlogUserPrompt renders the user message for one placement.
func BlogUserPrompt(in BlogInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a guest post for %s", in.SiteURL)
	if in.SiteIndustry != "" {
		fmt.Fprintf(&b, " (a %s site)", in.SiteIndustry)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "Link target: %s\n", in.TargetURL)
	fmt.Fprintf(&b, "Anchor / primary keyword: %s\n", in.PrimaryKeyword)
	if len(in.SecondaryKeywords) > 0 {
		fmt.Fprintf(&b, "Secondary keywords: %s\n", strings.Join(in.SecondaryKeywords, ", "))
	}
	if in.Industry != "" {
		fmt.Fprintf(&b, "Client industry: %s\n", in.Industry)
	}
	if in.WordBudget > 0 {
		fmt.Fprintf(&b, "Length: about %d words.\n", in.WordBudget)
	}

	if len(in.RecentTitles) > 0 {
		b.WriteString("\nThis site already published the following posts. Pick a clearly different angle and title:\n")
		for _, t := range in.RecentTitles {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}

	b.WriteString("\nReturn the article as JSON with meta_title, meta_description, title and body.")
	return b.String()
}

// BlogSchemaName names the structured output contract.
const BlogSchemaName = "guest_post"

// BlogSchema is the JSON schema the provider must answer with.
func BlogSchema() map[string]interface{} {
	str := map[string]interface{}{"type": "string"}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"meta_title":       str,
			"meta_description": str,
			"title":            str,
			"body":             str,
		},
		"required":             []string{"meta_title", "meta_description", "title", "body"},
		"additionalProperties": false,
	}
}
