package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlogUserPrompt(t *testing.T) {
	got := BlogUserPrompt(BlogInput{
		TargetURL:         "https://acme.test/tools",
		PrimaryKeyword:    "garden tools",
		SecondaryKeywords: []string{"pruning shears", "trowel"},
		SiteURL:           "https://gardenblog.test",
		SiteIndustry:      "gardening",
		RecentTitles:      []string{"10 Tools Every Gardener Needs"},
		WordBudget:        600,
	})

	assert.Contains(t, got, "https://gardenblog.test (a gardening site)")
	assert.Contains(t, got, "Anchor / primary keyword: garden tools")
	assert.Contains(t, got, "pruning shears, trowel")
	assert.Contains(t, got, "- 10 Tools Every Gardener Needs")
	assert.Contains(t, got, "about 600 words")
}

func TestBlogUserPromptOmitsEmptySections(t *testing.T) {
	got := BlogUserPrompt(BlogInput{TargetURL: "https://x.test", PrimaryKeyword: "x", SiteURL: "https://y.test"})
	assert.NotContains(t, got, "Secondary keywords")
	assert.NotContains(t, got, "already published")
}

func TestBlogSchemaRequiresAllFields(t *testing.T) {
	s := BlogSchema()
	assert.ElementsMatch(t, []string{"meta_title", "meta_description", "title", "body"}, s["required"])
}
