package content

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func para(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("<p>This paragraph carries enough prose to count as real article content for tests. </p>")
	}
	return sb.String()
}

func TestExtractText_PrefersArticleTag(t *testing.T) {
	html := fmt.Sprintf(`<html><body>
		<div id="sidebar">%s</div>
		<article><h1>The Real Story</h1>%s</article>
	</body></html>`, para(5), para(5))

	e := &Extractor{}
	text, err := e.ExtractText(html)
	require.NoError(t, err)

	assert.Contains(t, text, "# The Real Story")
	assert.NotContains(t, text, "sidebar")
}

func TestExtractText_StripsScriptsAndNoise(t *testing.T) {
	html := fmt.Sprintf(`<html><body><article>
		<script>var x = "should not appear";</script>
		<nav>Home About Contact</nav>
		<div class="cookie-banner">Accept all cookies please</div>
		%s
	</article></body></html>`, para(5))

	e := &Extractor{}
	text, err := e.ExtractText(html)
	require.NoError(t, err)

	assert.NotContains(t, text, "should not appear")
	assert.NotContains(t, text, "Accept all cookies")
}

func TestExtractText_DensestDivFallback(t *testing.T) {
	html := fmt.Sprintf(`<html><body>
		<div><p>tiny</p></div>
		<div id="main-col">%s</div>
	</body></html>`, para(8))

	e := &Extractor{}
	text, err := e.ExtractText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "real article content")
}

func TestExtractText_PrecisionModeRefusesHeuristics(t *testing.T) {
	// Plenty of text, but no explicitly marked container.
	html := fmt.Sprintf(`<html><body><div>%s</div></body></html>`, para(10))

	e := &Extractor{FavorPrecision: true}
	_, err := e.ExtractText(html)
	require.Error(t, err)

	// The standard path accepts the same document.
	text, err := (&Extractor{}).ExtractText(html)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestExtractText_RendersBlockStructure(t *testing.T) {
	html := fmt.Sprintf(`<html><body><article>
		<h2>Section</h2>
		<p>Opening paragraph with a <a href="https://example.com">link text</a> inside.</p>
		<ul><li>first point</li><li>second point</li></ul>
		<blockquote>quoted wisdom</blockquote>
		%s
	</article></body></html>`, para(4))

	text, err := (&Extractor{}).ExtractText(html)
	require.NoError(t, err)

	assert.Contains(t, text, "## Section")
	assert.Contains(t, text, "* first point")
	assert.Contains(t, text, "> quoted wisdom")
	// Link text survives, the href does not.
	assert.Contains(t, text, "link text")
	assert.NotContains(t, text, "https://example.com")
}

func TestExtractText_EmptyDocument(t *testing.T) {
	_, err := (&Extractor{}).ExtractText("")
	assert.Error(t, err)

	_, err = (&Extractor{}).ExtractText("<html><body></body></html>")
	assert.Error(t, err)
}

func TestCleanText_DropsShortLineClusters(t *testing.T) {
	text := strings.Join([]string{
		"This opening sentence is long enough to be kept as real content.",
		"",
		"Home",
		"About",
		"Contact",
		"Privacy",
		"",
		"Another full sentence of genuine article prose that must survive.",
	}, "\n")

	cleaned := CleanText(text)
	assert.Contains(t, cleaned, "opening sentence")
	assert.Contains(t, cleaned, "genuine article prose")
	assert.NotContains(t, cleaned, "Home")
	assert.NotContains(t, cleaned, "Privacy")
}

func TestCleanText_KeepsHeadingsAndSingles(t *testing.T) {
	text := strings.Join([]string{
		"# Short head",
		"",
		"A proper paragraph that definitely exceeds the short line threshold.",
		"",
		"Fin.",
	}, "\n")

	cleaned := CleanText(text)
	assert.Contains(t, cleaned, "# Short head")
	assert.Contains(t, cleaned, "Fin.")
}

func TestCleanText_DropsSeparatorsAndCopyright(t *testing.T) {
	text := strings.Join([]string{
		"Real content line that is comfortably longer than the threshold.",
		"--------",
		"© 2026 Some Publisher. All rights reserved, which is a long line.",
		"More real content that also clears the minimum length comfortably.",
	}, "\n")

	cleaned := CleanText(text)
	assert.NotContains(t, cleaned, "--------")
	assert.NotContains(t, cleaned, "© 2026")
	assert.Contains(t, cleaned, "More real content")
}

func TestSummarize(t *testing.T) {
	text := "# Heading\n\nFirst [linked](https://example.com) paragraph with *emphasis*.\n\nSecond paragraph."
	summary := Summarize(text, 500)

	assert.Contains(t, summary, "linked paragraph with emphasis")
	assert.NotContains(t, summary, "https://example.com")
	assert.NotContains(t, summary, "*")
	assert.NotContains(t, summary, "#")
}

func TestSummarize_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("word ", 500)
	summary := Summarize(long, 100)

	assert.LessOrEqual(t, len(summary), 103)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestSummarize_TruncatesOnRuneBoundary(t *testing.T) {
	summary := Summarize(strings.Repeat("界", 200), 100)

	assert.True(t, utf8.ValidString(summary))
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, "", Summarize("   \n  ", 100))
}
