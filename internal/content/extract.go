package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Tags that never carry article prose.
const strippedTags = "script,style,nav,header,footer,aside,noscript,iframe,svg,canvas,form,button,input,select,option,textarea,pre,code"

// Content containers tried in priority order before heuristics kick in.
var contentSelectors = []string{
	"article", "main", ".content", "#content", ".post", ".entry", ".article", "[role=main]",
}

var (
	noiseClassPattern = regexp.MustCompile(`(?i)(nav|menu|header|footer|sidebar|banner|widget|cookie|popup|social|comment|syntax|highlight|editor|terminal|console|snippet|gist|advert)`)
	noiseIDPattern    = regexp.MustCompile(`(?i)^(ad|ads|banner|promo|sponsor|comment|reply|snippet|gist)`)
	separatorLine     = regexp.MustCompile(`^[\-\_\*\=\~\+]{3,}$`)
	copyrightLine     = regexp.MustCompile(`©\s*\d{4}`)
	blankRuns         = regexp.MustCompile(`\n{3,}`)

	mdLink     = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdImage    = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdEmphasis = regexp.MustCompile(`[*_~]{1,2}([^*_~]+)[*_~]{1,2}`)
)

const (
	minContainerChars      = 200
	precisionMinChars      = 400
	shortLineChars         = 30
	DefaultSummaryMaxChars = 500
)

// Extractor turns raw page HTML into clean readable text. The zero value is
// the standard path; FavorPrecision is the heavier selective mode used when
// extracted text feeds the classifier — it only accepts explicitly marked
// content containers and a larger minimum body, trading recall for cleaner
// input.
type Extractor struct {
	FavorPrecision bool
}

// ExtractText strips non-content markup, locates the main article container
// and renders it as markdown-flavored plain text.
func (e *Extractor) ExtractText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("empty HTML document")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find(strippedTags).Remove()
	doc.Find("div,section,ul,span").Each(func(_ int, s *goquery.Selection) {
		if class, ok := s.Attr("class"); ok && noiseClassPattern.MatchString(class) {
			s.Remove()
			return
		}
		if id, ok := s.Attr("id"); ok && noiseIDPattern.MatchString(id) {
			s.Remove()
		}
	})

	container := e.findContainer(doc)
	if container == nil {
		return "", fmt.Errorf("no content container found")
	}

	text := CleanText(renderText(container))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("document rendered to empty text")
	}
	return text, nil
}

func (e *Extractor) findContainer(doc *goquery.Document) *goquery.Selection {
	minChars := minContainerChars
	if e.FavorPrecision {
		minChars = precisionMinChars
	}

	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 && len(strings.TrimSpace(sel.Text())) >= minChars {
			return sel
		}
	}

	if e.FavorPrecision {
		// Precision mode refuses to guess: heuristic fallbacks drag in
		// navigation and boilerplate that would poison classification.
		return nil
	}

	// Densest-text div heuristic.
	var best *goquery.Selection
	bestLen := minChars
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		if l := len(strings.TrimSpace(s.Text())); l > bestLen {
			best = s
			bestLen = l
		}
	})
	if best != nil {
		return best
	}

	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return nil
}

// renderText walks block-level elements producing markdown-ish paragraphs.
// Link targets are dropped; only their text survives.
func renderText(container *goquery.Selection) string {
	var sb strings.Builder

	blocks := container.Find("h1,h2,h3,h4,h5,h6,p,li,blockquote")
	if blocks.Length() == 0 {
		return container.Text()
	}

	blocks.Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			sb.WriteString("# " + text)
		case "h2":
			sb.WriteString("## " + text)
		case "h3", "h4", "h5", "h6":
			sb.WriteString("### " + text)
		case "li":
			sb.WriteString("* " + text)
		case "blockquote":
			sb.WriteString("> " + text)
		default:
			sb.WriteString(text)
		}
		sb.WriteString("\n\n")
	})

	return sb.String()
}

// CleanText removes boilerplate that survives tag stripping: separator
// lines, copyright notices and runs of consecutive short lines, which are
// almost always navigation or footer link clusters.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")

	isShort := func(i int) bool {
		trimmed := strings.TrimSpace(lines[i])
		return len(trimmed) > 0 && len(trimmed) < shortLineChars && !strings.HasPrefix(trimmed, "#")
	}

	// Mark runs of 3+ consecutive short lines for removal as a whole; the
	// run is the unit, a lone short line can be legitimate prose.
	drop := make([]bool, len(lines))
	for i := 0; i < len(lines); {
		if !isShort(i) {
			i++
			continue
		}
		j := i
		for j < len(lines) && isShort(j) {
			j++
		}
		if j-i >= 3 {
			for k := i; k < j; k++ {
				drop[k] = true
			}
		}
		i = j
	}

	filtered := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if drop[i] || separatorLine.MatchString(trimmed) || copyrightLine.MatchString(trimmed) {
			continue
		}
		filtered = append(filtered, line)
	}

	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(filtered, "\n"), "\n\n"))
}

// Summarize joins leading paragraphs up to a soft character budget, strips
// markdown syntax and truncates with an ellipsis when still over budget.
func Summarize(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultSummaryMaxChars
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var sb strings.Builder
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// Allow some overshoot so we keep whole paragraphs, but always
		// take at least one; truncation below handles the rest.
		if sb.Len() > 0 && sb.Len()+len(p) >= maxChars*3/2 {
			break
		}
		sb.WriteString(p)
		sb.WriteString(" ")
		if sb.Len() >= maxChars*3/2 {
			break
		}
	}

	summary := sb.String()
	summary = mdImage.ReplaceAllString(summary, "$1")
	summary = mdLink.ReplaceAllString(summary, "$1")
	summary = mdEmphasis.ReplaceAllString(summary, "$1")
	summary = strings.TrimLeft(summary, "#> ")
	summary = strings.Join(strings.Fields(summary), " ")

	if len(summary) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		return summary[:cut] + "..."
	}
	return summary
}
