package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/crawlforge/harvester/internal/labelmap"
	"github.com/crawlforge/harvester/pkg/log"
)

// ExtractLabels strips the leading "/" from rawURLPath, finds every rule in
// lm whose path_match_re matches, and applies each rule's selectors to doc.
// Later-matching rules overwrite earlier ones for the same label name, per
// SPEC_FULL.md §4.4.
func ExtractLabels(doc *goquery.Document, lm *labelmap.LabelMap, rawURLPath string) map[string]any {
	path := strings.TrimPrefix(rawURLPath, "/")

	out := make(map[string]any)
	for _, rule := range lm.MatchingRules(path) {
		for name, value := range applyRule(doc, rule) {
			out[name] = value
		}
	}
	return out
}

func applyRule(doc *goquery.Document, rule *labelmap.Rule) map[string]any {
	out := make(map[string]any)
	for _, sel := range rule.Labels {
		matcher, err := cascadia.Compile(sel.CSS)
		if err != nil {
			log.Warnf("extractor: selector %q for label %q is invalid: %v", sel.CSS, sel.Name, err)
			continue
		}
		selection := doc.FindMatcher(matcher)

		if sel.List {
			var texts []string
			selection.Each(func(i int, s *goquery.Selection) {
				texts = append(texts, s.Text())
			})
			out[sel.Name] = texts
			continue
		}

		if selection.Length() == 0 {
			log.Warnf("extractor: selector %q for label %q matched nothing", sel.CSS, sel.Name)
			continue
		}
		out[sel.Name] = selection.First().Text()
	}
	return out
}
