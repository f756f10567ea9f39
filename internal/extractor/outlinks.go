package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/crawlforge/harvester/internal/labelmap"
)

// ExtractOutlinks selects every a[href] in doc and returns the hrefs that
// resolve to an in-scope URL on lm's target domain, after path-exclude
// filtering (SPEC_FULL.md §4.4).
func ExtractOutlinks(doc *goquery.Document, base *url.URL, lm *labelmap.LabelMap) []*url.URL {
	var out []*url.URL

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || strings.HasPrefix(href, "#") {
			return
		}

		resolved := resolveOutlink(href, base, lm.Domain)
		if resolved == nil {
			return
		}

		path := strings.TrimPrefix(resolved.Path, "/")
		if lm.ExcludePath(path) {
			return
		}

		out = append(out, resolved)
	})

	return out
}

func resolveOutlink(href string, base *url.URL, targetDomain string) *url.URL {
	if strings.HasPrefix(href, "/") {
		u, err := url.Parse(fmt.Sprintf("%s://%s%s", base.Scheme, targetDomain, href))
		if err != nil {
			return nil
		}
		return u
	}

	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Hostname() != targetDomain {
		return nil
	}
	return u
}
