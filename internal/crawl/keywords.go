package crawl

import (
	"net/url"
	"sort"
	"strings"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
)

// discoveryKeyword is one crawl-time signal: its presence tags an attempt's
// matched-keyword list and votes on the document category.
type discoveryKeyword struct {
	Pattern  string
	Category documents.Category
}

// discoveryKeywords is priority ordered: the first pattern whose category
// matches wins classification ties. Patterns are matched as lowercase
// substrings.
var discoveryKeywords = []discoveryKeyword{
	{"strategic plan", documents.CategoryStrategicPlan},
	{"strategic planning", documents.CategoryStrategicPlan},
	{"district goals", documents.CategoryStrategicPlan},
	{"vision 20", documents.CategoryStrategicPlan},
	{"portrait of a graduate", documents.CategoryStrategicPlan},
	{"technology plan", documents.CategoryTechnologyPlan},
	{"digital learning", documents.CategoryTechnologyPlan},
	{"1:1 device", documents.CategoryTechnologyPlan},
	{"one-to-one device", documents.CategoryTechnologyPlan},
	{"instructional technology", documents.CategoryTechnologyPlan},
	{"budget", documents.CategoryBudget},
	{"bond measure", documents.CategoryBudget},
	{"levy", documents.CategoryBudget},
	{"referendum", documents.CategoryBudget},
	{"annual financial report", documents.CategoryBudget},
	{"board meeting", documents.CategoryBoardMinutes},
	{"board minutes", documents.CategoryBoardMinutes},
	{"board agenda", documents.CategoryBoardMinutes},
	{"board of education meeting", documents.CategoryBoardMinutes},
	{"press release", documents.CategoryNews},
	{"news", documents.CategoryNews},
	{"announcements", documents.CategoryNews},
}

// urlCategoryHints classify by URL path alone; a path hint outranks anything
// found in the body.
var urlCategoryHints = []struct {
	Fragment string
	Category documents.Category
}{
	{"strategic", documents.CategoryStrategicPlan},
	{"strategy", documents.CategoryStrategicPlan},
	{"technology-plan", documents.CategoryTechnologyPlan},
	{"techplan", documents.CategoryTechnologyPlan},
	{"digital-learning", documents.CategoryTechnologyPlan},
	{"budget", documents.CategoryBudget},
	{"finance", documents.CategoryBudget},
	{"bond", documents.CategoryBudget},
	{"board-minutes", documents.CategoryBoardMinutes},
	{"boarddocs", documents.CategoryBoardMinutes},
	{"agenda", documents.CategoryBoardMinutes},
	{"news", documents.CategoryNews},
	{"press", documents.CategoryNews},
}

// DetectKeywords returns the sorted, unique discovery keywords present in the
// text.
func DetectKeywords(text string) []string {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	for _, kw := range discoveryKeywords {
		if !seen[kw.Pattern] && strings.Contains(lower, kw.Pattern) {
			seen[kw.Pattern] = true
		}
	}
	out := make([]string, 0, len(seen))
	for pattern := range seen {
		out = append(out, pattern)
	}
	sort.Strings(out)
	return out
}

// Categorize assigns a document category from its URL path first, then from
// body keywords in table priority order.
func Categorize(rawURL, title, text string) documents.Category {
	if u, err := url.Parse(rawURL); err == nil {
		lowerPath := strings.ToLower(u.Path)
		for _, hint := range urlCategoryHints {
			if strings.Contains(lowerPath, hint.Fragment) {
				return hint.Category
			}
		}
	}

	haystack := strings.ToLower(title + "\n" + text)
	for _, kw := range discoveryKeywords {
		if strings.Contains(haystack, kw.Pattern) {
			return kw.Category
		}
	}
	return documents.CategoryOther
}
