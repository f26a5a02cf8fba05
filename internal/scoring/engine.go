package scoring

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	scoringdomain "github.com/yungbote/sitescout-backend/internal/domain/scoring"
)

const (
	// MinScoredTextLength filters out documents whose extraction produced too
	// little text to count as evidence.
	MinScoredTextLength = 200

	// calibrationCeiling is the raw category sum that maps to a full 10.
	calibrationCeiling = 25.0

	maxCategoryScore = 10.0
	exactMatchBonus  = 2.0
	contextRadius    = 60

	tierOneComposite = 7.0
	tierTwoComposite = 4.0
	categoryOverride = 8.0
)

// Result is one district's computed keyword profile. Matches is keyed by
// category name and holds the evidence behind each contribution.
type Result struct {
	Readiness         float64
	Technology        float64
	Funding           float64
	Engagement        float64
	Composite         float64
	Tier              int
	Matches           map[string][]scoringdomain.KeywordMatch
	DocumentsAnalyzed int
}

// scanPriority orders documents so keyword evidence is taken from the
// strongest source available: plan documents before minutes and news,
// newer before older.
var scanPriority = map[documents.Category]int{
	documents.CategoryStrategicPlan:  0,
	documents.CategoryTechnologyPlan: 1,
	documents.CategoryBudget:         2,
	documents.CategoryBoardMinutes:   3,
	documents.CategoryNews:           4,
	documents.CategoryOther:          5,
}

// Score computes the weighted keyword profile over one district's documents.
// Each taxonomy keyword contributes at most once per district, from the first
// document (in scan order) whose text contains it. Deterministic: the same
// documents and clock always produce identical output.
func Score(tax *Taxonomy, docs []documents.Document, now time.Time) Result {
	scan := prepareScan(docs, now)

	res := Result{
		Matches:           map[string][]scoringdomain.KeywordMatch{},
		DocumentsAnalyzed: len(scan),
	}

	catScores := make([]float64, 0, len(tax.Categories))
	for _, cat := range tax.Categories {
		raw := 0.0
		exactApplied := false
		for _, kw := range cat.Keywords {
			for _, sd := range scan {
				idx := strings.Index(sd.lower, kw.Pattern)
				if idx < 0 {
					continue
				}
				raw += kw.Weight * sd.multiplier
				if kw.Exact && !exactApplied {
					raw += exactMatchBonus
					exactApplied = true
				}
				res.Matches[cat.Name] = append(res.Matches[cat.Name], scoringdomain.KeywordMatch{
					Keyword:     kw.Pattern,
					Weight:      kw.Weight,
					DocumentURL: sd.doc.URL,
					Context:     contextSnippet(sd.doc.Text, idx, len(kw.Pattern)),
				})
				break
			}
		}
		score := scaleCategory(raw)
		catScores = append(catScores, score)
		switch cat.Name {
		case CategoryReadiness:
			res.Readiness = score
		case CategoryTechnology:
			res.Technology = score
		case CategoryFunding:
			res.Funding = score
		case CategoryEngagement:
			res.Engagement = score
		}
	}

	sum := 0.0
	for _, s := range catScores {
		sum += s
	}
	if len(catScores) > 0 {
		res.Composite = sum / float64(len(catScores))
	}
	res.Tier = tierFor(res.Composite, catScores)
	return res
}

type scanDoc struct {
	doc        *documents.Document
	lower      string
	multiplier float64
}

func prepareScan(docs []documents.Document, now time.Time) []scanDoc {
	eligible := make([]*documents.Document, 0, len(docs))
	for i := range docs {
		if len(docs[i].Text) < MinScoredTextLength {
			continue
		}
		eligible = append(eligible, &docs[i])
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if pa, pb := scanPriority[a.Category], scanPriority[b.Category]; pa != pb {
			return pa < pb
		}
		if !a.DiscoveredAt.Equal(b.DiscoveredAt) {
			return a.DiscoveredAt.After(b.DiscoveredAt)
		}
		return a.URL < b.URL
	})
	scan := make([]scanDoc, len(eligible))
	for i, doc := range eligible {
		scan[i] = scanDoc{
			doc:        doc,
			lower:      strings.ToLower(doc.Text),
			multiplier: recencyMultiplier(doc.DiscoveredAt, now) * specificityMultiplier(doc),
		}
	}
	return scan
}

// recencyMultiplier discounts stale evidence in three bands off the document's
// discovery time.
func recencyMultiplier(discoveredAt, now time.Time) float64 {
	age := now.Sub(discoveredAt)
	switch {
	case age <= 90*24*time.Hour:
		return 1.0
	case age <= 365*24*time.Hour:
		return 0.7
	default:
		return 0.4
	}
}

// specificityMultiplier weighs first-party strategic content over passing
// news mentions.
func specificityMultiplier(doc *documents.Document) float64 {
	path := ""
	if u, err := url.Parse(doc.URL); err == nil {
		path = strings.ToLower(u.Path)
	}
	switch {
	case doc.Category == documents.CategoryStrategicPlan || doc.Category == documents.CategoryTechnologyPlan:
		return 1.0
	case strings.Contains(path, "/plan") || strings.Contains(path, "/strategic") || strings.Contains(path, "/about"):
		return 1.0
	case doc.Category == documents.CategoryNews || strings.Contains(path, "/news") || strings.Contains(path, "/press"):
		return 0.5
	default:
		return 0.8
	}
}

func scaleCategory(raw float64) float64 {
	return math.Min(maxCategoryScore, raw*maxCategoryScore/calibrationCeiling)
}

// tierFor applies the composite thresholds, then the single-category
// override: one category at 8+ promotes to tier 1 regardless of composite.
func tierFor(composite float64, catScores []float64) int {
	for _, v := range catScores {
		if v >= categoryOverride {
			return 1
		}
	}
	switch {
	case composite >= tierOneComposite:
		return 1
	case composite >= tierTwoComposite:
		return 2
	default:
		return 3
	}
}

func contextSnippet(text string, idx, matchLen int) string {
	start := idx - contextRadius
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + contextRadius
	if end > len(text) {
		end = len(text)
	}
	return strings.Join(strings.Fields(text[start:end]), " ")
}
