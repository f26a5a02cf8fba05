package crawl

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	apperrors "github.com/yungbote/sitescout-backend/internal/pkg/errors"
)

// Link is one outbound reference found on a page, with its anchor text for
// relevance scoring.
type Link struct {
	URL    string
	Anchor string
}

// ExtractResult is the parsed form of one fetched body.
type ExtractResult struct {
	Text          string
	Title         string
	Method        documents.ExtractionMethod
	InternalLinks []Link
	DocumentLinks []Link
}

// strippedTags never contribute readable content.
var strippedTags = "script, style, noscript, iframe, svg, nav, footer, header, form"

// Extract parses a fetched body into text, a title, and outbound links.
// declaredType is the response Content-Type; base resolves relative links and
// bounds what counts as an internal link. The parser is deliberately
// best-effort: a stricter one can replace it without touching callers.
func Extract(body []byte, declaredType string, base *url.URL) (*ExtractResult, error) {
	if isPDF(declaredType, base) {
		return extractPDF(body)
	}
	return extractHTML(body, base)
}

func isPDF(declaredType string, base *url.URL) bool {
	if strings.Contains(strings.ToLower(declaredType), "application/pdf") {
		return true
	}
	if base != nil && strings.HasSuffix(strings.ToLower(base.Path), ".pdf") {
		return true
	}
	return false
}

func extractHTML(body []byte, base *url.URL) (*ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable html: %v", apperrors.ErrMalformedInput, err)
	}
	doc.Find(strippedTags).Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	text := blockText(doc)
	if len(text) > documents.MaxTextLength {
		text = text[:documents.MaxTextLength]
	}

	result := &ExtractResult{
		Text:   text,
		Title:  title,
		Method: documents.ExtractionHTMLStrip,
	}
	if base != nil {
		result.InternalLinks, result.DocumentLinks = collectLinks(doc, base)
	}
	return result, nil
}

// blockText walks block-level elements so paragraph boundaries survive into
// the stored text; the chunker splits on them later. Pages with no block
// structure fall back to whole-body text.
func blockText(doc *goquery.Document) string {
	var blocks []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, td, th, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
		if sel.ChildrenFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		if t := collapseSpace(sel.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})
	text := strings.Join(blocks, "\n\n")
	if len(text) < 200 {
		if whole := collapseSpace(doc.Find("body").Text()); len(whole) > len(text) {
			return whole
		}
	}
	return text
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collectLinks(doc *goquery.Document, base *url.URL) (internal, docs []Link) {
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		target := resolved.String()
		if seen[target] || target == base.String() {
			return
		}
		seen[target] = true

		link := Link{URL: target, Anchor: collapseSpace(sel.Text())}
		switch {
		case strings.HasSuffix(strings.ToLower(resolved.Path), ".pdf"):
			docs = append(docs, link)
		case strings.EqualFold(resolved.Host, base.Host):
			internal = append(internal, link)
		}
	})
	return internal, docs
}

func extractPDF(body []byte) (*ExtractResult, error) {
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: declared pdf lacks pdf magic", apperrors.ErrMalformedInput)
	}

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable pdf: %v", apperrors.ErrMalformedInput, err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
		if sb.Len() > documents.MaxTextLength {
			break
		}
	}

	text := strings.TrimSpace(sb.String())
	if len(text) > documents.MaxTextLength {
		text = text[:documents.MaxTextLength]
	}

	return &ExtractResult{
		Text:   text,
		Title:  firstLine(text),
		Method: documents.ExtractionPDFParse,
	}, nil
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if len(trimmed) > 120 {
				return trimmed[:120]
			}
			return trimmed
		}
	}
	return ""
}
