// Package extract turns fetched HTML into normalized text and scored
// outbound links.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
)

var droppedSelectors = "script,noscript,style,template,iframe,svg"

var skippedSchemes = []string{"mailto:", "javascript:", "tel:", "data:", "ftp:"}

// Config controls the Extractor.
type Config struct {
	// RelevanceKeywords are matched against anchor text, title and URL to
	// derive the link relevance hint.
	RelevanceKeywords []string
}

// Extractor implements crawler.LinkExtractor with goquery.
type Extractor struct {
	keywords []string
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	keywords := make([]string, 0, len(cfg.RelevanceKeywords))
	for _, kw := range cfg.RelevanceKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Extractor{keywords: keywords}
}

// Extract decodes the body to UTF-8, strips non-content elements, and
// returns whitespace-normalized text plus deduplicated absolute links.
// Non-HTML bodies yield their normalized text and no links.
func (e *Extractor) Extract(resp crawler.FetchResponse) (crawler.Page, error) {
	if len(resp.Body) == 0 {
		return crawler.Page{}, crawler.ErrEmptyContent
	}
	contentType := resp.Headers.Get("Content-Type")
	body, err := decode(resp.Body, contentType)
	if err != nil {
		return crawler.Page{}, err
	}
	if !isHTML(contentType) {
		return crawler.Page{Text: []byte(NormalizeText(string(body)))}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(droppedSelectors).Remove()

	base := resp.URL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := crawler.ResolveURL(resp.URL, href); err == nil {
			base = resolved
		}
	}

	textRoot := doc.Find("body")
	if textRoot.Length() == 0 {
		textRoot = doc.Selection
	}
	text := NormalizeText(textRoot.Text())
	if title := NormalizeText(doc.Find("title").First().Text()); title != "" {
		text = strings.TrimSpace(title + " " + text)
	}

	return crawler.Page{
		Text:  []byte(text),
		Links: e.links(doc, base),
	}, nil
}

func (e *Extractor) links(doc *goquery.Document, base string) []crawler.Link {
	var links []crawler.Link
	index := make(map[string]int)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || hasSkippedScheme(href) {
			return
		}
		resolved, err := crawler.ResolveURL(base, href)
		if err != nil {
			return
		}
		u, err := url.Parse(resolved)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		title, _ := s.Attr("title")
		relevance := e.Relevance(s.Text() + " " + title + " " + u.Path)
		if i, ok := index[resolved]; ok {
			if relevance > links[i].Relevance {
				links[i].Relevance = relevance
			}
			return
		}
		index[resolved] = len(links)
		links = append(links, crawler.Link{URL: resolved, Relevance: relevance})
	})
	return links
}

// Relevance returns the fraction of configured keywords present in text,
// in [0,1]. Without keywords every link scores 0.
func (e *Extractor) Relevance(text string) float64 {
	if len(e.keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(e.keywords))
}

// NormalizeText collapses all whitespace runs into single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func decode(body []byte, contentType string) ([]byte, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// Unknown charset labels fall back to the raw bytes.
		return body, nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return decoded, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func hasSkippedScheme(href string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
