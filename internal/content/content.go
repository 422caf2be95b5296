// Package content converts raw HTML into minified markup, plain text,
// reader view and markdown.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// ErrEmptyInput is returned for blank HTML.
var ErrEmptyInput = errors.New("no HTML content provided")

var (
	sanitizer  = bluemonday.UGCPolicy()
	defaultURL = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
)

// preserved elements keep their text byte for byte.
var preserved = map[string]bool{
	"pre":      true,
	"textarea": true,
	"script":   true,
	"style":    true,
}

// Minify drops comments and collapses whitespace between and inside text
// nodes. Tags are copied as written.
func Minify(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", ErrEmptyInput
	}

	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(src))
	depth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(out.String()), nil
			}
			return "", fmt.Errorf("minify: %w", z.Err())
		case html.CommentToken:
			continue
		case html.StartTagToken:
			name, _ := z.TagName()
			if preserved[string(name)] {
				depth++
			}
			out.Write(z.Raw())
		case html.EndTagToken:
			name, _ := z.TagName()
			if preserved[string(name)] && depth > 0 {
				depth--
			}
			out.Write(z.Raw())
		case html.TextToken:
			raw := z.Raw()
			if depth > 0 {
				out.Write(raw)
				continue
			}
			out.WriteString(collapseSpace(string(raw)))
		default:
			out.Write(z.Raw())
		}
	}
}

// collapseSpace squashes whitespace runs to one space and drops text that is
// only whitespace.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	if s[0] == ' ' || s[0] == '\n' || s[0] == '\t' || s[0] == '\r' {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Join(fields, " "))
	if last := s[len(s)-1]; last == ' ' || last == '\n' || last == '\t' || last == '\r' {
		b.WriteByte(' ')
	}
	return b.String()
}

// ExtractText returns the document text, one space between text nodes.
// Scripts and styles are skipped.
func ExtractText(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", ErrEmptyInput
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " "), nil
}

type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Reader extracts the main article. Relative links resolve against pageURL
// when it is given. The returned content is sanitized.
func Reader(src, pageURL string) (*Article, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmptyInput
	}

	base := defaultURL
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page url: %w", err)
		}
		base = u
	}

	article, err := readability.FromReader(strings.NewReader(src), base)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}
	return &Article{
		Title:   strings.TrimSpace(article.Title),
		Content: sanitizer.Sanitize(article.Content),
	}, nil
}

// Markdown converts src to markdown, keeping links.
func Markdown(src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", ErrEmptyInput
	}
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	return out, nil
}
