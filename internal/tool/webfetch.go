package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxResponseSize limits how much of a response body is read.
	MaxResponseSize = 5 * 1024 * 1024

	// DefaultFetchTimeout bounds a fetch when the model gives none.
	DefaultFetchTimeout = 30 * time.Second

	// MaxFetchTimeout is the largest timeout the model may request.
	MaxFetchTimeout = 120 * time.Second
)

// WebFetchTool fetches a URL and renders the response as text, markdown or
// raw HTML.
type WebFetchTool struct {
	client *http.Client
}

// WebFetchInput is the input schema for the webfetch tool.
type WebFetchInput struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Timeout int    `json:"timeout,omitempty"` // seconds
}

func NewWebFetchTool() *WebFetchTool {
	// No client-level timeout. The per-call deadline comes from the
	// request context so the model-supplied timeout is honored.
	return &WebFetchTool{client: &http.Client{}}
}

func (t *WebFetchTool) ID() string {
	return "webfetch"
}

func (t *WebFetchTool) Description() string {
	return `Fetches content from a URL and returns it in the requested format.

Usage:
- Provide a fully-formed http:// or https:// URL
- HTTP URLs are upgraded to HTTPS automatically
- format "text" strips HTML markup, "markdown" converts HTML to markdown, "html" returns the raw body
- Responses larger than 5MB are truncated`
}

func (t *WebFetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The URL to fetch"
			},
			"format": {
				"type": "string",
				"enum": ["text", "markdown", "html"],
				"description": "Output format, defaults to text"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in seconds (max 120)"
			}
		},
		"required": ["url"]
	}`)
}

// CallTimeout reports the fetch deadline so the executor can allow for it.
func (t *WebFetchTool) CallTimeout(input json.RawMessage) time.Duration {
	var params WebFetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return DefaultFetchTimeout
	}
	return fetchTimeout(params.Timeout)
}

func fetchTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultFetchTimeout
	}
	d := time.Duration(seconds) * time.Second
	if d > MaxFetchTimeout {
		return MaxFetchTimeout
	}
	return d
}

func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WebFetchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}

	fetchURL := params.URL
	if after, ok := strings.CutPrefix(fetchURL, "http://"); ok {
		fetchURL = "https://" + after
	}

	format := params.Format
	if format == "" {
		format = "text"
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout(params.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lodestar/1.0)")
	switch format {
	case "html":
		req.Header.Set("Accept", "text/html")
	default:
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	isHTML := strings.Contains(contentType, "text/html") ||
		(contentType == "" && looksLikeHTML(body))

	var output string
	switch format {
	case "html":
		output = string(body)
	case "markdown":
		if isHTML {
			output, err = convertHTMLToMarkdown(string(body))
			if err != nil {
				return nil, fmt.Errorf("failed to convert html: %w", err)
			}
		} else {
			output = string(body)
		}
	default:
		if isHTML {
			output, err = extractTextFromHTML(string(body))
			if err != nil {
				return nil, fmt.Errorf("failed to extract text: %w", err)
			}
		} else {
			output = string(body)
		}
	}

	return &Result{
		Title:  params.URL,
		Output: output,
		Metadata: map[string]any{
			"url":         params.URL,
			"contentType": contentType,
			"bytes":       len(body),
			"format":      format,
		},
	}, nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// extractTextFromHTML strips markup and scripting, keeping readable text.
func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()

	var sb strings.Builder
	for _, line := range strings.Split(doc.Text(), "\n") {
		sb.WriteString(strings.TrimSpace(line))
		sb.WriteString("\n")
	}
	text := blankLines.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(text), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
		EmDelimiter:      "*",
	})
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 256)]))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}
