package news

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Untitled is used for feed items without a title.
const Untitled = "Sans titre"

// entry is a feed item before image fallback and sorting.
type entry struct {
	Title string
	Link  string
	Date  *time.Time
	Image string
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type urlAttr struct {
	URL string `xml:"url,attr"`
}

// Fields are matched on local names so feeds with missing or unusual
// namespace declarations still parse.
type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	PubDate     string  `xml:"pubDate"`
	DCDate      string  `xml:"date"`
	Thumbnail   urlAttr `xml:"thumbnail"`
	Enclosure   urlAttr `xml:"enclosure"`
	Description string  `xml:"description"`
	Encoded     string  `xml:"encoded"`
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parseFeed reads an RSS document. HTML entities are accepted in text.
func parseFeed(r io.Reader) ([]entry, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc rssDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	out := make([]entry, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		title := decodeEntities(it.Title)
		if title == "" {
			title = Untitled
		}
		date := it.PubDate
		if strings.TrimSpace(date) == "" {
			date = it.DCDate
		}

		image := strings.TrimSpace(it.Thumbnail.URL)
		if image == "" {
			image = strings.TrimSpace(it.Enclosure.URL)
		}
		if image == "" {
			image = firstImage(it.Encoded)
		}
		if image == "" {
			image = firstImage(it.Description)
		}

		out = append(out, entry{
			Title: title,
			Link:  strings.TrimSpace(it.Link),
			Date:  parseDate(date),
			Image: image,
		})
	}
	return out, nil
}

// decodeEntities resolves entities left escaped by the feed (for example
// "&amp;#039;").
func decodeEntities(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < 2 && strings.Contains(s, "&"); i++ {
		s = html.UnescapeString(s)
	}
	return s
}

var imageExt = regexp.MustCompile(`(?i)\.(jpe?g|png|webp|gif)(\?.*)?$`)

// firstImage returns the first <img> pointing at an image file, or the
// og:image meta, found in an HTML fragment.
func firstImage(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	var og string
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return og
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "img":
				if src := attr(tok, "src"); imageExt.MatchString(src) {
					return src
				}
			case "meta":
				if og == "" && attr(tok, "property") == "og:image" {
					og = attr(tok, "content")
				}
			}
		}
	}
}

// metaImage returns the og:image, else twitter:image, of an HTML page.
func metaImage(page []byte) string {
	var twitter string
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return twitter
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			content := attr(tok, "content")
			if content == "" {
				continue
			}
			if attr(tok, "property") == "og:image" {
				return content
			}
			if twitter == "" && attr(tok, "name") == "twitter:image" {
				twitter = content
			}
		case html.EndTagToken:
			if z.Token().Data == "head" {
				return twitter
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
