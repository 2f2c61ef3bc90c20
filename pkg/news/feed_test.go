package news

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>News</title>
  <item>
    <title><![CDATA[Frieren &amp;#039;s second season]]></title>
    <link>https://example.com/a</link>
    <pubDate>Tue, 14 Oct 2025 09:00:00 +0000</pubDate>
    <media:thumbnail url="https://img.example.com/a.jpg"/>
  </item>
  <item>
    <title>Dandadan &eacute;pisode 3</title>
    <link>https://example.com/b</link>
    <dc:date>2025-10-15T10:00:00Z</dc:date>
    <enclosure url="https://img.example.com/b.png" type="image/png"/>
  </item>
  <item>
    <title></title>
    <link>https://example.com/c</link>
    <description>&lt;p&gt;&lt;img src="https://img.example.com/c.webp" /&gt;&lt;/p&gt;</description>
  </item>
  <item>
    <title>No image</title>
    <link>https://example.com/d</link>
    <pubDate>Mon, 13 Oct 2025 08:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func TestParseFeed(t *testing.T) {
	entries, err := parseFeed(strings.NewReader(sampleFeed))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "Frieren 's second season", entries[0].Title)
	assert.Equal(t, "https://img.example.com/a.jpg", entries[0].Image)
	require.NotNil(t, entries[0].Date)
	assert.Equal(t, time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC), *entries[0].Date)

	assert.Equal(t, "Dandadan épisode 3", entries[1].Title)
	assert.Equal(t, "https://img.example.com/b.png", entries[1].Image)
	require.NotNil(t, entries[1].Date)

	assert.Equal(t, Untitled, entries[2].Title)
	assert.Equal(t, "https://img.example.com/c.webp", entries[2].Image)
	assert.Nil(t, entries[2].Date)

	assert.Empty(t, entries[3].Image)
	assert.Equal(t, "https://example.com/d", entries[3].Link)
}

func TestFirstImage(t *testing.T) {
	assert.Equal(t, "https://x/y.jpeg", firstImage(`<div><img src="https://x/pixel"><img src="https://x/y.jpeg"></div>`))
	assert.Equal(t, "https://x/og.png", firstImage(`<meta property="og:image" content="https://x/og.png">`))
	assert.Empty(t, firstImage(""))
	assert.Empty(t, firstImage("<p>text</p>"))
}

func TestMetaImage(t *testing.T) {
	page := []byte(`<html><head>
		<meta name="twitter:image" content="https://x/tw.jpg">
		<meta property="og:image" content="https://x/og.jpg">
	</head><body></body></html>`)
	assert.Equal(t, "https://x/og.jpg", metaImage(page))

	page = []byte(`<html><head><meta name="twitter:image" content="https://x/tw.jpg"></head></html>`)
	assert.Equal(t, "https://x/tw.jpg", metaImage(page))

	assert.Empty(t, metaImage([]byte(`<html><head></head><body><meta property="og:image" content="late"></body></html>`)))
}
