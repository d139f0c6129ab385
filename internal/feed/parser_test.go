package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const idealFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss>
  <channel>
    <language>en-US</language>
    <link>https://example.com/podcast</link>
    <media:thumbnail url="https://example.com/podcast-image-url.jpg"/>
    <title>Title</title>
    <item>
      <description><![CDATA[Item 1 description]]></description>
      <guid>1</guid>
      <itunes:explicit>yes</itunes:explicit>
      <media:content url="https://example.com/item-1" type="audio/mpeg"/>
      <pubDate>Sun, 24 Dec 2017 21:37:32 +0000</pubDate>
      <title>Item 1 Title</title>
    </item>
  </channel>
</rss>`

const minimalFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss>
  <channel>
    <title>Title</title>
    <item>
      <guid>1</guid>
      <media:content url="https://example.com/item-1" type="audio/mpeg"/>
      <pubDate>Sun, 24 Dec 2017 21:37:32 +0000</pubDate>
      <title>Item 1 Title</title>
    </item>
  </channel>
</rss>`

func TestParseIdealFeed(t *testing.T) {
	t.Parallel()

	podcast, episodes, err := Parse([]byte(idealFeed))
	require.NoError(t, err)

	require.Equal(t, "Title", podcast.Title)
	require.Equal(t, "en-US", podcast.Language)
	require.Equal(t, "https://example.com/podcast", podcast.LinkURL)
	require.Equal(t, "https://example.com/podcast-image-url.jpg", podcast.ImageURL)

	require.Len(t, episodes, 1)
	episode := episodes[0]
	require.Equal(t, "1", episode.GUID)
	require.Equal(t, "Item 1 Title", episode.Title)
	require.Equal(t, "Item 1 description", episode.Description)
	require.Equal(t, "https://example.com/item-1", episode.MediaURL)
	require.Equal(t, "audio/mpeg", episode.MediaType)
	require.Equal(t, "Sun, 24 Dec 2017 21:37:32 +0000", episode.PublishedAt)
	require.NotNil(t, episode.Explicit)
	require.True(t, *episode.Explicit)
}

func TestParseMinimalFeed(t *testing.T) {
	t.Parallel()

	podcast, episodes, err := Parse([]byte(minimalFeed))
	require.NoError(t, err)

	require.Equal(t, "Title", podcast.Title)
	require.Empty(t, podcast.Language)
	require.Empty(t, podcast.ImageURL)

	require.Len(t, episodes, 1)
	require.Equal(t, "1", episodes[0].GUID)
	require.Equal(t, "https://example.com/item-1", episodes[0].MediaURL)
	require.Nil(t, episodes[0].Explicit)
}

func TestParseNoRSSElement(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]byte(`<?xml version="1.0"?><html><body/></html>`))
	require.ErrorIs(t, err, ErrNoRSS)
}

func TestParseNoChannelElement(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]byte(`<rss version="2.0"></rss>`))
	require.ErrorIs(t, err, ErrNoChannel)
}

func TestParseToleratesUnescapedAmpersand(t *testing.T) {
	t.Parallel()

	podcast, episodes, err := Parse([]byte(`<rss><channel>
		<title>Laughs & Gaffes</title>
		<item><guid>g1</guid><title>One & Two</title></item>
	</channel></rss>`))
	require.NoError(t, err)
	require.Equal(t, "Laughs & Gaffes", podcast.Title)
	require.Len(t, episodes, 1)
	require.Equal(t, "One & Two", episodes[0].Title)
}

func TestParseUnknownElementsSkipped(t *testing.T) {
	t.Parallel()

	podcast, episodes, err := Parse([]byte(`<rss><channel>
		<atom:link href="https://example.com/self"/>
		<generator>Podmaker 9000</generator>
		<title>Title</title>
		<image><url>https://example.com/nested.jpg</url><title>Nested</title></image>
		<item>
			<guid isPermaLink="false">g1</guid>
			<itunes:duration>12:34</itunes:duration>
			<title>Item</title>
		</item>
	</channel></rss>`))
	require.NoError(t, err)
	// The nested image title must not clobber the channel title.
	require.Equal(t, "Title", podcast.Title)
	require.Len(t, episodes, 1)
	require.Equal(t, "g1", episodes[0].GUID)
	require.Equal(t, "Item", episodes[0].Title)
}

func TestParseNamespacedLookalikesDoNotClobber(t *testing.T) {
	t.Parallel()

	// atom:link and itunes:title share a local name with <link> and
	// <title>; they must be skipped, not merged over the plain fields.
	podcast, episodes, err := Parse([]byte(`<rss version="2.0"
		xmlns:atom="http://www.w3.org/2005/Atom"
		xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
		<channel>
			<title>Channel Title</title>
			<itunes:title>Channel iTunes Title</itunes:title>
			<link>https://example.com/podcast</link>
			<atom:link rel="self" href="https://example.com/feed.xml"/>
			<item>
				<guid>g1</guid>
				<title>Item Title</title>
				<itunes:title>Item iTunes Title</itunes:title>
				<link>https://example.com/ep1</link>
				<atom:link rel="alternate" href="https://example.com/alt"/>
			</item>
		</channel>
	</rss>`))
	require.NoError(t, err)
	require.Equal(t, "Channel Title", podcast.Title)
	require.Equal(t, "https://example.com/podcast", podcast.LinkURL)
	require.Len(t, episodes, 1)
	require.Equal(t, "Item Title", episodes[0].Title)
	require.Equal(t, "https://example.com/ep1", episodes[0].LinkURL)
}

func TestParseDuplicateElementsLastWins(t *testing.T) {
	t.Parallel()

	podcast, _, err := Parse([]byte(`<rss><channel>
		<title>First</title>
		<title>Second</title>
	</channel></rss>`))
	require.NoError(t, err)
	require.Equal(t, "Second", podcast.Title)
}

func TestParseEnclosureElement(t *testing.T) {
	t.Parallel()

	_, episodes, err := Parse([]byte(`<rss><channel><title>T</title>
		<item>
			<guid>g</guid>
			<enclosure url="https://example.com/ep.mp3" type="audio/mpeg" length="1234"/>
		</item>
	</channel></rss>`))
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	require.Equal(t, "https://example.com/ep.mp3", episodes[0].MediaURL)
	require.Equal(t, "audio/mpeg", episodes[0].MediaType)
}

func TestParseExplicitFlagValues(t *testing.T) {
	t.Parallel()

	_, episodes, err := Parse([]byte(`<rss><channel><title>T</title>
		<item><guid>a</guid><itunes:explicit>yes</itunes:explicit></item>
		<item><guid>b</guid><itunes:explicit>clean</itunes:explicit></item>
		<item><guid>c</guid></item>
	</channel></rss>`))
	require.NoError(t, err)
	require.Len(t, episodes, 3)
	require.NotNil(t, episodes[0].Explicit)
	require.True(t, *episodes[0].Explicit)
	require.NotNil(t, episodes[1].Explicit)
	require.False(t, *episodes[1].Explicit)
	require.Nil(t, episodes[2].Explicit)
}

func TestParseTruncatedFeedKeepsScannedItems(t *testing.T) {
	t.Parallel()

	podcast, episodes, err := Parse([]byte(`<rss><channel><title>T</title>
		<item><guid>g1</guid><title>One</title></item>
		<item><guid>g2</guid><title>Tw`))
	require.NoError(t, err)
	require.Equal(t, "T", podcast.Title)
	require.GreaterOrEqual(t, len(episodes), 1)
	require.Equal(t, "g1", episodes[0].GUID)
}
