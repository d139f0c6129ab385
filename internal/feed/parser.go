package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"golang.org/x/net/html/charset"
)

// Parse errors. Anything short of a missing rss or channel element is
// tolerated.
var (
	ErrNoRSS     = errors.New("no rss element found in feed")
	ErrNoChannel = errors.New("no channel element found in feed")
)

// Parse scans a raw feed body and returns the channel-level podcast record
// plus its items in document order. The scan is a single forward pass over
// the token stream; unknown elements are skipped and malformed entities are
// left alone rather than treated as fatal.
func Parse(data []byte) (PodcastRaw, []EpisodeRaw, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	if !scanTo(dec, "rss") {
		return PodcastRaw{}, nil, ErrNoRSS
	}
	if !scanTo(dec, "channel") {
		return PodcastRaw{}, nil, ErrNoChannel
	}
	podcast, episodes := parseChannel(dec)
	return podcast, episodes, nil
}

// scanTo advances the decoder until a start element with the given local
// name is consumed. It reports false when the stream ends first.
func scanTo(dec *xml.Decoder, name string) bool {
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == name {
			return true
		}
	}
}

func parseChannel(dec *xml.Decoder) (PodcastRaw, []EpisodeRaw) {
	var podcast PodcastRaw
	var episodes []EpisodeRaw

	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			// Torn or truncated feeds still yield whatever was
			// scanned before the stream gave out.
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 {
				depth++
				continue
			}
			// The plain RSS fields must not be shadowed by namespaced
			// lookalikes: atom:link and itunes:title share a local
			// name with <link> and <title>.
			switch {
			case plain(t, "item"):
				episodes = append(episodes, parseItem(dec))
			case plain(t, "title"):
				podcast.Title = elementText(dec)
			case plain(t, "language"):
				podcast.Language = elementText(dec)
			case plain(t, "link"):
				podcast.LinkURL = elementText(dec)
			case t.Name.Local == "thumbnail":
				if url, ok := attr(t, "url"); ok {
					podcast.ImageURL = url
				}
				depth++
			case t.Name.Local == "image":
				// itunes:image carries an href attribute; the plain
				// RSS image container has children, which are
				// skipped either way.
				if href, ok := attr(t, "href"); ok {
					podcast.ImageURL = href
				}
				depth++
			default:
				depth++
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
				continue
			}
			if t.Name.Local == "channel" {
				return podcast, episodes
			}
		}
	}
	return podcast, episodes
}

func parseItem(dec *xml.Decoder) EpisodeRaw {
	var episode EpisodeRaw

	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth > 0 {
				depth++
				continue
			}
			switch {
			case plain(t, "guid"):
				episode.GUID = elementText(dec)
			case plain(t, "title"):
				episode.Title = elementText(dec)
			case plain(t, "description"):
				episode.Description = elementText(dec)
			case plain(t, "link"):
				episode.LinkURL = elementText(dec)
			case plain(t, "pubDate"):
				episode.PublishedAt = elementText(dec)
			case t.Name.Local == "explicit":
				explicit := elementText(dec) == "yes"
				episode.Explicit = &explicit
			case plain(t, "enclosure"), t.Name.Local == "content":
				if url, ok := attr(t, "url"); ok {
					episode.MediaURL = url
				}
				if mediaType, ok := attr(t, "type"); ok {
					episode.MediaType = mediaType
				}
				depth++
			default:
				depth++
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
				continue
			}
			if t.Name.Local == "item" {
				return episode
			}
		}
	}
	return episode
}

// elementText consumes tokens up to the current element's end tag and returns
// the concatenated trimmed character data, CDATA included.
func elementText(dec *xml.Decoder) string {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return strings.TrimSpace(sb.String())
}

// plain reports whether se is an un-namespaced element with the given
// local name. Namespaced lookalikes such as atom:link and itunes:title
// carry a non-empty Space and must not match.
func plain(se xml.StartElement, name string) bool {
	return se.Name.Space == "" && se.Name.Local == name
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
