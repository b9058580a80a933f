package scope

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// User-visible strings. The keys double as the English text.
const (
	msgExplore       = "Explore"
	msgStream        = "Your stream"
	msgSearch        = "SoundCloud"
	msgYouTube       = "YouTube"
	msgLogin         = "Log in to SoundCloud"
	msgStatistics    = "▶ %d   ♥ %d"
	msgBuy           = "Buy"
	msgWatchVideo    = "Watch video"
	msgPlayInBrowser = "Play in browser"
	msgLike          = "Like"
	msgUnlike        = "Unlike"
	msgFollow        = "Follow %s"
	msgUnfollow      = "Unfollow %s"
	msgPostComment   = "Post comment"
	msgComments      = "Comments (%d)"
	msgTimeout       = "HTTP request timeout"
	msgRequestFailed = "SoundCloud request failed"
)

var englishMessages = []string{
	msgExplore, msgStream, msgSearch, msgYouTube, msgLogin, msgStatistics,
	msgBuy, msgWatchVideo, msgPlayInBrowser, msgLike, msgUnlike, msgFollow,
	msgUnfollow, msgPostComment, msgComments, msgTimeout, msgRequestFailed,
}

// Localizer hands out message printers for request locales.
type Localizer struct {
	catalog  catalog.Catalog
	matcher  language.Matcher
	fallback language.Tag
}

// NewLocalizer builds the message catalog. Only English ships; other locales
// fall back to it while keeping their number formatting.
func NewLocalizer(fallback string) (*Localizer, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	keys := append(append([]string{}, englishMessages...), musicDepartments...)
	keys = append(keys, audioDepartments...)
	for _, key := range keys {
		if err := b.SetString(language.English, key, key); err != nil {
			return nil, err
		}
	}

	tag := language.English
	if fallback != "" {
		parsed, err := language.Parse(fallback)
		if err != nil {
			return nil, err
		}
		tag = parsed
	}

	return &Localizer{
		catalog:  b,
		matcher:  language.NewMatcher(append([]language.Tag{tag}, b.Languages()...)),
		fallback: tag,
	}, nil
}

// Printer returns a printer for locale, e.g. "de-DE". An empty or unknown
// locale yields the fallback.
func (l *Localizer) Printer(locale string) *message.Printer {
	tag := l.fallback
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			tag = parsed
		}
	}
	// Matching keeps the region so numbers are grouped the way the user expects.
	_, index, confidence := l.matcher.Match(tag)
	if confidence == language.No || index < 0 {
		tag = l.fallback
	}
	return message.NewPrinter(tag, message.Catalog(l.catalog))
}
