package feed

import (
	"time"

	"github.com/goodsign/monday"
)

// layouts of absolute dates the platform renders in tooltips and on older
// posts, in the locales we commonly encounter
var timestampLayouts = []string{
	"Monday, January 2, 2006 at 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006",
	"2 January 2006",
	"02/01/2006 15:04",
}

var timestampLocales = []monday.Locale{
	monday.LocaleEnUS,
	monday.LocaleEnGB,
	monday.LocaleDeDE,
	monday.LocaleFrFR,
	monday.LocaleEsES,
}

// ParseAbsoluteTimestamp tries to parse a displayed timestamp as an
// absolute date. Relative forms ("2 hrs", "Yesterday") do not parse and
// report ok=false; callers keep the raw text in that case.
func ParseAbsoluteTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		for _, locale := range timestampLocales {
			if t, err := monday.ParseInLocation(layout, s, time.Local, locale); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
