package caption

import (
	"net/url"
	"sort"
	"strings"

	"github.com/MimeLyc/subtube/internal/fault"
)

// Policy decides which caption tracks are acceptable.
type Policy struct {
	// AcceptManual allows uploader-provided English captions when no
	// auto-generated English track exists.
	AcceptManual bool
}

type Kind string

const (
	KindAutomatic Kind = "automatic"
	KindManual    Kind = "manual"
)

const preferredFormat = "json3"

type Selection struct {
	Language string
	Kind     Kind
	Track    Track
}

// Select picks the English track allowed by policy. Preference among
// auto-generated tracks: the untranslated original, then plain "en", then
// any regional English variant.
func Select(tracks *Tracks, policy Policy) (*Selection, error) {
	if tracks == nil || tracks.Empty() {
		return nil, fault.New(fault.KindNoEnglishCaptions, "video has no captions").
			WithUserMessage("Captions are disabled for this video")
	}

	if spoken := originalLanguage(tracks.Automatic); spoken == "" || spoken == "en" {
		if sel := pick(tracks.Automatic, KindAutomatic); sel != nil {
			return sel, nil
		}
	}
	if policy.AcceptManual {
		if sel := pick(tracks.Manual, KindManual); sel != nil {
			return sel, nil
		}
	}

	return nil, fault.New(fault.KindNoEnglishCaptions, "no usable English caption track").
		With("automatic", languages(tracks.Automatic)).
		With("manual", languages(tracks.Manual))
}

func pick(byLang map[string][]Track, kind Kind) *Selection {
	for _, lang := range englishCandidates(byLang) {
		for _, t := range byLang[lang] {
			if t.Ext == preferredFormat && t.URL != "" && !machineTranslated(t.URL) {
				return &Selection{Language: lang, Kind: kind, Track: t}
			}
		}
	}
	return nil
}

// originalLanguage returns the spoken language of the video as listed by the
// "<lang>-orig" automatic track, or "" when no such track exists. Every other
// automatic track of such a video is a machine translation of it.
func originalLanguage(byLang map[string][]Track) string {
	var spoken []string
	for lang := range byLang {
		if base, ok := strings.CutSuffix(lang, "-orig"); ok {
			spoken = append(spoken, base)
		}
	}
	if len(spoken) == 0 {
		return ""
	}
	sort.Strings(spoken)
	for _, lang := range spoken {
		if lang == "en" || strings.HasPrefix(lang, "en-") {
			return "en"
		}
	}
	return spoken[0]
}

// machineTranslated reports whether a track URL asks the caption service to
// translate (tlang parameter).
func machineTranslated(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Has("tlang")
}

func englishCandidates(byLang map[string][]Track) []string {
	var out []string
	for _, lang := range []string{"en-orig", "en"} {
		if _, ok := byLang[lang]; ok {
			out = append(out, lang)
		}
	}

	var regional []string
	for lang := range byLang {
		if strings.HasPrefix(lang, "en-") && lang != "en-orig" {
			regional = append(regional, lang)
		}
	}
	sort.Strings(regional)
	return append(out, regional...)
}

func languages(byLang map[string][]Track) []string {
	out := make([]string, 0, len(byLang))
	for lang := range byLang {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
