package srt

import (
	"fmt"
	"strings"
)

type Language string

const (
	English   Language = "english"
	Chinese   Language = "chinese"
	Bilingual Language = "bilingual"
)

func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case "", English:
		return English, nil
	case Chinese:
		return Chinese, nil
	case Bilingual:
		return Bilingual, nil
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Export renders cues back to SRT, renumbering them from 1. Chinese export
// falls back to the English line for cues without a translation.
func Export(entries []Entry, lang Language) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d\n%s --> %s\n", i+1, FormatTimestamp(e.Start), FormatTimestamp(e.End))
		switch lang {
		case Chinese:
			if strings.TrimSpace(e.Chinese) != "" {
				b.WriteString(e.Chinese)
			} else {
				b.WriteString(e.English)
			}
			b.WriteByte('\n')
		case Bilingual:
			b.WriteString(e.English)
			b.WriteByte('\n')
			if strings.TrimSpace(e.Chinese) != "" {
				b.WriteString(e.Chinese)
				b.WriteByte('\n')
			}
		default:
			b.WriteString(e.English)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
