package notion

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// Text returns the plain text of a title, rich text, select, or email
// property. Missing or unsupported properties yield "".
func Text(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.TitleProperty:
		return joinRichText(p.Title)
	case *notionapi.RichTextProperty:
		return joinRichText(p.RichText)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.EmailProperty:
		return p.Email
	default:
		return ""
	}
}

// OptionalText is Text with nil for a missing or blank value.
func OptionalText(props notionapi.Properties, name string) *string {
	s := Text(props, name)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Integer reads a whole-number answer. Fractional numbers yield nil.
// notionapi decodes an empty number cell as 0, so callers that need to tell
// "unanswered" apart should use select or text columns.
func Integer(props notionapi.Properties, name string) *int {
	switch p := props[name].(type) {
	case *notionapi.NumberProperty:
		if p.Number != math.Trunc(p.Number) || math.IsInf(p.Number, 0) {
			return nil
		}
		v := int(p.Number)
		return &v
	case *notionapi.SelectProperty, *notionapi.RichTextProperty, *notionapi.TitleProperty:
		s := strings.TrimSpace(Text(props, name))
		if s == "" {
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		return &v
	default:
		return nil
	}
}

// DateValue returns the start of a date property, or the created time for a
// created_time property.
func DateValue(props notionapi.Properties, name string) *time.Time {
	switch p := props[name].(type) {
	case *notionapi.DateProperty:
		if p.Date == nil || p.Date.Start == nil {
			return nil
		}
		t := time.Time(*p.Date.Start)
		return &t
	case *notionapi.CreatedTimeProperty:
		t := p.CreatedTime
		return &t
	default:
		return nil
	}
}

func joinRichText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.PlainText)
	}
	return b.String()
}
