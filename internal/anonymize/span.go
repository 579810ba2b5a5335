package anonymize

import (
	"context"
	"strings"
)

// Category classifies a span of personal data. Categories are upper-case
// ASCII so they can be embedded in placeholders.
type Category string

const (
	CategoryPerson       Category = "PERSON"
	CategoryEmail        Category = "EMAIL"
	CategoryPhone        Category = "PHONE"
	CategoryURL          Category = "URL"
	CategoryDate         Category = "DATE"
	CategoryLocation     Category = "LOCATION"
	CategoryOrganization Category = "ORG"
	CategoryAddress      Category = "ADDRESS"
)

// Span is a detected piece of personal data. Start and End are byte offsets
// into the scanned text; End is exclusive.
type Span struct {
	Start    int
	End      int
	Category Category
	Text     string
}

// Recognizer finds personal data in text. Implementations must be safe for
// concurrent use and must return an error rather than an empty result when
// their backend is unavailable.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, text string) ([]Span, error)
}

var labels = map[string]Category{
	"PER":          CategoryPerson,
	"PERSON":       CategoryPerson,
	"NAME":         CategoryPerson,
	"LOC":          CategoryLocation,
	"GPE":          CategoryLocation,
	"LOCATION":     CategoryLocation,
	"FAC":          CategoryAddress,
	"ADDRESS":      CategoryAddress,
	"ORG":          CategoryOrganization,
	"ORGANIZATION": CategoryOrganization,
	"EMAIL":        CategoryEmail,
	"PHONE":        CategoryPhone,
	"PHONE_NUMBER": CategoryPhone,
	"URL":          CategoryURL,
	"DATE":         CategoryDate,
	"DOB":          CategoryDate,
}

// CategoryFromLabel maps an entity label reported by a recognition backend
// to a Category. Labels that do not denote identifying data (MISC, PRODUCT,
// LANGUAGE and the like) report false.
func CategoryFromLabel(label string) (Category, bool) {
	c, ok := labels[strings.ToUpper(strings.TrimSpace(label))]
	return c, ok
}
