// Package normalize maps provider-specific JSON into the internal
// SearchResult shape and computes the derived fields (normalizedTitle,
// primaryAuthor, fingerprint) shared by both the search path and the
// ingestion/duplicate-detection path. It is pure and stateless: no network,
// no database, no HTML parsing (injection-safe by construction).
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bytedance/sonic"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/model"
)

// KnownProviders is the closed set of provider names Normalize accepts.
var KnownProviders = map[string]bool{
	"primary":   true,
	"secondary": true,
}

// jsonAPI holds the standard sonic configuration. Nothing in the module
// reads it: Normalize parses payloads with oj.Parse, and the provider
// adapters call sonic.Marshal directly.
var jsonAPI = sonic.ConfigStd

// Normalize maps a raw provider payload into a model.SearchResult.
// providerName must be one of KnownProviders.
func Normalize(providerName string, raw []byte) (model.SearchResult, error) {
	if !KnownProviders[providerName] {
		return model.SearchResult{}, apperr.New(apperr.KindValidation, "unknown provider: "+providerName)
	}

	doc, err := oj.Parse(raw)
	if err != nil {
		return model.SearchResult{}, apperr.Wrap(apperr.KindProviderPermanent, "malformed provider payload", err)
	}

	var res model.SearchResult
	switch providerName {
	case "primary":
		res = normalizePrimary(doc)
	case "secondary":
		res = normalizeSecondary(doc)
	}

	res.Provider = providerName
	res.Title = strings.TrimSpace(res.Title)
	res.ISBN10, res.ISBN13 = cleanISBN(res.ISBN10), cleanISBN(res.ISBN13)

	return res, nil
}

// field extracts the first string value matched by path from doc, or "".
func field(doc any, path string) string {
	x, err := jp.ParseString(path)
	if err != nil {
		return ""
	}
	got := x.Get(doc)
	if len(got) == 0 {
		return ""
	}
	s, _ := got[0].(string)
	return s
}

func fieldFloat(doc any, path string) float64 {
	x, err := jp.ParseString(path)
	if err != nil {
		return 0
	}
	got := x.Get(doc)
	if len(got) == 0 {
		return 0
	}
	switch v := got[0].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func normalizePrimary(doc any) model.SearchResult {
	var res model.SearchResult
	res.ProviderID = field(doc, "$.id")
	res.Title = field(doc, "$.volumeInfo.title")
	res.Subtitle = field(doc, "$.volumeInfo.subtitle")
	res.Publisher = field(doc, "$.volumeInfo.publisher")
	res.Description = field(doc, "$.volumeInfo.description")
	res.Language = field(doc, "$.volumeInfo.language")
	res.CoverImageURL = field(doc, "$.volumeInfo.imageLinks.thumbnail")
	res.PageCount = int(fieldFloat(doc, "$.volumeInfo.pageCount"))
	res.PublicationDate = parseDate(field(doc, "$.volumeInfo.publishedDate"))

	for _, a := range listStrings(doc, "$.volumeInfo.authors") {
		res.Authors = append(res.Authors, a)
	}
	for _, c := range listStrings(doc, "$.volumeInfo.categories") {
		res.Categories = append(res.Categories, c)
	}

	x, _ := jp.ParseString("$.volumeInfo.industryIdentifiers[*]")
	for _, ident := range x.Get(doc) {
		m, ok := ident.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		val, _ := m["identifier"].(string)
		switch typ {
		case "ISBN_13":
			res.ISBN13 = val
		case "ISBN_10":
			res.ISBN10 = val
		}
	}
	return res
}

func normalizeSecondary(doc any) model.SearchResult {
	var res model.SearchResult
	res.ProviderID = field(doc, "$.key")
	res.Title = field(doc, "$.title")
	res.Subtitle = field(doc, "$.subtitle")
	res.Publisher = first(listStrings(doc, "$.publishers"))
	res.Description = descriptionOf(doc)
	res.CoverImageURL = field(doc, "$.cover.medium")
	res.PageCount = int(fieldFloat(doc, "$.number_of_pages"))
	res.PublicationDate = parseDate(field(doc, "$.publish_date"))
	res.Authors = listStrings(doc, "$.author_names")
	res.Categories = listStrings(doc, "$.subjects")
	res.ISBN13 = first(listStrings(doc, "$.isbn_13"))
	res.ISBN10 = first(listStrings(doc, "$.isbn_10"))
	return res
}

func descriptionOf(doc any) string {
	if s := field(doc, "$.description"); s != "" {
		return s
	}
	return field(doc, "$.description.value")
}

func listStrings(doc any, path string) []string {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil
	}
	got := x.Get(doc)
	out := make([]string, 0, len(got))
	for _, v := range got {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func cleanISBN(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == 'X' || r == 'x' {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006", "Jan 2, 2006", "January 2, 2006"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// NormalizedTitle lowercases title and strips punctuation, collapsing
// whitespace, per spec.
func NormalizedTitle(title string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && b.Len() > 0 {
				b.WriteRune(' ')
				prevSpace = true
			}
		default:
			// punctuation: stripped entirely, not replaced with a space
		}
	}
	return strings.TrimSpace(b.String())
}

// PrimaryAuthor returns the first author from a list, trimmed, or "" for an
// empty list. A combined author string is handled by PrimaryAuthorFromField.
func PrimaryAuthor(authors []string) string {
	if len(authors) > 0 {
		return strings.TrimSpace(authors[0])
	}
	return ""
}

// PrimaryAuthorFromField splits a combined author string on the first ','
// or ';'.
func PrimaryAuthorFromField(authorField string) string {
	idx := strings.IndexAny(authorField, ",;")
	if idx == -1 {
		return strings.TrimSpace(authorField)
	}
	return strings.TrimSpace(authorField[:idx])
}

// Year extracts the calendar year from t, or "" if t is nil.
func Year(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.Itoa(t.Year())
}

// Fingerprint computes the SHA-256 hex digest of
// normalizedTitle || "||" || primaryAuthor || "||" || year.
func Fingerprint(normalizedTitle, primaryAuthor, year string) string {
	joined := normalizedTitle + "||" + primaryAuthor + "||" + year
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
