package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/normalize"
)

func TestNormalizedTitle(t *testing.T) {
	assert.Equal(t, "1984", normalize.NormalizedTitle("1984"))
	assert.Equal(t, "the great gatsby", normalize.NormalizedTitle("The Great Gatsby!"))
	assert.Equal(t, "foundation", normalize.NormalizedTitle("  Foundation  "))
	assert.Equal(t, "war peace", normalize.NormalizedTitle("War & Peace"))
}

func TestPrimaryAuthor(t *testing.T) {
	assert.Equal(t, "George Orwell", normalize.PrimaryAuthor([]string{"George Orwell", "Someone Else"}))
	assert.Equal(t, "", normalize.PrimaryAuthor(nil))
	assert.Equal(t, "F. Scott Fitzgerald", normalize.PrimaryAuthorFromField("F. Scott Fitzgerald, Editor"))
	assert.Equal(t, "Jane Austen", normalize.PrimaryAuthorFromField("Jane Austen; with notes"))
	assert.Equal(t, "Solo Author", normalize.PrimaryAuthorFromField("Solo Author"))
}

func TestFingerprintDeterministic(t *testing.T) {
	fp1 := normalize.Fingerprint("1984", "george orwell", "1949")
	fp2 := normalize.Fingerprint("1984", "george orwell", "1949")
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)

	fp3 := normalize.Fingerprint("1984", "george orwell", "")
	assert.NotEqual(t, fp1, fp3)
}

func TestYear(t *testing.T) {
	assert.Equal(t, "", normalize.Year(nil))
	tm := time.Date(1949, time.June, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "1949", normalize.Year(&tm))
}

func TestNormalizeUnknownProvider(t *testing.T) {
	_, err := normalize.Normalize("tertiary", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestNormalizePrimary(t *testing.T) {
	raw := []byte(`{
		"id": "abc123",
		"volumeInfo": {
			"title": "Nineteen Eighty-Four",
			"subtitle": "",
			"authors": ["George Orwell"],
			"publisher": "Secker & Warburg",
			"publishedDate": "1949-06-08",
			"pageCount": 328,
			"categories": ["Fiction"],
			"language": "en",
			"industryIdentifiers": [
				{"type": "ISBN_13", "identifier": "9780451524935"},
				{"type": "ISBN_10", "identifier": "0451524934"}
			],
			"imageLinks": {"thumbnail": "http://example.com/cover.jpg"},
			"description": "A dystopian novel."
		}
	}`)

	res, err := normalize.Normalize("primary", raw)
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.ProviderID)
	assert.Equal(t, "Nineteen Eighty-Four", res.Title)
	assert.Equal(t, []string{"George Orwell"}, res.Authors)
	assert.Equal(t, "9780451524935", res.ISBN13)
	assert.Equal(t, "0451524934", res.ISBN10)
	assert.Equal(t, 328, res.PageCount)
	require.NotNil(t, res.PublicationDate)
	assert.Equal(t, 1949, res.PublicationDate.Year())
	assert.Equal(t, "primary", res.Provider)
}

func TestNormalizeSecondary(t *testing.T) {
	raw := []byte(`{
		"key": "/works/OL1W",
		"title": "Foundation",
		"author_names": ["Isaac Asimov"],
		"publish_date": "1951",
		"number_of_pages": 255,
		"isbn_13": ["9780553293357"],
		"publishers": ["Gnome Press"],
		"description": "A galactic empire falls."
	}`)

	res, err := normalize.Normalize("secondary", raw)
	require.NoError(t, err)
	assert.Equal(t, "Foundation", res.Title)
	assert.Equal(t, "9780553293357", res.ISBN13)
	assert.Equal(t, "Gnome Press", res.Publisher)
	assert.Equal(t, "secondary", res.Provider)
}

func TestNormalizeIdempotent(t *testing.T) {
	nt1 := normalize.NormalizedTitle("The Great Gatsby!!")
	nt2 := normalize.NormalizedTitle(nt1)
	assert.Equal(t, nt1, nt2)
}
