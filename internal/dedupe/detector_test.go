package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/dedupe"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/normalize"
)

type fakeRepo struct {
	byISBN13     map[string]*model.Book
	byISBN10     map[string]*model.Book
	byFingerprint map[string][]model.Book
	fuzzy        []model.Book
	trigramOK    bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byISBN13:      map[string]*model.Book{},
		byISBN10:      map[string]*model.Book{},
		byFingerprint: map[string][]model.Book{},
		trigramOK:     true,
	}
}

func (f *fakeRepo) FindByISBN13(_ context.Context, isbn13 string) (*model.Book, error) {
	return f.byISBN13[isbn13], nil
}

func (f *fakeRepo) FindByISBN10(_ context.Context, isbn10 string) (*model.Book, error) {
	return f.byISBN10[isbn10], nil
}

func (f *fakeRepo) FindByFingerprint(_ context.Context, fp string) ([]model.Book, error) {
	return f.byFingerprint[fp], nil
}

func (f *fakeRepo) FuzzyCandidates(_ context.Context, yearLow, yearHigh int) ([]model.Book, error) {
	if !f.trigramOK {
		return nil, dedupe.ErrTrigramUnsupported
	}
	var out []model.Book
	for _, b := range f.fuzzy {
		y := 0
		if b.PublicationDate != nil {
			y = b.PublicationDate.Year()
		}
		if y >= yearLow && y <= yearHigh {
			out = append(out, b)
		}
	}
	return out, nil
}

func date(y int) *time.Time {
	t := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestDetectByISBN13(t *testing.T) {
	repo := newFakeRepo()
	existing := &model.Book{ID: "b1", Title: "1984"}
	repo.byISBN13["9780451524935"] = existing

	d := dedupe.New(repo)
	res, err := d.Detect(context.Background(), dedupe.Candidate{ISBN13: "978-0-451-52493-5"})
	require.NoError(t, err)
	assert.Equal(t, dedupe.MatchISBN13, res.MatchType)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Same(t, existing, res.Match)
}

func TestDetectByISBN10Converted(t *testing.T) {
	repo := newFakeRepo()
	existing := &model.Book{ID: "b1", Title: "1984"}
	isbn13, ok := dedupe.ISBN10To13("0451524934")
	require.True(t, ok)
	repo.byISBN13[isbn13] = existing

	d := dedupe.New(repo)
	res, err := d.Detect(context.Background(), dedupe.Candidate{ISBN10: "0451524934"})
	require.NoError(t, err)
	assert.Equal(t, dedupe.MatchISBN10to13, res.MatchType)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestDetectByFingerprint(t *testing.T) {
	repo := newFakeRepo()
	nt := normalize.NormalizedTitle("Dune")
	pa := normalize.PrimaryAuthor([]string{"Frank Herbert"})
	fp := normalize.Fingerprint(nt, pa, "1965")
	existing := model.Book{ID: "b1", Title: "Dune"}
	repo.byFingerprint[fp] = []model.Book{existing}

	d := dedupe.New(repo)
	res, err := d.Detect(context.Background(), dedupe.Candidate{
		Title: "Dune", Authors: []string{"Frank Herbert"}, PublicationYear: "1965",
	})
	require.NoError(t, err)
	assert.Equal(t, dedupe.MatchFingerprint, res.MatchType)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestDetectFuzzy(t *testing.T) {
	repo := newFakeRepo()
	existing := model.Book{
		ID:              "b1",
		NormalizedTitle: normalize.NormalizedTitle("The Great Gatsby"),
		PrimaryAuthor:   normalize.PrimaryAuthor([]string{"F. Scott Fitzgerald"}),
		PublicationDate: date(1925),
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	repo.fuzzy = []model.Book{existing}

	d := dedupe.New(repo)
	res, err := d.Detect(context.Background(), dedupe.Candidate{
		Title:           "Great Gatsby",
		Authors:         []string{"F Scott Fitzgerald"},
		PublicationYear: "1926",
	})
	require.NoError(t, err)
	assert.Equal(t, dedupe.MatchFuzzy, res.MatchType)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
}

func TestDetectNoMatch(t *testing.T) {
	repo := newFakeRepo()
	d := dedupe.New(repo)
	res, err := d.Detect(context.Background(), dedupe.Candidate{Title: "Something Unique", Authors: []string{"Nobody"}})
	require.NoError(t, err)
	assert.Equal(t, dedupe.MatchNone, res.MatchType)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestDetectTrigramUnsupportedFallsBackToNone(t *testing.T) {
	repo := newFakeRepo()
	repo.trigramOK = false
	d := dedupe.New(repo)
	res, err := d.Detect(context.Background(), dedupe.Candidate{Title: "Whatever", Authors: []string{"Someone"}})
	require.NoError(t, err)
	assert.Equal(t, dedupe.MatchNone, res.MatchType)
}

func TestDetectEmptyAuthorsDeterministic(t *testing.T) {
	repo := newFakeRepo()
	d := dedupe.New(repo)
	res1, err1 := d.Detect(context.Background(), dedupe.Candidate{Title: "No Author Book"})
	res2, err2 := d.Detect(context.Background(), dedupe.Candidate{Title: "No Author Book"})
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, res1, res2)
}

func TestValidISBN10Checksum(t *testing.T) {
	assert.True(t, dedupe.ValidISBN10("0451524934"))
	assert.False(t, dedupe.ValidISBN10("0451524935"))
}

func TestValidISBN13Checksum(t *testing.T) {
	assert.True(t, dedupe.ValidISBN13("9780451524935"))
	assert.False(t, dedupe.ValidISBN13("9780451524936"))
}
