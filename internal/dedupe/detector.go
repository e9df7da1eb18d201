// Package dedupe implements the DuplicateDetector: given a candidate book or
// search result, find any existing canonical Book it duplicates, using
// ISBN-13 -> ISBN-10 -> fingerprint -> fuzzy trigram matching in that
// priority order, with a confidence score per match type.
package dedupe

import (
	"context"
	"sort"

	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/normalize"
)

// MatchType enumerates how a duplicate was found.
type MatchType string

const (
	MatchNone      MatchType = "none"
	MatchISBN13    MatchType = "isbn13"
	MatchISBN10    MatchType = "isbn10"
	MatchISBN10to13 MatchType = "isbn10→13"
	MatchFingerprint MatchType = "fingerprint"
	MatchFuzzy     MatchType = "fuzzy"
)

// Result is the outcome of a duplicate check.
type Result struct {
	Match      *model.Book
	MatchType  MatchType
	Confidence float64
}

// Candidate is the subset of a SearchResult/Book the detector needs.
type Candidate struct {
	Title           string
	Authors         []string
	ISBN10          string
	ISBN13          string
	PublicationYear string
}

// CandidateFromSearchResult builds a Candidate from a SearchResult.
func CandidateFromSearchResult(r model.SearchResult) Candidate {
	return Candidate{
		Title:           r.Title,
		Authors:         r.Authors,
		ISBN10:          r.ISBN10,
		ISBN13:          r.ISBN13,
		PublicationYear: normalize.Year(r.PublicationDate),
	}
}

// ErrTrigramUnsupported is returned by Repository.FuzzyCandidates when the
// underlying store has no trigram similarity facility (e.g. pg_trgm is not
// installed). The detector treats this as "no fuzzy candidates" rather than
// a hard failure, per spec: it falls back to matchType="none".
var ErrTrigramUnsupported = &unsupportedErr{}

type unsupportedErr struct{}

func (*unsupportedErr) Error() string { return "trigram similarity not supported" }

// Repository is the read-only storage seam the detector depends on. The
// production implementation lives in internal/storage and is backed by
// Postgres (its FuzzyCandidates is gated on pg_trgm being installed and
// returns a year-filtered candidate set scored here in Go); tests use an
// in-memory fake.
type Repository interface {
	FindByISBN13(ctx context.Context, isbn13 string) (*model.Book, error)
	FindByISBN10(ctx context.Context, isbn10 string) (*model.Book, error)
	FindByFingerprint(ctx context.Context, fingerprint string) ([]model.Book, error)
	// FuzzyCandidates returns books whose publication year falls within
	// [yearLow, yearHigh], for in-memory trigram scoring. Returns
	// ErrTrigramUnsupported if the store cannot support the fuzzy branch.
	FuzzyCandidates(ctx context.Context, yearLow, yearHigh int) ([]model.Book, error)
}

// Detector implements §4.5's priority chain. It never mutates state and
// tolerates candidates with missing fields.
type Detector struct {
	repo Repository
}

// New builds a Detector over repo.
func New(repo Repository) *Detector {
	return &Detector{repo: repo}
}

// Detect runs the ISBN -> fingerprint -> fuzzy chain against cand.
func (d *Detector) Detect(ctx context.Context, cand Candidate) (Result, error) {
	isbn13 := cleanDigits(cand.ISBN13)
	if isbn13 != "" && ValidISBN13(isbn13) {
		if b, err := d.repo.FindByISBN13(ctx, isbn13); err != nil {
			return Result{}, err
		} else if b != nil {
			return Result{Match: b, MatchType: MatchISBN13, Confidence: 1.0}, nil
		}
	}

	isbn10 := cleanDigits(cand.ISBN10)
	if isbn10 != "" && ValidISBN10(isbn10) {
		if b, err := d.repo.FindByISBN10(ctx, isbn10); err != nil {
			return Result{}, err
		} else if b != nil {
			return Result{Match: b, MatchType: MatchISBN10, Confidence: 1.0}, nil
		}

		if converted, ok := ISBN10To13(isbn10); ok {
			if b, err := d.repo.FindByISBN13(ctx, converted); err != nil {
				return Result{}, err
			} else if b != nil {
				return Result{Match: b, MatchType: MatchISBN10to13, Confidence: 1.0}, nil
			}
		}
	}

	normTitle := normalize.NormalizedTitle(cand.Title)
	primaryAuthor := normalize.PrimaryAuthor(cand.Authors)
	fp := normalize.Fingerprint(normTitle, primaryAuthor, cand.PublicationYear)

	matches, err := d.repo.FindByFingerprint(ctx, fp)
	if err != nil {
		return Result{}, err
	}
	if len(matches) > 0 {
		b := matches[0]
		return Result{Match: &b, MatchType: MatchFingerprint, Confidence: 0.95}, nil
	}

	return d.fuzzyMatch(ctx, normTitle, primaryAuthor, cand.PublicationYear)
}

func (d *Detector) fuzzyMatch(ctx context.Context, normTitle, primaryAuthor, year string) (Result, error) {
	const yearWindow = 2
	yearInt, hasYear := parseYear(year)

	var yearLow, yearHigh int
	if hasYear {
		yearLow, yearHigh = yearInt-yearWindow, yearInt+yearWindow
	} else {
		// No year: consider the full range; yearDiff constraint is
		// skipped for candidates with an unknown year on either side.
		yearLow, yearHigh = -9999, 9999
	}

	candidates, err := d.repo.FuzzyCandidates(ctx, yearLow, yearHigh)
	if err == ErrTrigramUnsupported {
		return Result{MatchType: MatchNone, Confidence: 0}, nil
	}
	if err != nil {
		return Result{}, err
	}

	type scored struct {
		book  model.Book
		simT  float64
		score float64
	}
	var best []scored

	for _, b := range candidates {
		simT := Similarity(normTitle, b.NormalizedTitle)
		simA := Similarity(primaryAuthor, b.PrimaryAuthor)
		if simT < 0.6 || simA < 0.6 {
			continue
		}
		if hasYear && b.PublicationDate != nil {
			by := b.PublicationDate.Year()
			diff := by - yearInt
			if diff < 0 {
				diff = -diff
			}
			if diff > yearWindow {
				continue
			}
		}
		best = append(best, scored{book: b, simT: simT, score: (simT + simA) / 2})
	}

	if len(best) == 0 {
		return Result{MatchType: MatchNone, Confidence: 0}, nil
	}

	sort.SliceStable(best, func(i, j int) bool {
		if best[i].score != best[j].score {
			return best[i].score > best[j].score
		}
		if best[i].simT != best[j].simT {
			return best[i].simT > best[j].simT
		}
		return best[i].book.CreatedAt.Before(best[j].book.CreatedAt)
	})

	top := best[0]
	if top.score < 0.8 {
		return Result{MatchType: MatchNone, Confidence: 0}, nil
	}

	b := top.book
	return Result{Match: &b, MatchType: MatchFuzzy, Confidence: top.score}, nil
}

func parseYear(y string) (int, bool) {
	if y == "" {
		return 0, false
	}
	n := 0
	for _, r := range y {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func cleanDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || c == 'X' || c == 'x' {
			if c == 'x' {
				c = 'X'
			}
			out = append(out, c)
		}
	}
	return string(out)
}
