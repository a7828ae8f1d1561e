package database

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/varoOP/biblestore/internal/domain"
)

// osisBooks maps OSIS book abbreviations to canonical book ids 1..66.
var osisBooks = map[string]int{
	"Gen": 1, "Exod": 2, "Lev": 3, "Num": 4, "Deut": 5,
	"Josh": 6, "Judg": 7, "Ruth": 8, "1Sam": 9, "2Sam": 10,
	"1Kgs": 11, "2Kgs": 12, "1Chr": 13, "2Chr": 14, "Ezra": 15,
	"Neh": 16, "Esth": 17, "Job": 18, "Ps": 19, "Prov": 20,
	"Eccl": 21, "Song": 22, "Isa": 23, "Jer": 24, "Lam": 25,
	"Ezek": 26, "Dan": 27, "Hos": 28, "Joel": 29, "Amos": 30,
	"Obad": 31, "Jonah": 32, "Mic": 33, "Nah": 34, "Hab": 35,
	"Zeph": 36, "Hag": 37, "Zech": 38, "Mal": 39,
	"Matt": 40, "Mark": 41, "Luke": 42, "John": 43, "Acts": 44,
	"Rom": 45, "1Cor": 46, "2Cor": 47, "Gal": 48, "Eph": 49,
	"Phil": 50, "Col": 51, "1Thess": 52, "2Thess": 53, "1Tim": 54,
	"2Tim": 55, "Titus": 56, "Phlm": 57, "Heb": 58, "Jas": 59,
	"1Pet": 60, "2Pet": 61, "1John": 62, "2John": 63, "3John": 64,
	"Jude": 65, "Rev": 66,
}

var strongPattern = regexp.MustCompile(`([HG])(\d+[A-Z]?)`)

// verseRef is a parsed OSIS reference such as "Gen.1.1" or "Gen.1.1-Gen.1.3".
type verseRef struct {
	book, chapter, start, end int
}

func parseVerseRef(ref string) (verseRef, bool) {
	first, last, isRange := strings.Cut(ref, "-")

	parts := strings.Split(first, ".")
	if len(parts) < 3 {
		return verseRef{}, false
	}
	book, ok := osisBooks[parts[0]]
	if !ok {
		return verseRef{}, false
	}
	chapter, err := strconv.Atoi(parts[1])
	if err != nil {
		return verseRef{}, false
	}
	start, err := strconv.Atoi(parts[2])
	if err != nil {
		return verseRef{}, false
	}

	r := verseRef{book: book, chapter: chapter, start: start, end: start}
	if !isRange {
		return r, true
	}

	// the end is either a full reference or a bare verse number
	end := strings.Split(last, ".")
	switch len(end) {
	case 1:
		r.end, err = strconv.Atoi(end[0])
	default:
		r.end, err = strconv.Atoi(end[len(end)-1])
	}
	if err != nil {
		return verseRef{}, false
	}
	return r, true
}

// crossReferenceWeight maps OpenBible votes into 0.3..1.0.
func crossReferenceWeight(votes int) float64 {
	return min(1.0, 0.3+(float64(votes)/100.0)*0.7)
}

func parseCrossReference(line, source string) (domain.CrossReference, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 {
		return domain.CrossReference{}, false
	}

	from, ok := parseVerseRef(strings.TrimSpace(parts[0]))
	if !ok {
		return domain.CrossReference{}, false
	}
	to, ok := parseVerseRef(strings.TrimSpace(parts[1]))
	if !ok {
		return domain.CrossReference{}, false
	}

	votes := 1
	if len(parts) > 2 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil {
			votes = v
		}
	}

	return domain.CrossReference{
		SourceBookID:     from.book,
		SourceChapter:    from.chapter,
		SourceVerseStart: from.start,
		SourceVerseEnd:   from.end,
		TargetBookID:     to.book,
		TargetChapter:    to.chapter,
		TargetVerseStart: to.start,
		TargetVerseEnd:   to.end,
		Weight:           crossReferenceWeight(votes),
		Source:           source,
	}, true
}

// parseToken reads one TAHOT/TAGNT line:
// ref#pos=flag, surface, transliteration, gloss, strong, morph, ...
func parseToken(line, language string) (domain.LanguageToken, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 5 {
		return domain.LanguageToken{}, false
	}

	refCol, _, _ := strings.Cut(strings.TrimSpace(parts[0]), "=")
	idx := strings.LastIndex(refCol, "#")
	if idx < 0 {
		return domain.LanguageToken{}, false
	}

	ref, ok := parseVerseRef(refCol[:idx])
	if !ok {
		return domain.LanguageToken{}, false
	}

	position, err := strconv.Atoi(refCol[idx+1:])
	if err != nil {
		position = 1
	}

	token := domain.LanguageToken{
		BookID:   ref.book,
		Chapter:  ref.chapter,
		Verse:    ref.start,
		Position: position,
		Surface:  parts[1],
		Gloss:    parts[3],
		Language: language,
	}

	// Hebrew numbers win over Greek ones in mixed fields
	if m := strongPattern.FindAllStringSubmatch(parts[4], -1); len(m) > 0 {
		pick := m[0]
		for _, c := range m {
			if c[1] == "H" {
				pick = c
				break
			}
		}
		token.StrongID = pick[1] + pick[2]
	}
	if len(parts) > 5 {
		token.Morph = parts[5]
	}

	return token, true
}

// scanLines calls fn for every non-empty line of path that does not start
// with one of the comment prefixes.
func scanLines(path string, comments string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "unable to open source")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.ContainsAny(line[:1], comments) {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "error reading source")
}

func importCrossReferences(ctx context.Context, tx *Tx, src domain.CrossReferenceSource) (imported, skipped int, err error) {
	source := src.Source
	if source == "" {
		source = "openbible"
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cross_references
		(source_book_id, source_chapter, source_verse_start, source_verse_end,
		 target_book_id, target_chapter, target_verse_start, target_verse_end, weight, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, errors.Wrap(err, "error preparing insert")
	}
	defer stmt.Close()

	header := true
	err = scanLines(src.Path, "#", func(line string) error {
		if header {
			header = false
			if strings.Contains(line, "From Verse") || strings.Contains(line, "Votes") {
				return nil
			}
		}

		ref, ok := parseCrossReference(line, source)
		if !ok {
			skipped++
			return nil
		}

		if _, err := stmt.ExecContext(ctx,
			ref.SourceBookID, ref.SourceChapter, ref.SourceVerseStart, ref.SourceVerseEnd,
			ref.TargetBookID, ref.TargetChapter, ref.TargetVerseStart, ref.TargetVerseEnd,
			ref.Weight, ref.Source); err != nil {
			return errors.Wrap(err, "error executing query")
		}
		imported++
		return nil
	})
	return imported, skipped, err
}

func importMorphology(ctx context.Context, tx *Tx, src domain.MorphologySource) (imported, skipped int, err error) {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO language_tokens
		(book_id, chapter, verse, position, surface, lemma, morph, strong_id, gloss, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, errors.Wrap(err, "error preparing insert")
	}
	defer stmt.Close()

	err = scanLines(src.Path, "#$", func(line string) error {
		token, ok := parseToken(line, src.Language)
		if !ok {
			skipped++
			return nil
		}

		if _, err := stmt.ExecContext(ctx,
			token.BookID, token.Chapter, token.Verse, token.Position, token.Surface,
			nullString(token.Lemma), nullString(token.Morph), nullString(token.StrongID), nullString(token.Gloss),
			token.Language); err != nil {
			return errors.Wrap(err, "error executing query")
		}
		imported++
		return nil
	})
	return imported, skipped, err
}

// fileChecksum returns the hex MD5 digest of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "unable to open checksum source")
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "unable to read checksum source")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
