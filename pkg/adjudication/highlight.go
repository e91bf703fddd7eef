package adjudication

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode"

	"github.com/synaptica-ai/chartreview/pkg/common/models"
)

const (
	markOpen  = "<b><mark>"
	markClose = "</mark></b>"
	lineBreak = "<br>"
)

// GetHighlightedText marks every annotation span of the note. Spans that
// start inside an already marked span are dropped.
func GetHighlightedText(note models.Note, annotations []models.Annotation) (string, error) {
	text := []rune(note.Text)
	var b strings.Builder
	prevEnd := 0

	for _, a := range sortedByNoteStart(annotations) {
		if a.NoteStartIndex < prevEnd {
			continue
		}
		if a.NoteEndIndex > len(text) || a.NoteStartIndex > a.NoteEndIndex {
			return "", fmt.Errorf("annotation %s [%d,%d) in note %s of length %d: %w",
				a.ID, a.NoteStartIndex, a.NoteEndIndex, note.NoteID, len(text), ErrSpanOutOfRange)
		}
		writePlain(&b, text[prevEnd:a.NoteStartIndex])
		writeMarked(&b, text[a.NoteStartIndex:a.NoteEndIndex])
		prevEnd = a.NoteEndIndex
	}
	writePlain(&b, text[prevEnd:])

	return b.String(), nil
}

// GetHighlightedSentence renders the sentence of current as it appears in the
// note, marking the annotations that fall inside it. An annotation at the very
// start of the sentence is never dropped for overlap.
func GetHighlightedSentence(current models.Annotation, note models.Note, annotations []models.Annotation) (string, error) {
	text := []rune(note.Text)
	sentence := []rune(current.Sentence)
	if len(strings.TrimSpace(current.Sentence)) == 0 {
		return "", fmt.Errorf("annotation %s has an empty sentence: %w", current.ID, ErrSentenceNotFound)
	}

	sentenceStart := indexFold(text, sentence)
	if sentenceStart < 0 {
		return "", fmt.Errorf("annotation %s in note %s: %w", current.ID, note.NoteID, ErrSentenceNotFound)
	}
	window := text[sentenceStart : sentenceStart+len(sentence)]

	var b strings.Builder
	prevEnd := 0
	for _, a := range sortedByNoteStart(annotations) {
		start := a.NoteStartIndex - sentenceStart
		end := a.NoteEndIndex - sentenceStart
		if start < 0 || end > len(window) || start > end {
			continue
		}
		if start < prevEnd {
			if start != 0 || end <= prevEnd {
				continue
			}
			start = prevEnd
		}
		writePlain(&b, window[prevEnd:start])
		writeMarked(&b, window[start:end])
		prevEnd = end
	}
	writePlain(&b, window[prevEnd:])

	return b.String(), nil
}

func sortedByNoteStart(annotations []models.Annotation) []models.Annotation {
	out := append([]models.Annotation{}, annotations...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NoteStartIndex < out[j].NoteStartIndex
	})
	return out
}

func writePlain(b *strings.Builder, segment []rune) {
	b.WriteString(displayText(segment))
}

func writeMarked(b *strings.Builder, segment []rune) {
	b.WriteString(markOpen)
	b.WriteString(displayText(segment))
	b.WriteString(markClose)
}

func displayText(segment []rune) string {
	escaped := html.EscapeString(string(segment))
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", lineBreak)
}

// indexFold is a case-insensitive rune search; it keeps rune offsets aligned
// with the original text, unlike lowering whole strings.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
