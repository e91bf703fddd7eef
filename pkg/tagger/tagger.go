package tagger

import (
	"fmt"
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/synaptica-ai/chartreview/pkg/common/models"
	"github.com/synaptica-ai/chartreview/pkg/observability/metrics"
)

// annotationNamespace seeds deterministic annotation ids, so re-tagging a
// note yields the ids already stored.
var annotationNamespace = uuid.MustParse("6f1c2d4e-8a7b-4c3d-9e0f-1a2b3c4d5e6f")

type compiledPattern struct {
	pattern Pattern
	re      *regexp.Regexp
}

type Tagger struct {
	patterns []compiledPattern
}

func NewTagger(set PatternSet) (*Tagger, error) {
	var compiled []compiledPattern
	for _, p := range set.Patterns {
		if !p.Enabled {
			continue
		}
		if p.Name == "" {
			return nil, fmt.Errorf("pattern %q has no name", p.Expression)
		}
		re, err := regexp.Compile("(?i)" + p.Expression)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		compiled = append(compiled, compiledPattern{pattern: p, re: re})
	}
	return &Tagger{patterns: compiled}, nil
}

// sentence is a span of the note in rune offsets.
type sentence struct {
	text  string
	start int
}

// Tag finds every pattern occurrence in the note. Offsets are rune based; a
// span matched by several patterns is reported once.
func (t *Tagger) Tag(note models.Note) []models.Annotation {
	if t == nil {
		return nil
	}

	type span struct{ start, end int }
	seen := make(map[span]struct{})
	var annotations []models.Annotation

	for _, s := range splitSentences(note.Text) {
		for _, p := range t.patterns {
			matches := p.re.FindAllStringIndex(s.text, -1)
			count := 0
			for _, m := range matches {
				start := utf8.RuneCountInString(s.text[:m[0]])
				end := start + utf8.RuneCountInString(s.text[m[0]:m[1]])
				key := span{s.start + start, s.start + end}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				count++

				annotations = append(annotations, models.Annotation{
					ID:             annotationID(note.NoteID, key.start, key.end),
					NoteID:         note.NoteID,
					PatientID:      note.PatientID,
					Sentence:       s.text,
					StartIndex:     start,
					EndIndex:       end,
					NoteStartIndex: key.start,
					NoteEndIndex:   key.end,
				})
			}
			if count > 0 {
				metrics.ObserveTagged(p.pattern.Name, count)
			}
		}
	}

	sort.SliceStable(annotations, func(i, j int) bool {
		return annotations[i].NoteStartIndex < annotations[j].NoteStartIndex
	})
	return annotations
}

func annotationID(noteID string, start, end int) string {
	return uuid.NewSHA1(annotationNamespace, []byte(fmt.Sprintf("%s:%d:%d", noteID, start, end))).String()
}

// splitSentences cuts after '.', '!' and '?' and at line breaks, trimming
// surrounding whitespace. Empty sentences are dropped.
func splitSentences(text string) []sentence {
	runes := []rune(text)
	var out []sentence
	begin := 0

	emit := func(from, to int) {
		for from < to && unicode.IsSpace(runes[from]) {
			from++
		}
		for to > from && unicode.IsSpace(runes[to-1]) {
			to--
		}
		if from < to {
			out = append(out, sentence{text: string(runes[from:to]), start: from})
		}
	}

	for i, r := range runes {
		switch r {
		case '.', '!', '?':
			emit(begin, i+1)
			begin = i + 1
		case '\n':
			emit(begin, i)
			begin = i + 1
		}
	}
	emit(begin, len(runes))
	return out
}

// Names lists the enabled pattern names.
func (t *Tagger) Names() []string {
	names := make([]string, 0, len(t.patterns))
	for _, p := range t.patterns {
		names = append(names, p.pattern.Name)
	}
	return names
}
