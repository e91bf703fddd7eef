package tagger

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Pattern is one query term. Expression is a Go regular expression and is
// always matched case-insensitively.
type Pattern struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
	Enabled    bool   `yaml:"enabled" json:"enabled"`
}

type PatternSet struct {
	Patterns []Pattern `yaml:"patterns" json:"patterns"`
}

func LoadPatternSet(path string) (PatternSet, error) {
	if path == "" {
		return DefaultPatternSet(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return PatternSet{}, err
	}

	var set PatternSet
	if err := yaml.Unmarshal(content, &set); err != nil {
		return PatternSet{}, err
	}

	if len(set.Patterns) == 0 {
		return PatternSet{}, errors.New("no tagger patterns configured")
	}

	return set, nil
}

func DefaultPatternSet() PatternSet {
	return PatternSet{Patterns: []Pattern{
		{Name: "chest_pain", Expression: `\bchest (pain|pressure|tightness)\b`, Enabled: true},
		{Name: "myocardial_infarction", Expression: `\b(myocardial infarction|heart attack|stemi|nstemi)\b`, Enabled: true},
		{Name: "stroke", Expression: `\b(stroke|cva|cerebrovascular accident)\b`, Enabled: true},
		{Name: "heart_failure", Expression: `\b(heart failure|chf)\b`, Enabled: true},
	}}
}
