// Package glossary loads user supplied term translations that the LLM
// translator is told to respect.
package glossary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Glossary maps source terms to their fixed translation.
type Glossary map[string]string

// Term is one glossary entry.
type Term struct {
	Source string
	Target string
}

// Match returns the entries whose source term occurs in text, ordered by
// source term. Matching is case sensitive, which suits names.
func (g Glossary) Match(text string) []Term {
	var ret []Term
	for source, target := range g {
		if source != "" && strings.Contains(text, source) {
			ret = append(ret, Term{Source: source, Target: target})
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Source < ret[j].Source })
	return ret
}

// Filename is the glossary file name for a language pair, using base
// language codes: glossary.en-vi.json.
func Filename(sourceLang, targetLang string) string {
	return "glossary." + baseCode(sourceLang) + "-" + baseCode(targetLang) + ".json"
}

// Find returns the first glossary file for the pair found in dirs, or "".
func Find(dirs []string, sourceLang, targetLang string) string {
	name := Filename(sourceLang, targetLang)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load reads a glossary from a JSON object of source to target terms.
func Load(path string) (Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g Glossary
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("invalid glossary %s: %w", path, err)
	}
	return g, nil
}

func baseCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
