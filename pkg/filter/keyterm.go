package filter

import (
	"regexp"
	"strings"
	"unicode"
)

var bracketRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "for": true, "with": true, "by": true, "at": true,
	"to": true, "from": true, "set": true, "pack": true, "new": true,
	"update": true, "page": true, "part": true, "vol": true, "ver": true,
	"chapter": true, "preview": true, "sketch": true, "wip": true,
	"high": true, "res": true, "hd": true, "version": true,
}

// ExtractKeyTerm pulls the most likely character or subject name out of a
// post title that no filter matched. Bracketed and parenthesized runs are
// dropped first. Capitalized words win over plain ones; all-caps words are
// treated as tags rather than names.
func ExtractKeyTerm(title string) string {
	cleaned := bracketRe.ReplaceAllString(title, " ")

	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var bestCapitalized string
	for _, word := range words {
		if len(word) <= 2 {
			continue
		}
		if stopWords[strings.ToLower(word)] {
			continue
		}
		runes := []rune(word)
		if !unicode.IsUpper(runes[0]) {
			continue
		}
		if strings.ToUpper(word) == word {
			continue
		}
		if len(word) > len(bestCapitalized) {
			bestCapitalized = word
		}
	}
	if bestCapitalized != "" {
		return bestCapitalized
	}

	var longest string
	for _, word := range words {
		if len(word) <= 3 {
			continue
		}
		if stopWords[strings.ToLower(word)] {
			continue
		}
		if len(word) > len(longest) {
			longest = word
		}
	}
	return longest
}
