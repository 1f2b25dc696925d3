package redteam

import "unicode"

// swapPositions lists the rune indices where text[i] and text[i+1] are
// distinct letters of the same word; swapping there always produces a
// visible perturbation.
func swapPositions(runes []rune) []int {
	var out []int
	for i := 0; i+1 < len(runes); i++ {
		a, b := runes[i], runes[i+1]
		if unicode.IsLetter(a) && unicode.IsLetter(b) && a != b {
			out = append(out, i)
		}
	}
	return out
}

// CharSwap returns the prompt with one adjacent character pair swapped
// inside a word. The position is derived from seed and iteration so
// successive iterations of an attack produce distinct variants while
// staying reproducible.
func CharSwap(text string, seed int64, iteration int) string {
	runes := []rune(text)
	positions := swapPositions(runes)
	if len(positions) == 0 {
		return text
	}
	pick := int((seed + int64(iteration)) % int64(len(positions)))
	if pick < 0 {
		pick += len(positions)
	}
	i := positions[pick]
	runes[i], runes[i+1] = runes[i+1], runes[i]
	return string(runes)
}

// homoglyphs maps ASCII letters to visually confusable Unicode
// counterparts (mostly Cyrillic).
var homoglyphs = map[rune]rune{
	'a': 'а', 'c': 'с', 'e': 'е', 'i': 'і', 'o': 'о',
	'p': 'р', 's': 'ѕ', 'x': 'х', 'y': 'у',
	'A': 'А', 'B': 'В', 'C': 'С', 'E': 'Е', 'H': 'Н',
	'K': 'К', 'M': 'М', 'O': 'О', 'P': 'Р', 'T': 'Т', 'X': 'Х',
}

// Homoglyph replaces one substitutable character with its lookalike,
// chosen deterministically from seed and iteration.
func Homoglyph(text string, seed int64, iteration int) string {
	runes := []rune(text)
	var positions []int
	for i, r := range runes {
		if _, ok := homoglyphs[r]; ok {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return text
	}
	pick := int((seed + int64(iteration)) % int64(len(positions)))
	if pick < 0 {
		pick += len(positions)
	}
	i := positions[pick]
	runes[i] = homoglyphs[runes[i]]
	return string(runes)
}
