// internal/morse/morse.go
// Package morse maps characters to their Morse element patterns. The bridge uses it
// to render the characters a keyer echoes back, alongside the keying it forwarded.
package morse

import "unicode"

// Element symbols used in rendered patterns.
const (
	Dit = '.'
	Dah = '-'
)

// Tree is the binary tree for Morse code lookup.
// Left branch = dit, Right branch = dah.
// Index 1 is the root; parent at i, left child at 2i, right child at 2i+1.
var Tree = [64]rune{
	0,   // 0: unused
	0,   // 1: root
	'E', // 2: .
	'T', // 3: -
	'I', // 4: ..
	'A', // 5: .-
	'N', // 6: -.
	'M', // 7: --
	'S', // 8: ...
	'U', // 9: ..-
	'R', // 10: .-.
	'W', // 11: .--
	'D', // 12: -..
	'K', // 13: -.-
	'G', // 14: --.
	'O', // 15: ---
	'H', // 16: ....
	'V', // 17: ...-
	'F', // 18: ..-.
	0,   // 19: ..--
	'L', // 20: .-..
	0,   // 21: .-.-
	'P', // 22: .--.
	'J', // 23: .---
	'B', // 24: -...
	'X', // 25: -..-
	'C', // 26: -.-.
	'Y', // 27: -.--
	'Z', // 28: --..
	'Q', // 29: --.-
	0,   // 30: ---.
	0,   // 31: ----
	'5', // 32: .....
	'4', // 33: ....-
	0,   // 34: ...-.
	'3', // 35: ...--
	0,   // 36: ..-..
	0,   // 37: ..-.-
	0,   // 38: ..--.
	'2', // 39: ..---
	0,   // 40: .-...
	0,   // 41: .-..-
	'+', // 42: .-.-. (AR)
	0,   // 43: .-.--
	0,   // 44: .--..
	0,   // 45: .--.-
	0,   // 46: .---.
	'1', // 47: .----
	'6', // 48: -....
	'=', // 49: -...- (BT)
	'/', // 50: -..-.
	0,   // 51: -..--
	0,   // 52: -.-..
	0,   // 53: -.-.-
	'(', // 54: -.--. (KN)
	0,   // 55: -.---
	'7', // 56: --...
	0,   // 57: --..-
	0,   // 58: --.-.
	0,   // 59: --.--
	'8', // 60: ---..
	0,   // 61: ---.-
	'9', // 62: ----.
	'0', // 63: -----
}

// Six-element punctuation does not fit the tree.
var long = map[rune]string{
	'.': ".-.-.-",
	',': "--..--",
	'?': "..--..",
}

var patterns = buildPatterns()

// buildPatterns walks the tree once and records the path to every character.
func buildPatterns() map[rune]string {
	out := make(map[rune]string, len(Tree)+len(long))
	for i := 2; i < len(Tree); i++ {
		if Tree[i] == 0 {
			continue
		}
		out[Tree[i]] = pathTo(i)
	}
	for r, p := range long {
		out[r] = p
	}
	return out
}

// pathTo reconstructs the element sequence leading to tree index i.
func pathTo(i int) string {
	var elems []byte
	for ; i > 1; i /= 2 {
		if i%2 == 0 {
			elems = append(elems, Dit)
		} else {
			elems = append(elems, Dah)
		}
	}
	for l, r := 0, len(elems)-1; l < r; l, r = l+1, r-1 {
		elems[l], elems[r] = elems[r], elems[l]
	}
	return string(elems)
}

// Pattern returns the element pattern for r, e.g. ".-" for 'A'. Letters are
// case-insensitive.
func Pattern(r rune) (string, bool) {
	p, ok := patterns[unicode.ToUpper(r)]
	return p, ok
}
