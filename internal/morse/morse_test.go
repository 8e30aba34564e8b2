package morse

import "testing"

func TestPattern_Letters(t *testing.T) {
	tests := []struct {
		char rune
		want string
	}{
		{'E', "."},
		{'T', "-"},
		{'A', ".-"},
		{'N', "-."},
		{'S', "..."},
		{'O', "---"},
		{'K', "-.-"},
		{'Q', "--.-"},
		{'Y', "-.--"},
		{'Z', "--.."},
	}

	for _, tt := range tests {
		t.Run(string(tt.char), func(t *testing.T) {
			got, ok := Pattern(tt.char)
			if !ok {
				t.Fatalf("Pattern(%q) not found", tt.char)
			}
			if got != tt.want {
				t.Errorf("Pattern(%q) = %q, want %q", tt.char, got, tt.want)
			}
		})
	}
}

func TestPattern_LowerCase(t *testing.T) {
	got, ok := Pattern('a')
	if !ok || got != ".-" {
		t.Errorf("Pattern('a') = %q, %v, want \".-\", true", got, ok)
	}
}

func TestPattern_NumbersAndPunctuation(t *testing.T) {
	tests := []struct {
		char rune
		want string
	}{
		{'0', "-----"},
		{'1', ".----"},
		{'5', "....."},
		{'9', "----."},
		{'/', "-..-."},
		{'=', "-...-"},
		{'.', ".-.-.-"},
		{',', "--..--"},
		{'?', "..--.."},
	}

	for _, tt := range tests {
		got, ok := Pattern(tt.char)
		if !ok {
			t.Errorf("Pattern(%q) not found", tt.char)
			continue
		}
		if got != tt.want {
			t.Errorf("Pattern(%q) = %q, want %q", tt.char, got, tt.want)
		}
	}
}

func TestPattern_Unknown(t *testing.T) {
	for _, r := range []rune{'#', '~', 0, 'é'} {
		if _, ok := Pattern(r); ok {
			t.Errorf("Pattern(%q) found, want not found", r)
		}
	}
}

func TestPattern_TreeCharactersAreUnique(t *testing.T) {
	seen := make(map[string]rune)
	for i := 2; i < len(Tree); i++ {
		if Tree[i] == 0 {
			continue
		}
		p, ok := Pattern(Tree[i])
		if !ok {
			t.Fatalf("Pattern(%q) not found", Tree[i])
		}
		if prev, dup := seen[p]; dup {
			t.Errorf("Pattern(%q) = %q, same as %q", Tree[i], p, prev)
		}
		seen[p] = Tree[i]
	}
}
