package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("How often should I brush?", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS {
		t.Errorf("expected CLS %d, got %d", tokenCLS, ids[0])
	}
	if ids[6] != tokenSEP {
		t.Errorf("expected SEP after 5 words, got %d", ids[6])
	}
	if attn[7] != 0 {
		t.Error("padding should not be attended")
	}
	for i := 1; i <= 5; i++ {
		if ids[i] < 1000 {
			t.Errorf("word token %d collides with special range: %d", i, ids[i])
		}
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _, _ := tok.Tokenize("a b c d e f g h", 4)
	if len(ids) != 4 {
		t.Fatalf("len = %d", len(ids))
	}
	if ids[3] != tokenSEP {
		t.Errorf("last slot should hold SEP, got %d", ids[3])
	}
}

func TestWords(t *testing.T) {
	words := Words("  Root-canal?  Twice a DAY. ")
	want := []string{"root", "canal", "twice", "a", "day"}
	if len(words) != len(want) {
		t.Fatalf("got %v", words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d = %q, want %q", i, words[i], want[i])
		}
	}
	if len(Words("")) != 0 {
		t.Error("empty string should have no words")
	}
}

func TestHashString(t *testing.T) {
	if hashString("abc") == 0 {
		t.Error("hash should be non-zero")
	}
	if hashString("abc") != hashString("abc") {
		t.Error("hash should be deterministic")
	}
}
