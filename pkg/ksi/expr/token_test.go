package expr

import "testing"

func TestLex_KeywordsBeforeIdentifiers(t *testing.T) {
	// "in" and "not" must lex as operators, while identifiers that
	// merely contain them ("inner", "nothing") must not.
	tokens, err := lex("inner not in nothing")
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}

	want := []tokenKind{tokenIdent, tokenNot, tokenIn, tokenIdent, tokenEOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, kind := range want {
		if tokens[i].kind != kind {
			t.Errorf("token %d: got %v, want %v", i, tokens[i].kind, kind)
		}
	}
}

func TestLex_LongestMatchOperators(t *testing.T) {
	tests := []struct {
		input string
		want  []tokenKind
	}{
		{"a <= b", []tokenKind{tokenIdent, tokenLe, tokenIdent, tokenEOF}},
		{"a < b", []tokenKind{tokenIdent, tokenLt, tokenIdent, tokenEOF}},
		{"a >= b", []tokenKind{tokenIdent, tokenGe, tokenIdent, tokenEOF}},
		{"a == b", []tokenKind{tokenIdent, tokenEq, tokenIdent, tokenEOF}},
		{"a != b", []tokenKind{tokenIdent, tokenNe, tokenIdent, tokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := lex(tt.input)
			if err != nil {
				t.Fatalf("lex error: %v", err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("got %d tokens, want %d", len(tokens), len(tt.want))
			}
			for i, kind := range tt.want {
				if tokens[i].kind != kind {
					t.Errorf("token %d: got %v, want %v", i, tokens[i].kind, kind)
				}
			}
		})
	}
}

func TestLex_StringEscapes(t *testing.T) {
	tokens, err := lex(`msg == 'it\'s fine'`)
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	if tokens[2].kind != tokenString || tokens[2].text != "it's fine" {
		t.Errorf("got %q, want %q", tokens[2].text, "it's fine")
	}
}

func TestLex_DottedIdentifier(t *testing.T) {
	tokens, err := lex("result.inner.value")
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	if tokens[0].kind != tokenIdent || tokens[0].text != "result.inner.value" {
		t.Errorf("dotted path lexed as %v %q", tokens[0].kind, tokens[0].text)
	}
}
