package sqltext

import "testing"

func TestTerminatorSkipsQuotesAndComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{name: "plain", in: "SELECT 1; SELECT 2", want: 8},
		{name: "single quoted", in: "SELECT ';' ; x", want: 11},
		{name: "escaped quote", in: "SELECT 'it''s;' ;", want: 16},
		{name: "double quoted", in: `SELECT "a;b" FROM t;`, want: 19},
		{name: "line comment", in: "SELECT 1 -- done;\n;", want: 18},
		{name: "block comment", in: "SELECT /* ; */ 1;", want: 16},
		{name: "none", in: "SELECT 1", want: -1},
		{name: "unterminated quote", in: "SELECT 'abc;", want: -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Terminator(tc.in); got != tc.want {
				t.Fatalf("Terminator(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "SELECT *\n  FROM products;", want: "SELECT * FROM products;"},
		{in: "SELECT * FROM t -- trailing\n", want: "SELECT * FROM t;"},
		{in: "SELECT /* inline */ a FROM t;;", want: "SELECT a FROM t;"},
		{in: "SELECT 'two  spaces' FROM t", want: "SELECT 'two  spaces' FROM t;"},
		{in: "  ;;  ", want: ""},
		{in: "-- only a comment", want: ""},
	}
	for _, tc := range tests {
		if got := Sanitize(tc.in); got != tc.want {
			t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSegmentsCoverInput(t *testing.T) {
	in := "SELECT 'a' /* b */ \"c\" -- d\nFROM t"
	var rebuilt string
	for _, segment := range Segments(in) {
		if in[segment.Start:segment.Start+len(segment.Text)] != segment.Text {
			t.Fatalf("segment %+v does not match input offset", segment)
		}
		rebuilt += segment.Text
	}
	if rebuilt != in {
		t.Fatalf("segments rebuild %q, want %q", rebuilt, in)
	}
}

func TestStatementsSplitOutsideQuotes(t *testing.T) {
	got := Statements("SELECT ';' FROM t; -- note\n; DELETE FROM users WHERE user_id = ?")
	if len(got) != 2 {
		t.Fatalf("Statements() = %q, want 2 parts", got)
	}
	if got[0] != "SELECT ';' FROM t" || got[1] != " DELETE FROM users WHERE user_id = ?" {
		t.Fatalf("Statements() = %q", got)
	}
}

func TestWordsSkipQuotesAndPunctuation(t *testing.T) {
	got := Words(`UPDATE products SET price = price ^ 2, name = 'a b' /* x */ WHERE id IN (1,2)`)
	want := []string{"UPDATE", "products", "SET", "price", "price", "2", "name", "WHERE", "id", "IN", "(", "1", "2", ")"}
	if len(got) != len(want) {
		t.Fatalf("Words() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Words()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
