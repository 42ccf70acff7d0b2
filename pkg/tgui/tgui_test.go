package tgui

import "testing"

func TestHTMLHelpersEscape(t *testing.T) {
	t.Parallel()
	cases := []struct {
		got  H
		want string
	}{
		{Esc("a<b>&c"), "a&lt;b&gt;&amp;c"},
		{B("<x>"), "<b>&lt;x&gt;</b>"},
		{Code("/help <cmd>"), "<code>/help &lt;cmd&gt;</code>"},
		{Pre("a & b"), "<pre>a &amp; b</pre>"},
		{JoinH(" ", B("x"), "", I("y")), "<b>x</b> <i>y</i>"},
		{Lines(B("t"), "", "z"), "<b>t</b>\n\nz"},
	}
	for _, tc := range cases {
		if tc.got.String() != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "he…"},
		{"Сұлтан", 4, "Сұл…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
