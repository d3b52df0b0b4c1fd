package phonetic

import "testing"

func TestEncode(t *testing.T) {
	t.Parallel()

	got := Encode("ABZ")
	want := "A for Alpha, B for Bravo, Z for Zulu"
	if got != want {
		t.Errorf("Encode(ABZ): got %q, want %q", got, want)
	}
}

func TestDecodeBareCode(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"KQX", "kqx", " kQx "} {
		if got := Decode(in); got != "KQX" {
			t.Errorf("Decode(%q): got %q, want KQX", in, got)
		}
	}
}

func TestDecodeSpelledPhrase(t *testing.T) {
	t.Parallel()

	got := Decode("K for Kilo, Q for Quebec, X for X-ray")
	if got != "KQX" {
		t.Errorf("Decode(spelled): got %q, want KQX", got)
	}
}

func TestDecodePhoneticWords(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"kilo quebec x-ray": "KQX",
		"Alpha Bravo Zulu":  "ABZ",
		"mike-november-oscar": "MNO",
	}
	for in, want := range cases {
		if got := Decode(in); got != want {
			t.Errorf("Decode(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestDecodeFallback(t *testing.T) {
	t.Parallel()

	// Unparseable input degrades to an uppercased, whitespace-stripped
	// guess; lookup downstream treats a miss as not-found.
	if got := Decode("a b c d"); got != "ABCD" {
		t.Errorf("Decode fallback: got %q, want ABCD", got)
	}
	if got := Decode("alpha banana charlie"); got != "ALPHABANANACHARLIE" {
		t.Errorf("Decode fallback: got %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	// Decode(Encode(code)) == code for the full code space.
	for a := byte('A'); a <= 'Z'; a++ {
		for b := byte('A'); b <= 'Z'; b++ {
			for c := byte('A'); c <= 'Z'; c++ {
				code := string([]byte{a, b, c})
				if got := Decode(Encode(code)); got != code {
					t.Fatalf("round trip %s: got %q", code, got)
				}
			}
		}
	}
}
