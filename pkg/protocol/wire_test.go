package protocol

import "testing"

func TestQuoteNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"untouched", `{"speed":0.5}`, `{"speed":0.5}`},
		{"bare nan", `{"x":NaN}`, `{"x":"NaN"}`},
		{"bare infinity", `{"x":Infinity}`, `{"x":"Infinity"}`},
		{"negative infinity", `{"x":-Infinity}`, `{"x":"-Infinity"}`},
		{"array", `[NaN,1,-Infinity]`, `["NaN",1,"-Infinity"]`},
		{"inside string untouched", `{"status":"NaN","x":NaN}`, `{"status":"NaN","x":"NaN"}`},
		{"escaped quote in string", `{"note":"say \"NaN\"","x":Infinity}`, `{"note":"say \"NaN\"","x":"Infinity"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(quoteNonFinite([]byte(tt.in)))
			if got != tt.want {
				t.Errorf("quoteNonFinite(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
