package location

import (
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Coordinates
		ok   bool
	}{
		{"正常", `{"lat":-31.4,"lon":-64.18}`, Coordinates{-31.4, -64.18}, true},
		{"余分な項目", `{"lat":1,"lon":2,"ciudad":"X"}`, Coordinates{1, 2}, true},
		{"空", ``, Coordinates{}, false},
		{"不正なJSON", `{"lat":`, Coordinates{}, false},
		{"文字列の座標", `{"lat":"1","lon":"2"}`, Coordinates{}, false},
		{"lonなし", `{"lat":1}`, Coordinates{}, false},
		{"範囲外", `{"lat":120,"lon":2}`, Coordinates{}, false},
		{"null", `null`, Coordinates{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode([]byte(tt.raw))
			if ok != tt.ok || got != tt.want {
				t.Errorf("Decode(%s) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	raw, err := Coordinates{Lat: -34.6037, Lon: -58.3816}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"lat":-34.6037,"lon":-58.3816}` {
		t.Errorf("Encode = %s", raw)
	}
}

func TestValid(t *testing.T) {
	invalid := []Coordinates{
		{Lat: 91, Lon: 0},
		{Lat: 0, Lon: -181},
		{Lat: math.NaN(), Lon: 0},
		{Lat: 0, Lon: math.Inf(1)},
	}
	for _, c := range invalid {
		if c.Valid() {
			t.Errorf("%v should be invalid", c)
		}
	}
	if !Default.Valid() {
		t.Error("Default should be valid")
	}
}

func TestParseMapsURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Coordinates
		ok    bool
	}{
		{"@形式", "https://www.google.com/maps/@-34.6037,-58.3816,15z", Coordinates{-34.6037, -58.3816}, true},
		{"placeの@形式", "https://www.google.com/maps/place/Campo/@-31.42,-64.18,17z/data=!3m1", Coordinates{-31.42, -64.18}, true},
		{"dataの!3d!4d形式", "https://www.google.com/maps/place/X/data=!4m5!3m4!8m2!3d-32.95!4d-60.66", Coordinates{-32.95, -60.66}, true},
		{"q=形式", "https://maps.google.com/?q=-38.0,-57.55", Coordinates{-38.0, -57.55}, true},
		{"q=のエンコード済みカンマ", "https://maps.google.com/?q=-38.0%2C-57.55", Coordinates{-38.0, -57.55}, true},
		{"座標のみ", " -34.5, -58.4 ", Coordinates{-34.5, -58.4}, true},
		{"整数座標", "10,20", Coordinates{10, 20}, true},
		{"@形式を優先", "https://www.google.com/maps/@1.5,2.5,10z?q=3,4", Coordinates{1.5, 2.5}, true},
		{"座標なし", "https://maps.app.goo.gl/abc123", Coordinates{}, false},
		{"範囲外", "@95.0,10.0", Coordinates{}, false},
		{"空", "", Coordinates{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMapsURL(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseMapsURL(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}
