package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEndpoint(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"https://lms.example/local/annoto/ajax.php", true},
		{"http://127.0.0.1:8080/hook", true},
		{"HTTPS://lms.example/", true},
		{"ftp://lms.example/", false},
		{"javascript:alert(1)", false},
		{"https:///nohost", false},
		{"/relative/path", false},
		{"://bad", false},
	}
	for _, c := range cases {
		err := ValidateEndpoint(c.raw)
		if (err == nil) != c.ok {
			t.Errorf("ValidateEndpoint(%q): %v", c.raw, err)
		}
	}
	if err := ValidateEndpoint("file:///etc/passwd"); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("file scheme: %v", err)
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Fatalf("at limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("123456"), 5); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("over limit: %v", err)
	}
}
