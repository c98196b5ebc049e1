package tools

import (
	"errors"
	"testing"
)

func TestCalculateValid(t *testing.T) {
	cases := []struct {
		expression string
		want       string
	}{
		{"2+2", "4"},
		{"12*(3+4)", "84"},
		{"10/4", "2.5"},
		{"10 % 3", "1"},
		{"2**10", "1024"},
		{"2**3**2", "512"},
		{"-(3+4)*2", "-14"},
		{"-2**2", "-4"},
		{"  1.5 + 2.25 ", "3.75"},
		{"((2))", "2"},
		{"+5", "5"},
		{"100 - 3*7", "79"},
	}

	for _, tc := range cases {
		got, err := Calculate(tc.expression)
		if err != nil {
			t.Errorf("Calculate(%q) returned error: %v", tc.expression, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Calculate(%q) = %q, want %q", tc.expression, got, tc.want)
		}
	}
}

func TestCalculateInvalid(t *testing.T) {
	cases := []string{
		"",
		"2+",
		"(1+2",
		"1 2",
		"abc",
		"2++*3",
		"1/0",
		"5 % 0",
		"2 ** ",
		"__import__('os')",
		"1..2",
	}

	for _, expression := range cases {
		_, err := Calculate(expression)
		if err == nil {
			t.Errorf("Calculate(%q) succeeded, want error", expression)
			continue
		}
		if !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("Calculate(%q) error = %v, want ErrInvalidExpression", expression, err)
		}
	}
}

func TestCalculateOverflowRejected(t *testing.T) {
	_, err := Calculate("10**1000 * 10**1000")
	if !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("expected non-finite result to be rejected, got err = %v", err)
	}
}
