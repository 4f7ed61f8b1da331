package utils_test

import (
	"testing"

	"github.com/smartsetter/ssot_backend/utils"
)

func TestFormatPhone(t *testing.T) {
	cases := map[string]string{
		"(202) 555-0173": "+12025550173",
		"202-555-0173":   "+12025550173",
		"+1 202 555 0173": "+12025550173",
	}
	for input, want := range cases {
		got, err := utils.FormatPhone(input)
		if err != nil {
			t.Fatalf("FormatPhone(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("FormatPhone(%q) = %q, want %q", input, got, want)
		}
	}

	if _, err := utils.FormatPhone("n/a"); err == nil {
		t.Fatal("expected error for unparseable phone")
	}
}

func TestFormatPhoneOrNil(t *testing.T) {
	if v := utils.FormatPhoneOrNil("  "); v != nil {
		t.Fatalf("blank phone must be nil, got %v", *v)
	}
	if v := utils.FormatPhoneOrNil("garbage"); v != nil {
		t.Fatalf("unparseable phone must be nil, got %v", *v)
	}
	if v := utils.FormatPhoneOrNil("202-555-0173"); v == nil || *v != "+12025550173" {
		t.Fatalf("got %v", v)
	}
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"JANE DOE":       "Jane Doe",
		"jane doe":       "Jane Doe",
		"MARY ANN SMITH": "Mary Ann Smith",
	}
	for input, want := range cases {
		if got := utils.TitleCase(input); got != want {
			t.Fatalf("TitleCase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	if !utils.IsValidEmail("jane.doe@example.com") {
		t.Fatal("expected valid")
	}
	for _, email := range []string{"", "not-an-email", "a@b", "jane@"} {
		if utils.IsValidEmail(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestChunk(t *testing.T) {
	chunks := utils.Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if len(chunks[2]) != 1 || chunks[2][0] != 5 {
		t.Fatalf("got %v", chunks[2])
	}

	if chunks := utils.Chunk([]int{}, 2); len(chunks) != 0 {
		t.Fatalf("empty input must yield no chunks, got %v", chunks)
	}
}
