package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Reality DB phone numbers default to US formatting rules.
var CountryCode = "US"

var titleCaser = cases.Title(language.AmericanEnglish)

// FormatPhone normalizes a raw phone number to E.164. The error is the
// parser's; callers decide whether to propagate the original string or treat
// the value as absent.
func FormatPhone(phone string) (string, error) {
	parsed, err := libphonenumber.Parse(phone, CountryCode)
	if err != nil {
		return "", err
	}
	return libphonenumber.Format(parsed, libphonenumber.E164), nil
}

// FormatPhoneOrNil is the "failures are absent" variant used by the entity
// mappers and the validated-phones sheet pass.
func FormatPhoneOrNil(phone string) *string {
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	formatted, err := FormatPhone(phone)
	if err != nil {
		return nil
	}
	return &formatted
}

func TitleCase(s string) string {
	return titleCaser.String(strings.ToLower(s))
}

func IsValidEmail(email string) bool {
	// Basic email validation regex pattern
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

func ProcessValidationErrors(err error) map[string]string {
	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// Chunk splits items into consecutive groups of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	var groups [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}
