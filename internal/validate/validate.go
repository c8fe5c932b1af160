package validate

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Text field length limits, in characters. Served to the frontend by /api/limits.
const (
	MaxTitleLength            = 200
	MaxDescriptionLength      = 2000
	MaxThumbnailURLLength     = 1000
	MaxUsernameLength         = 50
	MaxFullNameLength         = 100
	MaxWordLength             = 100
	MaxPhoneticLength         = 100
	MaxDefinitionLength       = 500
	MaxExampleLength          = 1000
	MaxSubtitleTextLength     = 1000
	MaxSubtitleFilenameLength = 255
)

var (
	Difficulties  = []string{"beginner", "intermediate", "advanced"}
	VideoStatuses = []string{"draft", "published"}
	UserStatuses  = []string{"pending", "approved", "suspended"}
	Roles         = []string{"user", "admin"}
)

func checkLen(value string, max int, field string) string {
	if utf8.RuneCountInString(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func oneOf(value string, allowed []string, field string) string {
	if !slices.Contains(allowed, value) {
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", "))
	}
	return ""
}

// Title requires a non-blank title within the length limit.
func Title(s string) string {
	if strings.TrimSpace(s) == "" {
		return "title is required"
	}
	return checkLen(s, MaxTitleLength, "title")
}

func Description(s string) string  { return checkLen(s, MaxDescriptionLength, "description") }
func ThumbnailURL(s string) string { return checkLen(s, MaxThumbnailURLLength, "thumbnail URL") }
func Username(s string) string     { return checkLen(s, MaxUsernameLength, "username") }
func FullName(s string) string     { return checkLen(s, MaxFullNameLength, "name") }
func Phonetic(s string) string     { return checkLen(s, MaxPhoneticLength, "phonetic") }
func Definition(s string) string   { return checkLen(s, MaxDefinitionLength, "definition") }
func Example(s string) string      { return checkLen(s, MaxExampleLength, "example") }
func SubtitleText(s string) string { return checkLen(s, MaxSubtitleTextLength, "subtitle text") }
func SubtitleFilename(s string) string {
	return checkLen(s, MaxSubtitleFilenameLength, "filename")
}

func Word(s string) string {
	if strings.TrimSpace(s) == "" {
		return "word is required"
	}
	return checkLen(s, MaxWordLength, "word")
}

func Difficulty(s string) string  { return oneOf(s, Difficulties, "difficulty") }
func VideoStatus(s string) string { return oneOf(s, VideoStatuses, "status") }
func UserStatus(s string) string  { return oneOf(s, UserStatuses, "status") }
func Role(s string) string        { return oneOf(s, Roles, "role") }

// First returns the first non-empty message, so handlers can chain checks.
func First(msgs ...string) string {
	for _, m := range msgs {
		if m != "" {
			return m
		}
	}
	return ""
}

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":        MaxTitleLength,
		"description":  MaxDescriptionLength,
		"thumbnailUrl": MaxThumbnailURLLength,
		"username":     MaxUsernameLength,
		"fullName":     MaxFullNameLength,
		"word":         MaxWordLength,
		"phonetic":     MaxPhoneticLength,
		"definition":   MaxDefinitionLength,
		"example":      MaxExampleLength,
		"subtitleText": MaxSubtitleTextLength,
	}
}
