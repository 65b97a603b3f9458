package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// campaign and rule text ends up inside notification mail, so no markup survives
var strict = bluemonday.StrictPolicy()

// SanitizeText strips all HTML from user supplied text and trims it.
func SanitizeText(input string) string {
	return strings.TrimSpace(strict.Sanitize(input))
}
