package domain

import "strings"

func upper(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
