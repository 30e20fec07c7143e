// internal/service/template.go
package service

import (
	"strings"
)

// RenderTemplate substitutes {key} placeholders in a body template.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
