package template

import (
	"regexp"
	"strings"

	"github.com/foxzi/broadcaster/internal/contact"
)

// NameKey is the built-in placeholder replaced by the recipient name
const NameKey = "nom"

var (
	placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)
	// renderPattern also accepts keys outside \w so any stored key renders
	renderPattern = regexp.MustCompile(`\{([^{}]+)\}`)
)

// Render personalizes text for one recipient in a single pass over text.
//
// Every {nom}, in any letter case, becomes the recipient name. Any other
// {key} takes the value of the first variable with that exact key. Inserted
// values are never scanned again, and placeholders without a value are left
// untouched.
func Render(text string, r contact.Recipient, vars []Variable) string {
	if text == "" {
		return text
	}

	values := make(map[string]string, len(vars))
	for _, v := range vars {
		if v.Key == "" {
			continue
		}
		if _, ok := values[v.Key]; !ok {
			values[v.Key] = v.Value
		}
	}

	return renderPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		if strings.EqualFold(key, NameKey) {
			return r.Name
		}
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}

// RenderMessage renders msg for r
func RenderMessage(msg Message, r contact.Recipient) string {
	return Render(msg.Text, r, msg.Variables)
}

// Placeholders returns the distinct placeholder names in text, in order of
// first appearance
func Placeholders(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Analyze reports which placeholders in text will be substituted
func Analyze(text string, vars []Variable) []Placeholder {
	keys := make(map[string]bool, len(vars))
	for _, v := range vars {
		keys[v.Key] = true
	}

	names := Placeholders(text)
	result := make([]Placeholder, 0, len(names))
	for _, name := range names {
		result = append(result, Placeholder{
			Name:  name,
			Known: strings.EqualFold(name, NameKey) || keys[name],
		})
	}
	return result
}

// Unknown returns the placeholder names that Render would leave verbatim
func Unknown(text string, vars []Variable) []string {
	var names []string
	for _, p := range Analyze(text, vars) {
		if !p.Known {
			names = append(names, p.Name)
		}
	}
	return names
}
