// Package codedetect classifies uploaded source files.
package codedetect

import (
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

var supportedExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".java": {}, ".kt": {},
	".cpp": {}, ".c": {}, ".cs": {}, ".go": {}, ".rs": {}, ".php": {},
	".rb": {}, ".vue": {}, ".swift": {}, ".m": {}, ".scala": {}, ".sh": {},
	".r": {},
}

var supportedLanguages = map[string]struct{}{
	"python": {}, "javascript": {}, "typescript": {}, "java": {}, "kotlin": {},
	"cpp": {}, "c": {}, "csharp": {}, "go": {}, "rust": {}, "php": {},
	"ruby": {}, "vue": {}, "swift": {}, "objective-c": {}, "scala": {},
	"shell": {}, "r": {},
}

// enry names that do not lowercase to our canonical form
var languageAliases = map[string]string{
	"c++":         "cpp",
	"c#":          "csharp",
	"tsx":         "typescript",
	"jsx":         "javascript",
	"bash":        "shell",
	"objective-c": "objective-c",
}

// Keyword order is the order frameworks are reported in.
var frameworkKeywords = []string{
	"react", "angular", "vue", "django", "flask", "spring", "laravel", "rails",
	"express", "nextjs", "nestjs", "svelte", "flutter", "swiftui", "kivy",
	"react-native", "ionic", "xamarin", "symfony", "cakephp", "codeigniter",
	"phoenix",
}

// SupportedExtension reports whether filename ends in an accepted extension.
// The match is case-sensitive, so "main.PY" is rejected.
func SupportedExtension(filename string) bool {
	_, ok := supportedExtensions[filepath.Ext(filename)]
	return ok
}

// DetectLanguage returns the canonical lowercase language name, or "" when
// nothing could be inferred.
func DetectLanguage(filename string, content []byte) string {
	name := enry.GetLanguage(filepath.Base(filename), content)
	if name == "" {
		return ""
	}
	return canonical(name)
}

func IsSupportedLanguage(lang string) bool {
	_, ok := supportedLanguages[lang]
	return ok
}

// DetectFrameworks lists every known framework whose name occurs in code,
// case-insensitively. Never nil.
func DetectFrameworks(code string) []string {
	lower := strings.ToLower(code)
	found := make([]string, 0)
	for _, fw := range frameworkKeywords {
		if strings.Contains(lower, fw) {
			found = append(found, fw)
		}
	}
	return found
}

func canonical(enryName string) string {
	lower := strings.ToLower(enryName)
	if alias, ok := languageAliases[lower]; ok {
		return alias
	}
	return lower
}
