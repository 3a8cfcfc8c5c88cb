// Package loc implements the localization file parser (C5): the
// key-versioned quoted-value format used by CK3 `.yml` localization
// files. Grounded on the teacher's line-oriented parsing style
// (internal/indexing line-offset scanning) generalized to this format's
// own lexical rules rather than source-code tokens.
package loc

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/paradoxindex/ckindex/internal/types"
)

var (
	headerPattern = regexp.MustCompile(`^l_([a-zA-Z_]+):$`)
	keyPattern    = regexp.MustCompile(`^([A-Za-z0-9_][A-Za-z0-9_.]*)(?::(\d*))?\s*"(.*)"\s*$`)

	scriptedRefPattern = regexp.MustCompile(`\[([^\[\]]*)\]`)
	variableRefPattern = regexp.MustCompile(`\$([A-Za-z0-9_.]+)\$`)
	iconRefPattern     = regexp.MustCompile(`@([A-Za-z0-9_]+)!?`)
	formatTogglePattern = regexp.MustCompile(`#[A-Za-z0-9_]+(.*?)#!`)
)

var byteOrderMarkUTF8 = []byte{0xEF, 0xBB, 0xBF}

// Result is one parsed localization file: the detected language and the
// entries in file order, plus any diagnostics for malformed lines.
type Result struct {
	Language    string
	Entries     []types.LocalizationEntry
	Diagnostics []types.Diagnostic
}

// Parse parses one localization file's raw bytes. It never errors: a
// missing or malformed header, or malformed lines, are reported as
// diagnostics while parsing continues on the remaining lines (spec.md
// §4.5: "the file parses as far as possible").
func Parse(content []byte, contentHash types.ContentHash) *Result {
	content = stripBOM(content)

	res := &Result{}
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	headerSeen := false

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		if !headerSeen {
			if m := headerPattern.FindStringSubmatch(trimmed); m != nil {
				res.Language = m[1]
				headerSeen = true
				continue
			}
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Line: lineNo, Message: "expected l_<language>: header",
			})
			headerSeen = true // avoid repeating the same diagnostic on every line
		}

		m := keyPattern.FindStringSubmatch(trimmed)
		if m == nil {
			res.Diagnostics = append(res.Diagnostics, types.Diagnostic{
				Line: lineNo, Message: "malformed localization line",
			})
			continue
		}

		version := 0
		if m[2] != "" {
			if v, err := strconv.Atoi(m[2]); err == nil {
				version = v
			}
		}

		rawValue := m[3]
		entry := types.LocalizationEntry{
			ContentHash:  contentHash,
			Language:     res.Language,
			Key:          m[1],
			Version:      version,
			RawValue:     rawValue,
			PlainText:    plainText(rawValue),
			ScriptedRefs: extractAll(scriptedRefPattern, rawValue),
			VariableRefs: extractAll(variableRefPattern, rawValue),
			IconRefs:     extractAll(iconRefPattern, rawValue),
			Line:         lineNo,
		}
		res.Entries = append(res.Entries, entry)
	}

	return res
}

func stripBOM(content []byte) []byte {
	if len(content) >= 3 && content[0] == byteOrderMarkUTF8[0] &&
		content[1] == byteOrderMarkUTF8[1] && content[2] == byteOrderMarkUTF8[2] {
		return content[3:]
	}
	return content
}

func extractAll(pattern *regexp.Regexp, s string) []string {
	matches := pattern.FindAllStringSubmatch(s, -1)
	if matches == nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// plainText strips format toggles, scripted refs, variable refs and icon
// ref markup, leaving the text a player would actually see.
func plainText(raw string) string {
	s := formatTogglePattern.ReplaceAllString(raw, "$1")
	s = scriptedRefPattern.ReplaceAllString(s, "")
	s = variableRefPattern.ReplaceAllString(s, "")
	s = iconRefPattern.ReplaceAllString(s, "")
	return s
}
