// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import "strings"

// logicalLine is one manifest line after continuation-joining and
// comment-stripping, tagged with the source line its first physical line
// began at (for error messages and Requirement.SourceLine).
type logicalLine struct {
	Text string
	Line int
}

// preprocessLines implements spec.md §4.2's lexical pre-processing:
// backslash line continuation, then "#" comment stripping, then dropping
// empty lines. T1 (spec.md §8) requires this to be idempotent -- running
// it again on its own output is a no-op, which holds here because the
// output never contains a trailing continuation backslash or comment text.
func preprocessLines(src string) []logicalLine {
	rawLines := strings.Split(src, "\n")
	var out []logicalLine

	i := 0
	for i < len(rawLines) {
		startLine := i + 1
		var sb strings.Builder
		for {
			cur := strings.TrimRight(rawLines[i], "\r")
			if strings.HasSuffix(cur, "\\") {
				sb.WriteString(cur[:len(cur)-1])
				i++
				if i >= len(rawLines) {
					break
				}
				continue
			}
			sb.WriteString(cur)
			i++
			break
		}
		text := stripComment(sb.String())
		if strings.TrimSpace(text) != "" {
			out = append(out, logicalLine{Text: text, Line: startLine})
		}
	}
	return out
}

// stripComment truncates text at the first "#" that begins a comment: one
// at the start of the line or preceded by whitespace (i.e. outside a
// word boundary), per spec.md §4.2.
func stripComment(text string) string {
	for i, r := range text {
		if r != '#' {
			continue
		}
		if i == 0 || text[i-1] == ' ' || text[i-1] == '\t' {
			return text[:i]
		}
	}
	return text
}
