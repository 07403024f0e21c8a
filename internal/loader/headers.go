package loader

import (
	"strconv"
	"strings"
)

// excelColumnName converts a 0-based index to a spreadsheet column name:
// 0 -> A, 25 -> Z, 26 -> AA.
func excelColumnName(index int) string {
	name := ""
	for index++; index > 0; index /= 26 {
		index--
		name = string(rune('A'+index%26)) + name
	}
	return name
}

// normalizeHeaders names blank headers Unnamed_A, Unnamed_B, ... and makes
// repeated names unique by suffixing .1, .2, ... so every column is addressable.
//
//	["id", "", "id", " "] -> ["id", "Unnamed_A", "id.1", "Unnamed_B"]
func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	blanks := 0

	for i, h := range header {
		name := h
		if strings.TrimSpace(name) == "" {
			name = "Unnamed_" + excelColumnName(blanks)
			blanks++
		}
		if _, dup := seen[name]; dup {
			base := name
			for n := seen[base] + 1; ; n++ {
				candidate := base + "." + strconv.Itoa(n)
				if _, taken := seen[candidate]; !taken {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}
