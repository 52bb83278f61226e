package artifact

import (
	"fmt"
	"strings"

	apperrors "chat-artifact-api/pkg/errors"
)

// LineRange 1-indexed 闭区间行范围
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PatchLines 将 replacement 的行序列替换 original 中指定的闭区间行块。
// 两端先被钳制到 [1, 行数]；钳制后 start > end 视为非法范围。
// 纯函数：不校验替换内容本身的语义。
func PatchLines(original, replacement string, r LineRange) (string, error) {
	lines := strings.Split(original, "\n")

	// 转 0-indexed 并钳制
	start := r.Start - 1
	end := r.End - 1
	if start < 0 {
		start = 0
	}
	if start > len(lines)-1 {
		start = len(lines) - 1
	}
	if end < 0 {
		end = 0
	}
	if end > len(lines)-1 {
		end = len(lines) - 1
	}

	if start > end {
		return "", apperrors.ErrInvalidLineRange.WithDetail(
			fmt.Sprintf("start %d exceeds end %d after clamping", r.Start, r.End))
	}

	before := lines[:start]
	after := lines[end+1:]
	replacementLines := strings.Split(replacement, "\n")

	result := make([]string, 0, len(before)+len(replacementLines)+len(after))
	result = append(result, before...)
	result = append(result, replacementLines...)
	result = append(result, after...)

	return strings.Join(result, "\n"), nil
}
