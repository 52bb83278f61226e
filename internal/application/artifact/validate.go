package artifact

import (
	"regexp"
	"strings"
)

// codePatterns 目标语言的结构特征，命中任意一个即认为内容像代码。
// 启发式判断，漏报是已知局限。
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(import|from)\s+\w`),
	regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(`),
	regexp.MustCompile(`(?m)^\s*class\s+\w+`),
	regexp.MustCompile(`(?m)\bprint\s*\(`),
	regexp.MustCompile(`(?m)^\s*\w+(\.\w+)*\s*=\s*\S`),
	regexp.MustCompile(`(?m)^\s*#`),
}

// diagramKeywords 图表首行允许的声明关键字
var diagramKeywords = []string{
	"flowchart",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram",
	"erDiagram",
	"journey",
	"gantt",
	"pie",
	"gitGraph",
	"mindmap",
	"timeline",
	"sankey",
}

// ValidateCode 代码内容校验：非空且至少命中一个结构特征
func ValidateCode(content string) (bool, string) {
	if strings.TrimSpace(content) == "" {
		return false, "code content is empty"
	}
	for _, p := range codePatterns {
		if p.MatchString(content) {
			return true, ""
		}
	}
	return false, "content does not match any expected code structure"
}

// ValidateDiagram 图表内容校验：首个非空行必须以认可的图表类型声明开头
func ValidateDiagram(content string) (bool, string) {
	firstLine := ""
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			firstLine = strings.TrimSpace(line)
			break
		}
	}
	if firstLine == "" {
		return false, "diagram content is empty"
	}
	for _, kw := range diagramKeywords {
		if strings.HasPrefix(firstLine, kw) {
			return true, ""
		}
	}
	return false, "first line does not declare a recognized diagram type"
}

// ValidateAny 文本/表格内容不做形状校验
func ValidateAny(string) (bool, string) {
	return true, ""
}
