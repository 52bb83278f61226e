package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-artifact-api/internal/domain/entity"
)

func TestValidateCode(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ok      bool
	}{
		{"function definition", "def handler(event):\n    return event", true},
		{"import statement", "import os\nos.getcwd()", true},
		{"from import", "from collections import Counter", true},
		{"class definition", "class Store:\n    pass", true},
		{"print call", "print('hello')", true},
		{"assignment", "total = 0", true},
		{"comment only", "# a placeholder script", true},
		{"prose", "This is just a paragraph of text about nothing.", false},
		{"empty", "", false},
		{"whitespace only", "   \n\t", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidateCode(tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestValidateDiagram(t *testing.T) {
	valid := []string{
		"flowchart TD\n  A --> B",
		"sequenceDiagram\n  A->>B: hi",
		"classDiagram\n  class Foo",
		"stateDiagram-v2\n  [*] --> Idle",
		"erDiagram\n  A ||--o{ B : has",
		"journey\n  title Day",
		"gantt\n  title Plan",
		"pie\n  \"a\": 1",
		"gitGraph\n  commit",
		"mindmap\n  root",
		"timeline\n  2024 : event",
		"sankey-beta\n  a,b,1",
		"\n\n  flowchart LR\n  A --> B", // leading blank lines are skipped
	}
	for _, content := range valid {
		ok, reason := ValidateDiagram(content)
		assert.True(t, ok, "content %q rejected: %s", content, reason)
	}

	invalid := []string{
		"",
		"   \n\n",
		"graph TD\n  A --> B", // legacy alias is not accepted
		"just some text",
	}
	for _, content := range invalid {
		ok, reason := ValidateDiagram(content)
		assert.False(t, ok, "content %q accepted", content)
		assert.NotEmpty(t, reason)
	}
}

// 校验器是纯函数：同一输入反复调用结果一致
func TestValidatorsIdempotent(t *testing.T) {
	inputs := []string{"def f():", "flowchart TD", "prose", ""}
	for _, in := range inputs {
		ok1, r1 := ValidateCode(in)
		ok2, r2 := ValidateCode(in)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, r1, r2)

		ok1, r1 = ValidateDiagram(in)
		ok2, r2 = ValidateDiagram(in)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, r1, r2)
	}
}

func TestValidateAny(t *testing.T) {
	ok, reason := ValidateAny("")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestPolicyFor(t *testing.T) {
	for _, kind := range []string{"text", "sheet", "code", "diagram"} {
		p, ok := PolicyFor(entity.ArtifactKind(kind))
		assert.True(t, ok)
		assert.Equal(t, kind+"-delta", p.DeltaEventName)
	}

	_, ok := PolicyFor(entity.ArtifactKind("image"))
	assert.False(t, ok)
}
