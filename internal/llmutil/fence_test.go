package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanCodeOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain code", "  package app\n\nfunc F() {}\n", "package app\n\nfunc F() {}"},
		{"go fence", "```go\npackage app\n```", "package app"},
		{"golang fence", "```golang\npackage app\n```\n", "package app"},
		{"bare fence", "```\npackage app\n```", "package app"},
		{"conversational prefix", "Here is the test:\n```go\npackage app\n```\nGood luck.", "package app"},
		{"go block preferred", "```text\nnotes\n```\n```go\npackage app\n```", "package app"},
		{"unterminated fence", "```go\npackage app\n", "package app"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanCodeOutput(tt.input))
		})
	}
}
