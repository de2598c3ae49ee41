package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}```", `{"a":1}`},
		{"inline fence", "```json {\"a\":1} ```", `{"a":1}`},
		{"surrounding whitespace", "\n  ```JSON\n[1]\n```  \n", "[1]"},
		{"unfenced", `{"a":1}`, `{"a":1}`},
		{"fence inside text", "see ```x``` here", "see ```x``` here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}
