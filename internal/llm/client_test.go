package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock_JSONFence(t *testing.T) {
	input := "```json\n{\"score\": 0.7}\n```"
	assert.Equal(t, `{"score": 0.7}`, CleanJSONBlock(input))
}

func TestCleanJSONBlock_GenericFence(t *testing.T) {
	input := "```\n{\"score\": 0.7}\n```"
	assert.Equal(t, `{"score": 0.7}`, CleanJSONBlock(input))
}

func TestCleanJSONBlock_NoFence(t *testing.T) {
	input := `{"score": 0.7}`
	assert.Equal(t, input, CleanJSONBlock(input))
}

func TestCleanJSONBlock_Whitespace(t *testing.T) {
	input := "  \n{\"a\": 1}\n  "
	assert.Equal(t, `{"a": 1}`, CleanJSONBlock(input))
}
