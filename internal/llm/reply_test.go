package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchReply(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int
		want     []string
		wantKey  string
		wantIDs  []int64
	}{
		{
			name:     "direct json",
			raw:      `{"ids":[3,4],"outputs":["hola","mundo"]}`,
			expected: 2,
			want:     []string{"hola", "mundo"},
			wantKey:  "outputs",
			wantIDs:  []int64{3, 4},
		},
		{
			name:     "embedded in prose",
			raw:      "Sure! {\"outputs\":[\"a\",\"b\"]}",
			expected: 2,
			want:     []string{"a", "b"},
			wantKey:  "outputs",
		},
		{
			name:     "unclosed brace in prose before object",
			raw:      "Here you go { note: {\"outputs\":[\"a\",\"b\"]}",
			expected: 2,
			want:     []string{"a", "b"},
			wantKey:  "outputs",
		},
		{
			name:     "object nested in invalid wrapper",
			raw:      "{ note: {\"outputs\":[\"a\"]} }",
			expected: 1,
			want:     []string{"a"},
			wantKey:  "outputs",
		},
		{
			name:     "code fence",
			raw:      "```json\n{\"outputs\":[\"x\"]}\n```",
			expected: 1,
			want:     []string{"x"},
			wantKey:  "outputs",
		},
		{
			name:     "legacy translations key",
			raw:      `{"translations":["uno","dos"]}`,
			expected: 2,
			want:     []string{"uno", "dos"},
			wantKey:  "translations",
		},
		{
			name:     "outputs preferred over translations",
			raw:      `{"translations":["old"],"outputs":["new"]}`,
			expected: 1,
			want:     []string{"new"},
			wantKey:  "outputs",
		},
		{
			name:     "outputs not an array falls back",
			raw:      `{"outputs":"nope","translations":["t"]}`,
			expected: 1,
			want:     []string{"t"},
			wantKey:  "translations",
		},
		{
			name:     "braces inside strings",
			raw:      `Here you go: {"outputs":["a } b","{c}"]} hope that helps {`,
			expected: 2,
			want:     []string{"a } b", "{c}"},
			wantKey:  "outputs",
		},
		{
			name:     "skips a leading non-json brace span",
			raw:      `{note: draft} {"outputs":["ok"]}`,
			expected: 1,
			want:     []string{"ok"},
			wantKey:  "outputs",
		},
		{
			name:     "empty batch",
			raw:      `{"outputs":[]}`,
			expected: 0,
			want:     []string{},
			wantKey:  "outputs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseBatchReply(tt.raw, tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Outputs)
			assert.Equal(t, tt.wantKey, reply.Key)
			assert.Equal(t, tt.wantIDs, reply.IDs)
		})
	}
}

func TestParseBatchReply_Failures(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected int
		wantErr  error
	}{
		{name: "no json", raw: "I cannot translate this.", expected: 1, wantErr: ErrMalformedReply},
		{name: "unterminated object", raw: `{"outputs":["a"`, expected: 1, wantErr: ErrMalformedReply},
		{name: "missing keys", raw: `{"result":["a"]}`, expected: 1, wantErr: ErrUnexpectedShape},
		{name: "top level array", raw: `["a"]`, expected: 1, wantErr: ErrUnexpectedShape},
		{name: "non string item", raw: `{"outputs":["a",2]}`, expected: 2, wantErr: ErrUnexpectedShape},
		{name: "null item", raw: `{"outputs":["a",null]}`, expected: 2, wantErr: ErrUnexpectedShape},
		{name: "too few", raw: `{"outputs":["a"]}`, expected: 2, wantErr: ErrLengthMismatch},
		{name: "too many", raw: `{"outputs":["a","b","c"]}`, expected: 2, wantErr: ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseBatchReply(tt.raw, tt.expected)
			assert.Nil(t, reply)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLengthMismatchError_ReportsCounts(t *testing.T) {
	_, err := ParseBatchReply(`{"outputs":["a"]}`, 2)

	var mismatch *LengthMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 2, mismatch.Expected)
	assert.Equal(t, 1, mismatch.Actual)
	assert.Contains(t, err.Error(), "expected 2, got 1")
}
