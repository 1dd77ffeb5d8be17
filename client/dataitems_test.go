package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOutputFiles(t *testing.T) {
	entry := map[string]any{
		"outputs": map[string]any{
			"10": map[string]any{
				"gifs": []any{map[string]any{"filename": "anim.gif", "subfolder": "", "type": "output"}},
			},
			"9": map[string]any{
				"text":   []any{"not a file"},
				"images": []any{
					map[string]any{"filename": "a.png", "subfolder": "", "type": "output"},
					map[string]any{"filename": "a.png", "subfolder": "", "type": "output"},
					map[string]any{"filename": "", "type": "output"},
					map[string]any{"filename": "a.png", "subfolder": "", "type": "temp"},
				},
			},
			"11": map[string]any{
				"audio":  []any{map[string]any{"filename": "voice.flac", "type": "output"}},
				"custom": []any{map[string]any{"filename": "a.png", "subfolder": "", "type": "output"}},
			},
		},
	}

	got := ExtractOutputFiles(entry)
	assert.Equal(t, []OutputFileRef{
		{Filename: "a.png", Type: "output"},
		{Filename: "a.png", Type: "temp"},
		{Filename: "anim.gif", Type: "output"},
		{Filename: "voice.flac", Type: "output"},
	}, got)
}

func TestExtractOutputFilesMalformed(t *testing.T) {
	assert.Empty(t, ExtractOutputFiles(nil))
	assert.Empty(t, ExtractOutputFiles("x"))
	assert.Empty(t, ExtractOutputFiles(map[string]any{"outputs": []any{}}))
	assert.Empty(t, ExtractOutputFiles(map[string]any{"outputs": map[string]any{"1": "x"}}))
}

func TestHistoryEntry(t *testing.T) {
	wrapped := map[string]any{"p1": map[string]any{"outputs": map[string]any{}}}
	assert.Equal(t, wrapped["p1"], HistoryEntry(wrapped, "p1"))

	bare := map[string]any{"outputs": map[string]any{}}
	assert.Equal(t, bare, HistoryEntry(bare, "p1"))

	assert.Nil(t, HistoryEntry(nil, "p1"))
}
