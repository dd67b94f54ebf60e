package outbound

import (
	"unicode/utf8"

	"github.com/Alfex4936/feishu-outbound/internal/chunk"
	"github.com/Alfex4936/feishu-outbound/internal/model"
)

// Split runs the chunker and describes its output. It needs no Sender,
// so callers can preview how a message will be delivered.
func Split(text string, mode chunk.Mode, limit int) *model.SplitResult {
	parts := mode.Split(text, limit)
	res := &model.SplitResult{
		Mode:       string(mode),
		Limit:      limit,
		ChunkCount: len(parts),
		Chunks:     make([]model.Chunk, 0, len(parts)),
	}
	for i, p := range parts {
		res.Chunks = append(res.Chunks, model.Chunk{
			Idx:  i,
			Len:  utf8.RuneCountInString(p),
			Text: p,
		})
	}
	return res
}
