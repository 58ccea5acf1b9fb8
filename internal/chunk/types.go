package chunk

// Default chunk sizing in runes. Sizes are rune counts rather than bytes
// so that CJK corpora behave the same as latin ones.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 100
	DefaultMaxChunkSize = 1024
)

// Strategy selects how source text is split into chunks.
type Strategy string

const (
	StrategyFixedSize Strategy = "fixed_size"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
	StrategySection   Strategy = "section"
	StrategyDialogue  Strategy = "dialogue"
	StrategySemantic  Strategy = "semantic"
	StrategyHybrid    Strategy = "hybrid"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFixedSize, StrategyParagraph, StrategySentence,
		StrategySection, StrategyDialogue, StrategySemantic, StrategyHybrid:
		return true
	}
	return false
}

// Chunk is a retrievable unit of source text.
//
// StartOffset and EndOffset are rune offsets into the original input,
// with Text == string(runes[StartOffset:EndOffset]).
type Chunk struct {
	ChunkID     string         `json:"chunk_id"`
	SourceID    string         `json:"source_id"`
	Text        string         `json:"text"`
	StartOffset int            `json:"start_offset"`
	EndOffset   int            `json:"end_offset"`
	Metadata    map[string]any `json:"metadata"`
}

// Stats summarizes a chunking run.
type Stats struct {
	TotalChunks  int     `json:"total_chunks"`
	TotalRunes   int     `json:"total_runes"`
	AvgChunkSize float64 `json:"avg_chunk_size"`
	MinChunkSize int     `json:"min_chunk_size"`
	MaxChunkSize int     `json:"max_chunk_size"`
	WithDialogue int     `json:"with_dialogue"`
}

// ComputeStats aggregates sizing statistics over chunks.
func ComputeStats(chunks []Chunk) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}

	s := Stats{
		TotalChunks:  len(chunks),
		MinChunkSize: chunks[0].EndOffset - chunks[0].StartOffset,
	}
	for _, c := range chunks {
		size := c.EndOffset - c.StartOffset
		s.TotalRunes += size
		if size < s.MinChunkSize {
			s.MinChunkSize = size
		}
		if size > s.MaxChunkSize {
			s.MaxChunkSize = size
		}
		if has, ok := c.Metadata["has_dialogue"].(bool); ok && has {
			s.WithDialogue++
		}
	}
	s.AvgChunkSize = float64(s.TotalRunes) / float64(len(chunks))
	return s
}
