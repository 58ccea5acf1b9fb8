// Package chunk splits literary source text into retrievable chunks.
//
// All offsets are rune offsets so the same configuration works for CJK
// and latin corpora. Every strategy except sentence and dialogue tiles
// the input: chunks are contiguous, ordered, and cover the whole text,
// so concatenating chunk texts (minus the configured overlap for
// fixed_size) reconstructs the original input exactly. Sentence and
// dialogue are extraction strategies and return trimmed units instead.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/tessellate-ai/lorebase/internal/config"
	lberrors "github.com/tessellate-ai/lorebase/internal/errors"
)

// DefaultSectionPattern matches chapter heading lines in both Chinese
// classic novel form (第一回, 第十二章) and western form (Chapter 7).
const DefaultSectionPattern = `^(第[一二三四五六七八九十百千0-9]+[回章卷节]|Chapter\s+\d+|CHAPTER\s+[IVXLC0-9]+)`

// sentenceTerminators end a sentence in either script family.
var sentenceTerminators = map[rune]bool{
	'。': true, '！': true, '？': true, '；': true,
	'.': true, '!': true, '?': true, ';': true,
}

// closingQuotes may trail a terminator and stay with the sentence.
var closingQuotes = map[rune]bool{
	'”': true, '’': true, '」': true, '』': true, '"': true, '\'': true,
}

// Chunker splits text according to a configured strategy.
type Chunker struct {
	cfg       config.ChunkingConfig
	sectionRe *regexp.Regexp
}

// New creates a Chunker from cfg, compiling the section pattern.
// Zero-valued sizing fields fall back to the package defaults.
func New(cfg config.ChunkingConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.SectionPattern == "" {
		cfg.SectionPattern = DefaultSectionPattern
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, lberrors.ValidationError(
			fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d",
				cfg.ChunkOverlap, cfg.ChunkSize), nil)
	}

	re, err := regexp.Compile(cfg.SectionPattern)
	if err != nil {
		return nil, lberrors.ValidationError("invalid section pattern", err)
	}

	return &Chunker{cfg: cfg, sectionRe: re}, nil
}

// Chunk splits text using the configured strategy. sourceID becomes part
// of each chunk's identity; the same input always produces the same
// chunk IDs, which makes re-ingestion an upsert rather than a duplicate.
func (c *Chunker) Chunk(text, sourceID string) ([]Chunk, error) {
	strategy := Strategy(c.cfg.Strategy)
	if strategy == "" {
		strategy = StrategySemantic
	}
	return c.ChunkWith(strategy, text, sourceID)
}

// ChunkWith splits text with an explicit strategy, overriding the
// configured one for this call.
func (c *Chunker) ChunkWith(strategy Strategy, text, sourceID string) ([]Chunk, error) {
	if !strategy.Valid() {
		return nil, lberrors.ValidationError(
			fmt.Sprintf("unknown chunking strategy %q", strategy), nil)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)

	var spans []span
	switch strategy {
	case StrategyFixedSize:
		spans = c.fixedSizeSpans(len(runes))
	case StrategyParagraph:
		spans = paragraphSpans(runes)
	case StrategySentence:
		spans = sentenceSpans(runes)
	case StrategySection:
		spans = c.sectionSpans(runes)
	case StrategyDialogue:
		spans = dialogueSpans(runes)
	case StrategySemantic:
		spans = c.semanticSpans(runes)
	case StrategyHybrid:
		spans = c.hybridSpans(runes)
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		body := string(runes[sp.start:sp.end])
		chunks = append(chunks, Chunk{
			ChunkID:     chunkID(sourceID, strategy, i),
			SourceID:    sourceID,
			Text:        body,
			StartOffset: sp.start,
			EndOffset:   sp.end,
		})
	}
	for i := range chunks {
		chunks[i].Metadata = c.extractMetadata(chunks[i].Text, strategy, i, len(chunks))
	}
	return chunks, nil
}

// chunkID derives a deterministic chunk identifier. An empty sourceID
// falls back to a random UUID since there is nothing stable to key on.
func chunkID(sourceID string, strategy Strategy, index int) string {
	if sourceID == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s_%s_%04d", sourceID, strategy, index)
}

// span is a half-open rune range into the source text.
type span struct {
	start, end int
}

// fixedSizeSpans produces overlapping windows of ChunkSize runes. Each
// window after the first starts ChunkOverlap runes before the previous
// window's end, so dropping the first ChunkOverlap runes of every chunk
// but the first reconstructs the input.
func (c *Chunker) fixedSizeSpans(n int) []span {
	size := c.cfg.ChunkSize
	overlap := c.cfg.ChunkOverlap

	var spans []span
	start := 0
	for {
		end := start + size
		if end >= n {
			spans = append(spans, span{start, n})
			return spans
		}
		spans = append(spans, span{start, end})
		start = end - overlap
	}
}

// paragraphSpans tiles the input at blank-line boundaries. Separator
// whitespace stays attached to the preceding paragraph so that the
// spans cover the input without gaps.
func paragraphSpans(runes []rune) []span {
	starts := paragraphStarts(runes)
	return tile(starts, len(runes))
}

// paragraphStarts returns the rune offset of each paragraph's first
// line. The first paragraph always starts at offset 0.
func paragraphStarts(runes []rune) []int {
	var starts []int
	prevBlank := true
	for _, ln := range splitLines(runes) {
		blank := isBlank(runes[ln.start:ln.end])
		if !blank && prevBlank {
			starts = append(starts, ln.start)
		}
		prevBlank = blank
	}
	if len(starts) == 0 {
		return nil
	}
	starts[0] = 0
	return starts
}

// sectionSpans tiles the input at heading lines matching the section
// pattern. Text before the first heading becomes a preamble chunk; with
// no headings at all the whole input is a single chunk.
func (c *Chunker) sectionSpans(runes []rune) []span {
	var starts []int
	for _, ln := range splitLines(runes) {
		line := strings.TrimSpace(string(runes[ln.start:ln.end]))
		if line != "" && c.sectionRe.MatchString(line) {
			starts = append(starts, ln.start)
		}
	}
	if len(starts) == 0 || starts[0] != 0 {
		starts = append([]int{0}, starts...)
	}
	return tile(starts, len(runes))
}

// semanticSpans greedily packs consecutive paragraphs while the merged
// span stays within MaxChunkSize. A single paragraph over the limit is
// still emitted whole.
func (c *Chunker) semanticSpans(runes []rune) []span {
	return c.packParagraphs(paragraphSpans(runes))
}

func (c *Chunker) packParagraphs(paras []span) []span {
	if len(paras) == 0 {
		return nil
	}

	maxSize := c.cfg.MaxChunkSize
	var spans []span
	cur := paras[0]
	for _, p := range paras[1:] {
		if p.end-cur.start <= maxSize {
			cur.end = p.end
			continue
		}
		spans = append(spans, cur)
		cur = p
	}
	return append(spans, cur)
}

// hybridSpans splits at section headings first, then re-packs any
// oversized section by paragraphs.
func (c *Chunker) hybridSpans(runes []rune) []span {
	var spans []span
	for _, sec := range c.sectionSpans(runes) {
		if sec.end-sec.start <= c.cfg.MaxChunkSize {
			spans = append(spans, sec)
			continue
		}
		inner := c.packParagraphs(paragraphSpansWithin(runes, sec))
		if len(inner) == 0 {
			spans = append(spans, sec)
			continue
		}
		// Keep tiling within the section
		inner[0].start = sec.start
		inner[len(inner)-1].end = sec.end
		spans = append(spans, inner...)
	}
	return spans
}

// paragraphSpansWithin computes paragraph tiling restricted to sec.
func paragraphSpansWithin(runes []rune, sec span) []span {
	inner := paragraphSpans(runes[sec.start:sec.end])
	for i := range inner {
		inner[i].start += sec.start
		inner[i].end += sec.start
	}
	return inner
}

// sentenceSpans extracts trimmed sentences. A sentence ends at a
// terminator rune plus any immediately following closing quotes.
// Sentence extraction does not tile the input.
func sentenceSpans(runes []rune) []span {
	var spans []span
	start := 0
	i := 0
	n := len(runes)
	flush := func(end int) {
		if sp, ok := trimSpan(runes, span{start, end}); ok {
			spans = append(spans, sp)
		}
		start = end
	}
	for i < n {
		if sentenceTerminators[runes[i]] {
			i++
			for i < n && closingQuotes[runes[i]] {
				i++
			}
			flush(i)
			continue
		}
		i++
	}
	flush(n)
	return spans
}

// dialogueSpans extracts quoted speech, quote marks included. Both CJK
// corner brackets and curly/straight double quotes are recognized. This
// strategy deliberately drops narration between quotes.
func dialogueSpans(runes []rune) []span {
	pairs := map[rune]rune{'“': '”', '「': '」', '『': '』', '"': '"'}

	var spans []span
	for i := 0; i < len(runes); i++ {
		close, ok := pairs[runes[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == close {
				spans = append(spans, span{i, j + 1})
				i = j
				break
			}
		}
	}
	return spans
}

// tile converts sorted span starts into contiguous half-open spans
// covering [0, n).
func tile(starts []int, n int) []span {
	if n == 0 || len(starts) == 0 {
		return nil
	}
	spans := make([]span, 0, len(starts))
	for i, s := range starts {
		end := n
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if end > s {
			spans = append(spans, span{s, end})
		}
	}
	return spans
}

// lineSpan is one physical line, newline excluded.
type lineSpan struct {
	start, end int
}

func splitLines(runes []rune) []lineSpan {
	var lines []lineSpan
	start := 0
	for i, r := range runes {
		if r == '\n' {
			lines = append(lines, lineSpan{start, i})
			start = i + 1
		}
	}
	if start < len(runes) {
		lines = append(lines, lineSpan{start, len(runes)})
	}
	return lines
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// trimSpan shrinks sp to exclude surrounding whitespace. The second
// return is false when nothing remains.
func trimSpan(runes []rune, sp span) (span, bool) {
	for sp.start < sp.end && unicode.IsSpace(runes[sp.start]) {
		sp.start++
	}
	for sp.end > sp.start && unicode.IsSpace(runes[sp.end-1]) {
		sp.end--
	}
	return sp, sp.end > sp.start
}
