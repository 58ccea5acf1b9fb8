package chunk

import (
	"strings"
	"unicode/utf8"
)

// extractMetadata builds the per-chunk metadata map used for filtered
// retrieval. Character detection is plain substring matching against
// the configured name dictionary; that is enough for literary corpora
// where names are distinctive tokens.
func (c *Chunker) extractMetadata(text string, strategy Strategy, index, total int) map[string]any {
	md := map[string]any{
		"chunk_index":    index,
		"chunk_length":   utf8.RuneCountInString(text),
		"chunk_strategy": string(strategy),
	}

	if total > 1 {
		md["position_ratio"] = float64(index) / float64(total-1)
	} else {
		md["position_ratio"] = 0.0
	}

	var characters []string
	for _, name := range c.cfg.CharacterNames {
		if name != "" && strings.Contains(text, name) {
			characters = append(characters, name)
		}
	}
	md["characters"] = characters
	md["character_count"] = len(characters)

	dialogueCount := len(dialogueSpans([]rune(text)))
	md["has_dialogue"] = dialogueCount > 0
	md["dialogue_count"] = dialogueCount

	md["sentence_count"] = len(sentenceSpans([]rune(text)))
	md["paragraph_count"] = len(paragraphStarts([]rune(text)))

	if title, ok := c.sectionTitle(text); ok {
		md["is_section_header"] = true
		md["section_title"] = title
	} else {
		md["is_section_header"] = false
	}

	return md
}

// sectionTitle reports whether the chunk opens with a heading line and
// returns the trimmed heading text.
func (c *Chunker) sectionTitle(text string) (string, bool) {
	first, _, _ := strings.Cut(strings.TrimLeft(text, " \t\r\n"), "\n")
	first = strings.TrimSpace(first)
	if first == "" || !c.sectionRe.MatchString(first) {
		return "", false
	}
	return first, true
}
