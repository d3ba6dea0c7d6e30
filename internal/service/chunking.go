package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ChunkConfig controls how article content is split before embedding.
type ChunkConfig struct {
	MaxChars  int
	MaxChunks int
}

// DefaultChunkConfig targets roughly 300 tokens per chunk.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MaxChunks: 200,
	}
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// ChunkText splits text into chunks of at most cfg.MaxChars runes, preferring
// paragraph, then sentence, then word boundaries. The output is deterministic
// and every chunk is non-empty.
func ChunkText(text string, cfg ChunkConfig) []string {
	chunks, _ := chunkText(text, cfg)
	return chunks
}

// chunkText is ChunkText that also reports how many trailing chunks were cut
// by cfg.MaxChunks.
func chunkText(text string, cfg ChunkConfig) (chunks []string, dropped int) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil, 0
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultChunkConfig().MaxChars
	}

	chunks = splitParagraphs(clean, cfg.MaxChars)
	if cfg.MaxChunks > 0 && len(chunks) > cfg.MaxChunks {
		dropped = len(chunks) - cfg.MaxChunks
		chunks = chunks[:cfg.MaxChunks]
	}
	return chunks, dropped
}

func splitParagraphs(text string, limit int) []string {
	var units []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(p) <= limit {
			units = append(units, p)
			continue
		}
		units = append(units, splitSentences(p, limit)...)
	}
	return pack(units, "\n\n", limit)
}

func splitSentences(text string, limit int) []string {
	var units []string
	for _, s := range splitAfter(text, sentenceEnd) {
		if runeLen(s) <= limit {
			units = append(units, s)
			continue
		}
		units = append(units, splitWords(s, limit)...)
	}
	return pack(units, " ", limit)
}

func splitWords(text string, limit int) []string {
	var units []string
	for _, w := range strings.Fields(text) {
		if runeLen(w) <= limit {
			units = append(units, w)
			continue
		}
		units = append(units, hardSplit(w, limit)...)
	}
	return pack(units, " ", limit)
}

func hardSplit(text string, limit int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// splitAfter splits text after each match of re, keeping the punctuation with
// the preceding sentence.
func splitAfter(text string, re *regexp.Regexp) []string {
	var out []string
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// pack greedily joins consecutive units with sep while staying within limit runes.
// Every unit is already at most limit runes.
func pack(units []string, sep string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	sepLen := runeLen(sep)

	for _, u := range units {
		uLen := runeLen(u)
		if curLen > 0 && curLen+sepLen+uLen > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(u)
		curLen += uLen
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
