// Package chunker splits interaction text into inference windows.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures chunking behavior. Sizes are in runes.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// ChunkResult is one window of the original text.
type ChunkResult struct {
	Text string
	Seq  int
}

// Runes returns the window length in runes.
func (c ChunkResult) Runes() int { return utf8.RuneCountInString(c.Text) }

// Chunk splits text into windows. Text of at most MaxSize runes is returned
// as a single window.
func Chunk(text string, opts Options) []ChunkResult {
	if opts.TargetSize <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.TargetSize > opts.MaxSize {
		opts.TargetSize = opts.MaxSize
	}

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}
	if runeLen(text) <= opts.MaxSize {
		return []ChunkResult{{Text: text}}
	}

	return mergeSentences(splitSentences(text), opts)
}

// splitSentences splits on sentence terminators and blank lines, keeping
// the terminator with its sentence.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cur.WriteRune(r)

		switch {
		case r == '\n' && i+1 < len(runes) && runes[i+1] == '\n':
			flush()
		case r == '.' || r == '!' || r == '?':
			// swallow runs like "?!" or "..."
			for i+1 < len(runes) && strings.ContainsRune(".!?", runes[i+1]) {
				i++
				cur.WriteRune(runes[i])
			}
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}

// mergeSentences packs sentences up to TargetSize and hard-splits any
// sentence longer than MaxSize.
func mergeSentences(sentences []string, opts Options) []ChunkResult {
	var results []ChunkResult
	var accum string

	emit := func(s string) {
		results = append(results, ChunkResult{Text: s, Seq: len(results)})
	}
	flushAccum := func() {
		if accum != "" {
			emit(accum)
			accum = ""
		}
	}

	for _, s := range sentences {
		if runeLen(s) > opts.MaxSize {
			flushAccum()
			for _, part := range hardSplit(s, opts) {
				emit(part)
			}
			continue
		}
		if accum == "" {
			accum = s
			continue
		}
		combined := accum + " " + s
		if runeLen(combined) <= opts.TargetSize {
			accum = combined
		} else {
			flushAccum()
			accum = s
		}
	}
	flushAccum()

	return results
}

// hardSplit breaks text on word boundaries into pieces of at most
// TargetSize runes. A single word longer than MaxSize is cut.
func hardSplit(text string, opts Options) []string {
	var results []string
	var current []string
	curLen := 0

	for _, word := range strings.Fields(text) {
		wl := runeLen(word)
		for wl > opts.MaxSize {
			if len(current) > 0 {
				results = append(results, strings.Join(current, " "))
				current, curLen = nil, 0
			}
			r := []rune(word)
			results = append(results, string(r[:opts.MaxSize]))
			word = string(r[opts.MaxSize:])
			wl = len(r) - opts.MaxSize
		}
		if curLen+wl > opts.TargetSize && len(current) > 0 {
			results = append(results, strings.Join(current, " "))
			current, curLen = nil, 0
		}
		if wl == 0 {
			continue
		}
		current = append(current, word)
		curLen += wl + 1
	}
	if len(current) > 0 {
		results = append(results, strings.Join(current, " "))
	}
	return results
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
