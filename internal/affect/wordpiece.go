package affect

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/rcliao/affect-matrix/internal/apperr"
)

const maxWordRunes = 100

// WordPiece is a BERT-style uncased tokenizer read from a tokenizer.json.
type WordPiece struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
	pad   int64
}

// LoadWordPiece reads the vocab from a HuggingFace tokenizer.json.
func LoadWordPiece(path string) (*WordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var doc struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer %s: %w", path, err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocab", path)
	}
	return NewWordPiece(doc.Model.Vocab), nil
}

// NewWordPiece builds a tokenizer over vocab. Special tokens fall back to
// the standard BERT ids when absent.
func NewWordPiece(vocab map[string]int64) *WordPiece {
	id := func(tok string, fallback int64) int64 {
		if v, ok := vocab[tok]; ok {
			return v
		}
		return fallback
	}
	return &WordPiece{
		vocab: vocab,
		cls:   id("[CLS]", 101),
		sep:   id("[SEP]", 102),
		unk:   id("[UNK]", 100),
		pad:   id("[PAD]", 0),
	}
}

// Tokenize returns token ids without special tokens.
func (t *WordPiece) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range basicSplit(strings.ToLower(text)) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// Encode builds fixed-length input_ids, attention_mask and token_type_ids
// for a sequence of seqLen. Input that does not fit is an error.
func (t *WordPiece) Encode(text string, seqLen int) (ids, mask, types []int64, err error) {
	tokens := t.Tokenize(text)
	if len(tokens)+2 > seqLen {
		return nil, nil, nil, apperr.Errorf(apperr.ConfigInvalid, "tokenize",
			"input needs %d tokens, model window is %d", len(tokens)+2, seqLen)
	}

	ids = make([]int64, seqLen)
	mask = make([]int64, seqLen)
	types = make([]int64, seqLen)
	for i := range ids {
		ids[i] = t.pad
	}

	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1
	return ids, mask, types, nil
}

// wordPiece greedily matches the longest vocab prefix, continuing with
// "##" pieces. A word with any unmatched span becomes [UNK].
func (t *WordPiece) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int64{t.unk}
	}
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	var pieces []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, id)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []int64{t.unk}
		}
	}
	return pieces
}

// basicSplit splits on whitespace and isolates punctuation as its own token.
func basicSplit(text string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}
