// Package transliterate converts Urdu script to Roman Urdu for trainees who
// read the Latin alphabet more comfortably.
package transliterate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/drill/internal/anthropic"
)

const maxTokens = 500

var ErrEmptyText = errors.New("text is required")

const systemPrompt = `You are a transliteration assistant. Convert Urdu text in Arabic script to Roman Urdu in Latin script.

Rules:
- Keep English words as they are.
- Use common Roman Urdu spellings.
- Preserve punctuation and formatting.
- Output only the transliterated text.
- If the text is already in Latin script, return it unchanged.

Examples:
"کیا حال ہے" -> "kya haal hai"
"میرا نام احمد ہے" -> "mera naam Ahmad hai"
"Hello, آپ کیسے ہیں?" -> "Hello, aap kaise hain?"`

type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

type Cache interface {
	GetTransliteration(ctx context.Context, text string) (string, bool, error)
	SetTransliteration(ctx context.Context, text, roman string) error
}

type Transliterator struct {
	model  Completer
	cache  Cache
	logger *slog.Logger
}

// New builds a transliterator. A nil model makes Romanize return its input;
// a nil cache falls back to a bounded in-process cache.
func New(model Completer, cache Cache, logger *slog.Logger) *Transliterator {
	if cache == nil {
		cache = NewMemoryCache(DefaultMemoryEntries)
	}
	return &Transliterator{model: model, cache: cache, logger: logger}
}

// Romanize returns the Roman Urdu form of text. Model failures degrade to
// returning the input unchanged.
func (t *Transliterator) Romanize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if !hasArabicScript(text) || t.model == nil {
		return text, nil
	}

	if roman, ok, err := t.cache.GetTransliteration(ctx, text); err != nil {
		t.logger.Warn("transliteration cache read failed", "error", err)
	} else if ok {
		return roman, nil
	}

	out, err := t.model.Complete(ctx, systemPrompt, []anthropic.Message{{Role: "user", Content: text}}, maxTokens)
	if err != nil {
		t.logger.Warn("transliteration failed", "error", err)
		return text, nil
	}
	roman := strings.TrimSpace(out)
	if roman == "" {
		return text, nil
	}

	if err := t.cache.SetTransliteration(ctx, text, roman); err != nil {
		t.logger.Warn("transliteration cache write failed", "error", err)
	}
	return roman, nil
}

func hasArabicScript(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
