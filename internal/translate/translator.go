// Package translate renders complaint text in the regional language for
// department officials, using the Google Cloud Translation API.
//
// For example, with target "te":
//   - "Large pothole near the bus stand" → "బస్ స్టాండ్ దగ్గర పెద్ద గుంత"
//
// Graceful degradation: if the API key is not set, translation is disabled
// and a nil *Translator is returned. A nil Translator returns its input
// unchanged, so callers never need to check.
//
// Results are cached by a hash of the source text. Repeated dispatches of the
// same complaint therefore compose identical bodies, which keeps the
// dispatcher's duplicate detection effective.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// maxCacheEntries bounds the cache; it is reset when full.
const maxCacheEntries = 10000

// backend is the subset of *translate.Client used here.
type backend interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

// Translator wraps the Cloud Translation client with a result cache.
type Translator struct {
	client backend
	target language.Tag

	mu    sync.RWMutex
	cache map[string]string
}

// NewTranslator creates a Translator for the target language (e.g. "te").
//
// Returns nil if apiKey is empty (graceful degradation).
func NewTranslator(ctx context.Context, apiKey, target string) (*Translator, error) {
	if apiKey == "" {
		log.Println("⚠️  TRANSLATE_API_KEY not set. Regional-language rendering disabled.")
		return nil, nil
	}

	tag, err := language.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid translation target %q: %w", target, err)
	}

	client, err := translate.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create translation client: %w", err)
	}

	log.Printf("✓ Translation configured successfully (target: %s)", tag)
	return newWithBackend(client, tag), nil
}

func newWithBackend(client backend, target language.Tag) *Translator {
	return &Translator{
		client: client,
		target: target,
		cache:  make(map[string]string),
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Translate returns text rendered in the target language.
//
// Returns text unchanged when the Translator is nil or text is empty.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	if t == nil || text == "" {
		return text, nil
	}

	key := cacheKey(text)
	t.mu.RLock()
	cached, ok := t.cache[key]
	t.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resp, err := t.client.Translate(ctx, []string{text}, t.target, &translate.Options{
		Format: translate.Text,
	})
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("translation returned no result")
	}

	out := resp[0].Text
	t.mu.Lock()
	if len(t.cache) >= maxCacheEntries {
		t.cache = make(map[string]string)
	}
	t.cache[key] = out
	t.mu.Unlock()

	return out, nil
}

// Close releases the underlying client.
func (t *Translator) Close() error {
	if t == nil {
		return nil
	}
	return t.client.Close()
}
