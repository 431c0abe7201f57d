// Package anonymize removes personally identifying information from parsed
// filing records before they enter the training corpus. Detection combines
// content regexes, a business-suffix entity scan, and field-name sets;
// replacements are deterministic tokens that can be reversed through the
// vault, or random ones that cannot.
package anonymize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize/vault"
	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
)

// Level selects how much is removed and whether it can come back.
type Level string

const (
	LevelNone         Level = "NONE"
	LevelPartial      Level = "PARTIAL"
	LevelFull         Level = "FULL"
	LevelIrreversible Level = "IRREVERSIBLE"
)

// MetadataKey is the reserved field the engine writes its summary block
// under. It is never scanned or anonymized.
const MetadataKey = "_anonymization"

// Metadata summarizes one anonymization pass.
type Metadata struct {
	Level           Level     `json:"level"`
	AnonymizedAt    time.Time `json:"anonymized_at"`
	PIIKindsRemoved []string  `json:"pii_kinds_removed"`
	PIICount        int       `json:"pii_count"`
}

// Engine applies a level of anonymization to record values.
type Engine struct {
	secret []byte
	vault  *vault.Store
	logger *slog.Logger
}

// New builds an Engine. The vault may be nil when only IRREVERSIBLE or
// PARTIAL-without-reversal passes will run; FULL requires it.
func New(secret []byte, v *vault.Store) *Engine {
	return &Engine{
		secret: secret,
		vault:  v,
		logger: slog.Default().With("component", "anonymize"),
	}
}

type accumulator struct {
	kinds map[Kind]int
	count int
}

// Anonymize deep-copies value, replaces detected PII per level, and attaches
// the metadata block when the root is a map. The input is never mutated.
func (e *Engine) Anonymize(ctx context.Context, value interface{}, level Level) (interface{}, Metadata, error) {
	meta := Metadata{Level: level, AnonymizedAt: time.Now().UTC(), PIIKindsRemoved: []string{}}
	if level == LevelNone {
		return deepCopy(value), meta, nil
	}
	if level == LevelFull && e.vault == nil {
		return nil, meta, errkind.Wrap(errkind.ErrAnonymization, "FULL level requires a vault")
	}

	acc := &accumulator{kinds: make(map[Kind]int)}
	out, err := e.walk(ctx, value, "", level, acc)
	if err != nil {
		return nil, meta, err
	}

	meta.PIICount = acc.count
	for k := range acc.kinds {
		meta.PIIKindsRemoved = append(meta.PIIKindsRemoved, string(k))
	}
	sort.Strings(meta.PIIKindsRemoved)

	if root, ok := out.(map[string]interface{}); ok {
		root[MetadataKey] = map[string]interface{}{
			"level":             string(meta.Level),
			"anonymized_at":     meta.AnonymizedAt.Format(time.RFC3339),
			"pii_kinds_removed": meta.PIIKindsRemoved,
			"pii_count":         meta.PIICount,
		}
	}
	e.logger.Debug("anonymization pass complete",
		"level", level, "pii_count", meta.PIICount)
	return out, meta, nil
}

func (e *Engine) walk(ctx context.Context, v interface{}, fieldKey string, level Level, acc *accumulator) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, errkind.Wrap(errkind.ErrCancelled, "anonymization: %v", ctx.Err())
	default:
	}

	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if k == MetadataKey {
				out[k] = deepCopy(child)
				continue
			}
			leaf := strings.ToLower(k)
			if financialFields[leaf] {
				out[k] = deepCopy(child)
				continue
			}
			if kind, identifying := identifyingFields[leaf]; identifying && level != LevelPartial {
				if s, isString := child.(string); isString && s != "" && !IsToken(s) {
					token, err := e.tokenFor(ctx, kind, s, level)
					if err != nil {
						return nil, err
					}
					out[k] = token
					acc.kinds[kind]++
					acc.count++
					continue
				}
			}
			replaced, err := e.walk(ctx, child, leaf, level, acc)
			if err != nil {
				return nil, err
			}
			out[k] = replaced
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			replaced, err := e.walk(ctx, child, fieldKey, level, acc)
			if err != nil {
				return nil, err
			}
			out[i] = replaced
		}
		return out, nil

	case string:
		return e.scrubString(ctx, val, level, acc)

	default:
		// numbers, bools, nil pass through untouched
		return v, nil
	}
}

// scrubString replaces detected spans right to left so earlier offsets stay
// valid.
func (e *Engine) scrubString(ctx context.Context, s string, level Level, acc *accumulator) (string, error) {
	spans := detectText(stripTokens(s), level != LevelPartial)
	if len(spans) == 0 {
		return s, nil
	}
	out := s
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		token, err := e.tokenFor(ctx, sp.Kind, sp.Text, level)
		if err != nil {
			return "", err
		}
		out = out[:sp.Start] + token + out[sp.End:]
		acc.kinds[sp.Kind]++
		acc.count++
	}
	return out, nil
}

func (e *Engine) tokenFor(ctx context.Context, kind Kind, plaintext string, level Level) (string, error) {
	if level == LevelIrreversible {
		return irreversibleToken(kind)
	}
	token := reversibleToken(e.secret, kind, plaintext)
	if e.vault != nil {
		if err := e.vault.Put(ctx, token, plaintext); err != nil {
			return "", errkind.Wrap(errkind.ErrAnonymization, "vault put for %s: %v", kind, err)
		}
	}
	return token, nil
}

// Deanonymize resolves reversible tokens back to plaintext using a vault
// access grant. Tokens the vault does not know (irreversible ones) are left
// in place and counted.
func (e *Engine) Deanonymize(ctx context.Context, value interface{}, grant string) (interface{}, int, error) {
	if e.vault == nil {
		return nil, 0, errkind.Wrap(errkind.ErrAnonymization, "no vault configured")
	}
	unresolved := 0
	var resolve func(v interface{}) (interface{}, error)
	resolve = func(v interface{}) (interface{}, error) {
		switch val := v.(type) {
		case map[string]interface{}:
			out := make(map[string]interface{}, len(val))
			for k, child := range val {
				if k == MetadataKey {
					continue
				}
				r, err := resolve(child)
				if err != nil {
					return nil, err
				}
				out[k] = r
			}
			return out, nil
		case []interface{}:
			out := make([]interface{}, len(val))
			for i, child := range val {
				r, err := resolve(child)
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		case string:
			var resolveErr error
			replaced := tokenRe.ReplaceAllStringFunc(val, func(token string) string {
				plaintext, err := e.vault.Reveal(ctx, token, grant)
				if err != nil {
					if isNotFound(err) {
						unresolved++
						return token
					}
					resolveErr = err
					return token
				}
				return plaintext
			})
			if resolveErr != nil {
				return nil, fmt.Errorf("deanonymize: %w", resolveErr)
			}
			return replaced, nil
		default:
			return v, nil
		}
	}
	out, err := resolve(value)
	if err != nil {
		return nil, 0, err
	}
	return out, unresolved, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, vault.ErrTokenNotFound)
}

func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = deepCopy(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
