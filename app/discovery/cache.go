package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/lysyi3m/mention-comb/app/content"
)

// ResultCache stores full-tier outcomes. GetOutcome returns nil, nil on a miss.
type ResultCache interface {
	GetOutcome(ctx context.Context, key string) (*Outcome, error)
	SetOutcome(ctx context.Context, key string, outcome Outcome, ttl time.Duration) error
}

// CacheKey identifies a full-tier verdict by model, intent, company and content.
func CacheKey(model, discoveryPrompt, companyName string, item content.Item) string {
	h := sha256.New()
	for _, part := range []string{model, discoveryPrompt, companyName, item.Hash()} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "discovery:" + hex.EncodeToString(h.Sum(nil))
}
