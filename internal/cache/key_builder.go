package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"dialectgate/internal/canonical"
)

// BuildExactCacheKey hashes the canonical request. The stream flag is
// cleared first: only non-streaming answers are cached, and the entry should
// not depend on how the caller asked for it.
func BuildExactCacheKey(
	req *canonical.Request,
	backend string,
	versionID string,
) (ExactCacheKey, error) {
	normalized := *req
	normalized.Stream = false
	normalized.Model = strings.TrimSpace(req.Model)

	body, err := json.Marshal(normalized)
	if err != nil {
		return ExactCacheKey{}, err
	}

	sum := sha256.Sum256(body)

	return ExactCacheKey{
		Backend:   strings.TrimSpace(backend),
		ModelID:   keySafe(normalized.Model),
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}

// keySafe keeps the ':' separated key layout parseable.
func keySafe(s string) string {
	if s == "" {
		return "default"
	}
	return strings.ReplaceAll(s, ":", "_")
}
