package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// SearchKey computes the stable, provider-independent cache key for a
// search: hex(SHA-256(canonicalJSON({q, type, filters}))).
func SearchKey(query, searchType string, filters map[string]string) string {
	type canonical struct {
		Q       string   `json:"q"`
		Type    string   `json:"type"`
		Filters []string `json:"filters"`
	}

	sortedFilters := make([]string, 0, len(filters))
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sortedFilters = append(sortedFilters, k+"="+filters[k])
	}

	c := canonical{
		Q:       strings.ToLower(strings.TrimSpace(query)),
		Type:    searchType,
		Filters: sortedFilters,
	}

	b, err := sonic.Marshal(c)
	if err != nil {
		// sonic.Marshal on a plain struct of strings cannot fail; this is
		// unreachable in practice.
		panic(err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
