package reconcile

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/xxxsen/apisync/internal/mapping"
)

const keyInfix = "_sync_"

func DeriveKey(bundle, externalID string) string {
	return bundle + keyInfix + externalID
}

// KeyPrefix is shared by every key derived for the bundle.
func KeyPrefix(bundle string) string {
	return bundle + keyInfix
}

// ExternalID reads the item's identifier. Only scalars count; an absent, null
// or empty value reports false.
func ExternalID(item map[string]interface{}, field string) (string, bool) {
	v := mapping.Resolve(item, field)
	if v.Kind != mapping.Scalar {
		return "", false
	}
	id, err := cast.ToStringE(v.Scalar)
	if err != nil {
		return "", false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	return id, true
}
