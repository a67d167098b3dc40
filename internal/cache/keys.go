package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// RequestKey derives a stable key for an API request. Query parameters are
// sorted so equivalent URLs share a key; the credential headers named in
// scope keep responses for different users apart.
func RequestKey(method string, u *url.URL, scope ...string) string {
	parts := []string{strings.ToUpper(method), u.Host, u.Path}

	q := u.Query()
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		vals := append([]string(nil), q[name]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, name+"="+v)
		}
	}
	parts = append(parts, scope...)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "api:" + hex.EncodeToString(sum[:16])
}
