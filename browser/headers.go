package browser

import (
	"sort"
	"strings"
)

// Headers is an immutable set of extra HTTP headers. The zero value is empty
// and ready to use; every modifier returns a new value.
type Headers struct {
	m map[string]string
}

// NewHeaders builds Headers from alternating key/value pairs. A trailing key
// without a value is ignored.
func NewHeaders(kv ...string) Headers {
	h := Headers{}
	for i := 0; i+1 < len(kv); i += 2 {
		h = h.With(kv[i], kv[i+1])
	}
	return h
}

// With returns a copy of h with key set to value. Keys are matched
// case-insensitively; the last spelling wins.
func (h Headers) With(key, value string) Headers {
	key = strings.TrimSpace(key)
	if key == "" {
		return h
	}
	m := make(map[string]string, len(h.m)+1)
	for k, v := range h.m {
		if !strings.EqualFold(k, key) {
			m[k] = v
		}
	}
	m[key] = value
	return Headers{m: m}
}

// WithCookie returns a copy of h carrying cookie as the cookie header.
// An empty cookie leaves h unchanged.
func (h Headers) WithCookie(cookie string) Headers {
	if cookie == "" {
		return h
	}
	return h.With("cookie", cookie)
}

// Get returns the value for key, matched case-insensitively.
func (h Headers) Get(key string) string {
	for k, v := range h.m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (h Headers) Len() int { return len(h.m) }

// Map returns a copy of the headers as a plain map.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h.m))
	for k, v := range h.m {
		m[k] = v
	}
	return m
}

// Keys returns the header names in sorted order.
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h.m))
	for k := range h.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
