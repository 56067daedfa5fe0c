package utils

import "net/url"

// ResolveRef resolves an avatar or media path returned by the server
// against base. Absolute references and empty strings pass through.
func ResolveRef(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}
