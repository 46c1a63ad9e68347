// Package clientcompat identifies the widget build calling the API and turns
// away builds older than the configured minimum.
package clientcompat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// Header is the request header the widget sends on every call.
const Header = "Widget-Client"

// Client describes the calling widget build.
type Client struct {
	Version string // canonical semver, "v1.2.0"
	Build   string // optional build id
}

// ParseHeader reads the Widget-Client header.
// Format: version="1.2.0", build="abc123" (RFC 8941 Dictionary).
//
// Examples:
//   - version="1.2.0"              → v1.2.0
//   - version="v2.0.1";channel=web → v2.0.1 (params ignored)
//
// Returns error if header is empty, malformed, or has no valid version.
func ParseHeader(header string) (Client, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Client{}, errors.New("empty Widget-Client header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Client{}, fmt.Errorf("invalid Widget-Client header: %w", err)
	}

	raw, err := stringMember(dict, "version")
	if err != nil {
		return Client{}, err
	}
	if raw == "" {
		return Client{}, errors.New("version key not found in Widget-Client header")
	}
	v := Canonical(raw)
	if !semver.IsValid(v) {
		return Client{}, fmt.Errorf("version %q is not a semantic version", raw)
	}

	build, err := stringMember(dict, "build")
	if err != nil {
		return Client{}, err
	}
	return Client{Version: v, Build: build}, nil
}

// stringMember returns a dictionary string item, "" when absent.
func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	s, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return s, nil
}

// Canonical adds the "v" prefix semver parsing needs.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

// Supported reports whether version meets min. An empty min accepts all.
func Supported(version, min string) bool {
	if min == "" {
		return true
	}
	return semver.Compare(Canonical(version), Canonical(min)) >= 0
}

// FormatHeader renders c as a Widget-Client header value.
// The "v" prefix is dropped: version="1.2.0".
func FormatHeader(c Client) (string, error) {
	v := Canonical(c.Version)
	if !semver.IsValid(v) {
		return "", fmt.Errorf("version %q is not a semantic version", c.Version)
	}
	dict := httpsfv.NewDictionary()
	dict.Add("version", httpsfv.NewItem(strings.TrimPrefix(v, "v")))
	if c.Build != "" {
		dict.Add("build", httpsfv.NewItem(c.Build))
	}
	return httpsfv.Marshal(dict)
}
