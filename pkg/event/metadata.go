package event

import (
	"encoding/json"
	"sort"
	"strings"
)

// Known metadata keys
const (
	MetaIP       = "ip"
	MetaReferrer = "referrer"
	MetaURL      = "url"
	MetaPath     = "path"
	MetaSource   = "source"
)

// Metadata carries the free-form request context of an event. The
// known keys are typed; anything else the client sends lands in Extra. On
// the wire it is a single flat JSON object.
type Metadata struct {
	IP       string
	Referrer string
	URL      string
	Path     string
	Source   string
	Extra    map[string]string
}

// MarshalJSON flattens known fields and Extra into one object
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toMap())
}

// UnmarshalJSON splits a flat object into known fields and Extra. Non-string
// values are kept as their JSON text.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if strings.TrimSpace(string(data)) == "null" {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			s = string(value)
		}
		m.Set(key, s)
	}
	return nil
}

// Set assigns a metadata key, routing known keys to their typed field
func (m *Metadata) Set(key, value string) {
	switch key {
	case MetaIP:
		m.IP = value
	case MetaReferrer:
		m.Referrer = value
	case MetaURL:
		m.URL = value
	case MetaPath:
		m.Path = value
	case MetaSource:
		m.Source = value
	default:
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[key] = value
	}
}

// WithServerIP returns a copy with ip replaced by the server-observed
// address. No other key is touched.
func (m Metadata) WithServerIP(ip string) Metadata {
	out := m
	if len(m.Extra) > 0 {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	if ip != "" {
		out.IP = ip
	}
	return out
}

// String serializes the metadata for storage; empty metadata becomes "{}"
func (m Metadata) String() string {
	b, err := json.Marshal(m.toMap())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Keys returns the populated keys in sorted order
func (m Metadata) Keys() []string {
	flat := m.toMap()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m Metadata) toMap() map[string]string {
	out := make(map[string]string, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	known := map[string]string{
		MetaIP:       m.IP,
		MetaReferrer: m.Referrer,
		MetaURL:      m.URL,
		MetaPath:     m.Path,
		MetaSource:   m.Source,
	}
	for k, v := range known {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
