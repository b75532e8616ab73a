// Package protocol models the endpoint schema conventions an agent can
// declare: A2A agent cards, MCP tool manifests, OASF skill records, plain
// web endpoints, and an opaque catch-all. The family is decided once, when
// the metadata document is parsed, instead of re-deriving it from the raw
// service name at every check site.
package protocol

import "strings"

// Family is the closed set of endpoint schema conventions.
type Family int

const (
	// FamilyUnknown endpoints are only checked for reachability.
	FamilyUnknown Family = iota
	FamilyA2A
	FamilyMCP
	FamilyOASF
	FamilyWeb
	// FamilyTwitter and FamilyEmail are declared contact channels, not
	// probeable service endpoints.
	FamilyTwitter
	FamilyEmail
)

// ParseFamily maps a declared service name onto a family,
// case-insensitively. Anything unrecognized is FamilyUnknown.
func ParseFamily(serviceName string) Family {
	switch strings.ToUpper(strings.TrimSpace(serviceName)) {
	case "A2A":
		return FamilyA2A
	case "MCP":
		return FamilyMCP
	case "OASF":
		return FamilyOASF
	case "WEB":
		return FamilyWeb
	case "TWITTER":
		return FamilyTwitter
	case "EMAIL":
		return FamilyEmail
	default:
		return FamilyUnknown
	}
}

func (f Family) String() string {
	switch f {
	case FamilyA2A:
		return "a2a"
	case FamilyMCP:
		return "mcp"
	case FamilyOASF:
		return "oasf"
	case FamilyWeb:
		return "web"
	case FamilyTwitter:
		return "twitter"
	case FamilyEmail:
		return "email"
	default:
		return "unknown"
	}
}

// Observed is what an endpoint actually reported, extracted from its raw
// JSON body. Fields are empty when the response did not carry them.
type Observed struct {
	Family  Family
	Name    string
	Version string
	// Skills are A2A skill ids or OASF skill paths; Tools are MCP tool
	// names. Kept separate because the matching rules differ.
	Skills []string
	Tools  []string
}

// Extract pulls the consistency-relevant fields out of a raw endpoint
// response for the given family.
func Extract(family Family, raw map[string]any) Observed {
	obs := Observed{Family: family}
	if raw == nil {
		return obs
	}

	switch family {
	case FamilyA2A:
		obs.Name = stringField(raw, "name")
		obs.Version = stringField(raw, "version")
		// A2A skills are objects with an "id", but bare strings appear in
		// the wild too.
		obs.Skills = idList(raw["skills"], "id")
	case FamilyMCP:
		obs.Name = stringField(raw, "name")
		obs.Version = stringField(raw, "protocolVersion")
		if obs.Version == "" {
			obs.Version = stringField(raw, "version")
		}
		obs.Tools = idList(raw["tools"], "name")
	case FamilyOASF:
		obs.Version = stringField(raw, "version")
		obs.Skills = idList(raw["skills"], "name")
	}
	return obs
}

// HasField reports whether the raw response carries a key at the top level.
func HasField(raw map[string]any, key string) bool {
	if raw == nil {
		return false
	}
	_, ok := raw[key]
	return ok
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// idList flattens an array of strings or objects (taking objKey from
// objects) into a string list.
func idList(v any, objKey string) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range arr {
		switch it := item.(type) {
		case string:
			out = append(out, it)
		case map[string]any:
			if s, ok := it[objKey].(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
