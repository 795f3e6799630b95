package toolcall

import (
	"strings"

	"github.com/killallgit/agentstream/pkg/refresh"
)

// DefaultObjectKinds are the object kinds whose updates raise refresh signals
var DefaultObjectKinds = []string{"pflicht", "gesetz"}

// ObjectUpdates returns the refresh keys of update_object calls that name a
// known kind and carry an object id. Kinds match case-insensitively and keys
// use the configured spelling. Keys are returned once each, in call order.
func ObjectUpdates(calls []Call, kinds []string) []refresh.Key {
	if len(kinds) == 0 {
		kinds = DefaultObjectKinds
	}
	known := make(map[string]string, len(kinds))
	for _, k := range kinds {
		known[strings.ToLower(k)] = k
	}

	var keys []refresh.Key
	seen := make(map[refresh.Key]bool)
	for _, call := range calls {
		if call.Name != ToolUpdateObject {
			continue
		}
		kind, ok := known[strings.ToLower(call.String("object_type"))]
		if !ok {
			continue
		}
		id := call.String("object_id")
		if id == "" {
			continue
		}
		key := refresh.Key{Kind: kind, ID: id}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
