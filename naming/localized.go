package naming

import (
	"strings"

	"github.com/trace2e/t2ecore/t2eerrors"
)

func invalidLocalizedFormat(s string) error {
	return t2eerrors.InvalidResourceFormat("malformed localized resource %q", s)
}

// LocalizedResource pairs a Resource with the node that owns it. It is used
// wherever a resource's owning node matters: compliance requests,
// provenance keys, and the Destination hierarchy consumed by consent.
type LocalizedResource struct {
	NodeID   string
	Resource Resource
}

// NewLocalized builds a LocalizedResource.
func NewLocalized(nodeID string, r Resource) LocalizedResource {
	return LocalizedResource{NodeID: nodeID, Resource: r}
}

// String renders as "<resource>@<node_id>", per spec §6.
func (l LocalizedResource) String() string {
	return l.Resource.String() + "@" + l.NodeID
}

// ParseLocalized parses the "<resource>@<node_id>" textual form.
func ParseLocalized(s string) (LocalizedResource, error) {
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return LocalizedResource{}, invalidLocalizedFormat(s)
	}
	r, err := Parse(s[:idx])
	if err != nil {
		return LocalizedResource{}, err
	}
	nodeID := s[idx+1:]
	if nodeID == "" {
		return LocalizedResource{}, invalidLocalizedFormat(s)
	}
	return LocalizedResource{NodeID: nodeID, Resource: r}, nil
}
