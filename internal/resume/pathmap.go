package resume

import (
	"fmt"

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
)

// PathNameMap maps serialized paths to the node name recorded there.
type PathNameMap map[string]string

// BuildPathNameMap indexes checkpoint rows by path. When a path appears
// more than once the later row wins.
func BuildPathNameMap(records []model.VisitRecord) PathNameMap {
	m := make(PathNameMap, len(records))
	for _, r := range records {
		m[r.Path.String()] = r.NodeName
	}
	return m
}

// Route returns the node names along every prefix of target, root first.
func (m PathNameMap) Route(target treepath.Path) ([]string, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrResumeFailed, err)
	}

	route := make([]string, 0, len(target))
	for _, prefix := range target.Prefixes() {
		name, ok := m[prefix.String()]
		if !ok {
			return nil, fmt.Errorf("%w: %s (target %s)", ErrMissingPrefix, prefix, target)
		}
		route = append(route, name)
	}
	return route, nil
}

// Names returns every recorded name.
func (m PathNameMap) Names() []string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n)
	}
	return names
}
