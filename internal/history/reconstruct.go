package history

import (
	"fmt"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"
	"sbvc/internal/store"
)

// reconstruct replays the difference chain from the root (or the nearest
// cached ancestor) down to id. The content of an id never changes, so cache
// entries stay valid across mutations; returned slices must not be modified.
func (e *Engine) reconstruct(st *store.State, id uint32) ([]byte, error) {
	if content, ok := e.cache.Get(id); ok {
		return content, nil
	}

	var (
		chain   []store.Version
		content []byte
	)
	for cur := id; ; {
		if len(chain) > len(st.Versions) {
			return nil, apperrors.MalformedStore("base chain of version %d does not reach the root", id)
		}
		v, ok := st.Find(cur)
		if !ok {
			if cur == id {
				return nil, apperrors.UnknownVersion(id)
			}
			return nil, apperrors.MalformedStore("version %d has missing base %d", chain[len(chain)-1].ID, cur)
		}
		chain = append(chain, v)
		if v.IsRoot() {
			break
		}
		if cached, ok := e.cache.Get(v.Base); ok {
			content = cached
			break
		}
		cur = v.Base
	}

	for i := len(chain) - 1; i >= 0; i-- {
		next, err := diff.Apply(content, chain[i].Difference)
		if err != nil {
			return nil, fmt.Errorf("reconstructing version %d: %w", chain[i].ID, err)
		}
		content = next
		e.cache.Add(chain[i].ID, content)
	}
	return content, nil
}
