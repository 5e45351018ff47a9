package reconcile

import "fmt"

// Resolver accumulates per-conflict choices for the manual strategy. It is not
// safe for concurrent use; the owning session serializes access.
type Resolver struct {
	conflicts []Conflict
	index     map[string]int
	explicit  map[string]Choice

	cursor  int
	pending Choice
}

// NewResolver creates a resolver over the given conflicts, positioned on the first.
func NewResolver(conflicts []Conflict) *Resolver {
	r := &Resolver{
		conflicts: append([]Conflict(nil), conflicts...),
		index:     make(map[string]int, len(conflicts)),
		explicit:  make(map[string]Choice),
	}
	for i, c := range r.conflicts {
		r.index[c.Key()] = i
	}
	return r
}

// Len returns the number of conflicts.
func (r *Resolver) Len() int {
	return len(r.conflicts)
}

// Conflicts returns a copy of the conflicts in navigation order.
func (r *Resolver) Conflicts() []Conflict {
	return append([]Conflict(nil), r.conflicts...)
}

// Lookup returns the conflict for a qualified key. A bare record id is accepted
// when it matches exactly one conflict.
func (r *Resolver) Lookup(id string) (Conflict, error) {
	key, err := r.key(id)
	if err != nil {
		return Conflict{}, err
	}
	return r.conflicts[r.index[key]], nil
}

func (r *Resolver) key(id string) (string, error) {
	if _, ok := r.index[id]; ok {
		return id, nil
	}
	found := ""
	for _, c := range r.conflicts {
		if c.ID != id {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: %q is ambiguous, use collection:id", ErrUnknownConflict, id)
		}
		found = c.Key()
	}
	if found == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownConflict, id)
	}
	return found, nil
}

func validChoice(c Choice) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidChoice, c)
	}
	return nil
}

// SetResolution records an explicit choice for one conflict.
func (r *Resolver) SetResolution(id string, c Choice) error {
	if err := validChoice(c); err != nil {
		return err
	}
	key, err := r.key(id)
	if err != nil {
		return err
	}
	r.explicit[key] = c
	if r.cursor < len(r.conflicts) && r.conflicts[r.cursor].Key() == key {
		r.pending = ""
	}
	return nil
}

// Resolution returns the explicit choice, or the recommendation when none was made.
func (r *Resolver) Resolution(id string) (Choice, error) {
	key, err := r.key(id)
	if err != nil {
		return "", err
	}
	if c, ok := r.explicit[key]; ok {
		return c, nil
	}
	return r.conflicts[r.index[key]].Recommendation, nil
}

// SetBatch records several choices. Nothing is recorded if any entry is invalid.
func (r *Resolver) SetBatch(choices map[string]Choice) error {
	resolved := make(map[string]Choice, len(choices))
	for id, c := range choices {
		if err := validChoice(c); err != nil {
			return err
		}
		key, err := r.key(id)
		if err != nil {
			return err
		}
		resolved[key] = c
	}
	for key, c := range resolved {
		r.explicit[key] = c
	}
	r.pending = ""
	return nil
}

// SetAllTo records the same choice for every conflict.
func (r *Resolver) SetAllTo(c Choice) error {
	if err := validChoice(c); err != nil {
		return err
	}
	for _, conflict := range r.conflicts {
		r.explicit[conflict.Key()] = c
	}
	r.pending = ""
	return nil
}

// Resolutions returns a copy of the explicit choices keyed by Conflict.Key,
// including an uncommitted selection on the current conflict.
func (r *Resolver) Resolutions() map[string]Choice {
	out := make(map[string]Choice, len(r.explicit)+1)
	for k, v := range r.explicit {
		out[k] = v
	}
	if r.pending != "" && r.cursor < len(r.conflicts) {
		out[r.conflicts[r.cursor].Key()] = r.pending
	}
	return out
}

// Position returns the zero-based navigation index.
func (r *Resolver) Position() int {
	return r.cursor
}

// Current returns the conflict under the cursor and its effective choice.
func (r *Resolver) Current() (Conflict, Choice, bool) {
	if r.cursor >= len(r.conflicts) {
		return Conflict{}, "", false
	}
	c := r.conflicts[r.cursor]
	if r.pending != "" {
		return c, r.pending, true
	}
	choice, _ := r.Resolution(c.Key())
	return c, choice, true
}

// Select stages a choice for the current conflict. It is committed on navigation.
func (r *Resolver) Select(c Choice) error {
	if err := validChoice(c); err != nil {
		return err
	}
	if r.cursor >= len(r.conflicts) {
		return fmt.Errorf("%w: no current conflict", ErrUnknownConflict)
	}
	r.pending = c
	return nil
}

func (r *Resolver) commit() {
	if r.pending != "" && r.cursor < len(r.conflicts) {
		r.explicit[r.conflicts[r.cursor].Key()] = r.pending
	}
	r.pending = ""
}

// Next commits the staged choice and moves forward. It returns false at the end.
func (r *Resolver) Next() bool {
	r.commit()
	if r.cursor+1 >= len(r.conflicts) {
		return false
	}
	r.cursor++
	return true
}

// Previous commits the staged choice and moves back. It returns false at the start.
func (r *Resolver) Previous() bool {
	r.commit()
	if r.cursor == 0 {
		return false
	}
	r.cursor--
	return true
}
