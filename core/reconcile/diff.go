package reconcile

import "sort"

// Diff classifies every record of local and cloud. It is pure and deterministic.
func Diff(local, cloud Snapshot) (*DiffResult, error) {
	result := &DiffResult{Collections: make(map[CollectionName]*CollectionDiff, len(Collections))}

	for _, name := range Collections {
		lc, err := local.Collection(name)
		if err != nil {
			return nil, err
		}
		cc, err := cloud.Collection(name)
		if err != nil {
			return nil, err
		}
		cd := diffCollection(name, lc, cc)
		result.Collections[name] = cd

		if name == CollectionSettings {
			result.Settings = SettingsDiff{
				HasConflict: len(cd.Conflicts) > 0,
				Local:       lc[SettingsKey],
				Cloud:       cc[SettingsKey],
			}
		}
	}
	return result, nil
}

func diffCollection(name CollectionName, local, cloud Collection) *CollectionDiff {
	cd := &CollectionDiff{
		Collection: name,
		TotalLocal: len(local),
		TotalCloud: len(cloud),
		CloudOnly:  []string{},
		LocalOnly:  []string{},
		Conflicts:  []Conflict{},
	}

	for id, cv := range cloud {
		lv, ok := local[id]
		if !ok {
			cd.CloudOnly = append(cd.CloudOnly, id)
			continue
		}
		if recordsEqual(lv, cv) {
			cd.IdenticalCount++
			continue
		}
		rec, lt, ct := recommend(lv, cv)
		cd.Conflicts = append(cd.Conflicts, Conflict{
			Collection:     name,
			ID:             id,
			Local:          lv,
			Cloud:          cv,
			LocalUpdatedAt: lt,
			CloudUpdatedAt: ct,
			Recommendation: rec,
		})
	}
	for id := range local {
		if _, ok := cloud[id]; !ok {
			cd.LocalOnly = append(cd.LocalOnly, id)
		}
	}

	sort.Strings(cd.CloudOnly)
	sort.Strings(cd.LocalOnly)
	sort.Slice(cd.Conflicts, func(i, j int) bool { return cd.Conflicts[i].ID < cd.Conflicts[j].ID })
	cd.CloudOnlyCount = len(cd.CloudOnly)
	cd.LocalOnlyCount = len(cd.LocalOnly)
	return cd
}

// Collection returns the diff of one collection, or an empty diff when absent.
func (d *DiffResult) Collection(name CollectionName) *CollectionDiff {
	if d != nil {
		if cd, ok := d.Collections[name]; ok {
			return cd
		}
	}
	return &CollectionDiff{Collection: name, CloudOnly: []string{}, LocalOnly: []string{}, Conflicts: []Conflict{}}
}

// Conflicts returns every record-level conflict in collection order, then id
// order. The settings object is reported separately through Settings.
func (d *DiffResult) Conflicts() []Conflict {
	var out []Conflict
	for _, name := range Collections {
		if name == CollectionSettings {
			continue
		}
		out = append(out, d.Collection(name).Conflicts...)
	}
	return out
}

// ConflictCount returns the number of record-level conflicts.
func (d *DiffResult) ConflictCount() int {
	n := 0
	for _, name := range Collections {
		if name != CollectionSettings {
			n += len(d.Collection(name).Conflicts)
		}
	}
	return n
}
