package reconcile

import (
	"bytes"
	"encoding/json"

	"restore-manager/core/utils"
)

// canonical encodes v as JSON. Map keys are sorted by encoding/json, so two
// deeply equal values produce identical bytes.
func canonical(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

// recordsEqual reports deep value equality. Values that cannot be encoded are
// never equal, not even to themselves.
func recordsEqual(a, b Record) bool {
	ca, ok := canonical(a)
	if !ok {
		return false
	}
	cb, ok := canonical(b)
	if !ok {
		return false
	}
	return bytes.Equal(ca, cb)
}

// updatedAt extracts the record timestamp in milliseconds.
func updatedAt(r Record) (int64, bool) {
	m, ok := r.(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := m["updatedAt"]
	if !ok {
		return 0, false
	}
	return utils.ToInt64(v)
}

// recommend returns the side with the strictly newer timestamp, or merge when
// the timestamps are equal or either is missing.
func recommend(local, cloud Record) (Choice, *int64, *int64) {
	lt, lok := updatedAt(local)
	ct, cok := updatedAt(cloud)
	var lp, cp *int64
	if lok {
		lp = &lt
	}
	if cok {
		cp = &ct
	}
	if !lok || !cok || lt == ct {
		return ChoiceMerge, lp, cp
	}
	if lt > ct {
		return ChoiceLocal, lp, cp
	}
	return ChoiceCloud, lp, cp
}

// newer applies last-write-wins. Missing timestamps count as zero and ties
// keep local.
func newer(local, cloud Record) Choice {
	lt, _ := updatedAt(local)
	ct, _ := updatedAt(cloud)
	if ct > lt {
		return ChoiceCloud
	}
	return ChoiceLocal
}
