package runner

import (
	"crossref/internal/names"
	"crossref/internal/types"
)

// subjectWork is one unique individual and the features that name them.
type subjectWork struct {
	subject    types.Subject
	featureIDs []string
	static     []types.StaticMatch
}

// featureWork is one worklist row and the individuals it names.
type featureWork struct {
	id          string
	raw         string
	subjectKeys []string
}

// plan is the deduplicated work for a run.
type plan struct {
	subjects []*subjectWork // in first-seen order
	byKey    map[string]*subjectWork
	features map[string]*featureWork
	unusable []types.Candidate
}

// buildPlan normalizes every candidate and merges features that share an
// individual.
func buildPlan(n *names.Normalizer, candidates []types.Candidate) *plan {
	p := &plan{
		byKey:    make(map[string]*subjectWork),
		features: make(map[string]*featureWork),
	}
	for _, c := range candidates {
		subjects := n.Normalize(c.RawName)
		if len(subjects) == 0 {
			p.unusable = append(p.unusable, c)
			continue
		}
		fw, ok := p.features[c.FeatureID]
		if !ok {
			fw = &featureWork{id: c.FeatureID, raw: c.RawName}
			p.features[c.FeatureID] = fw
		}
		for _, s := range subjects {
			sw, ok := p.byKey[s.Key]
			if !ok {
				sw = &subjectWork{subject: s}
				p.byKey[s.Key] = sw
				p.subjects = append(p.subjects, sw)
			}
			if !contains(sw.featureIDs, c.FeatureID) {
				sw.featureIDs = append(sw.featureIDs, c.FeatureID)
			}
			if !contains(fw.subjectKeys, s.Key) {
				fw.subjectKeys = append(fw.subjectKeys, s.Key)
			}
		}
	}
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
