package eval

import "hash/fnv"

// CohortBucket returns the agent's stable bucket in [0,100) for the given
// policy. The hash covers both ids with a separator so ("ab","c") and
// ("a","bc") land in independent buckets.
func CohortBucket(agentID, policyID string) int {
	h := fnv.New64a()
	h.Write([]byte(agentID))
	h.Write([]byte{0})
	h.Write([]byte(policyID))
	return int(h.Sum64() % 100)
}

// InCohort reports whether the agent falls inside the enforced cohort at
// the given tier percentage. Inclusion is monotonic: an agent included at
// a lower percentage stays included at every higher one.
func InCohort(agentID, policyID string, tierPercent int) bool {
	if tierPercent <= 0 {
		return false
	}
	if tierPercent >= 100 {
		return true
	}
	return CohortBucket(agentID, policyID) < tierPercent
}
