// Package ring clusters co-implicated accounts into fraud rings.
package ring

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/mulerift/internal/domain"
)

// Aggregator unions overlapping ring hints of the same pattern type into
// fraud rings. Overlapping cycles sharing a member therefore merge into one
// ring, and likewise for the other patterns.
type Aggregator struct{}

// NewAggregator creates a ring aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate builds one FraudRing per connected hint cluster. scores must
// cover every signalling account; a ring's risk score is the maximum member
// score, reflecting that a ring is as dangerous as its worst participant.
// The returned assignment maps account id to the ring that claims it.
func (a *Aggregator) Aggregate(signals []domain.DetectionSignal, scores map[string]float64) ([]domain.FraudRing, map[string]string) {
	// Cluster hints per pattern type with union-find.
	clusters := make(map[string]*unionFind)
	for _, sig := range signals {
		if len(sig.RingHint) < 2 {
			continue
		}
		uf, ok := clusters[sig.Pattern]
		if !ok {
			uf = newUnionFind()
			clusters[sig.Pattern] = uf
		}
		first := sig.RingHint[0]
		for _, member := range sig.RingHint[1:] {
			uf.union(first, member)
		}
	}

	var rings []domain.FraudRing
	for pattern, uf := range clusters {
		for _, members := range uf.components() {
			sort.Strings(members)

			risk := 0.0
			for _, member := range members {
				if s := scores[member]; s > risk {
					risk = s
				}
			}

			rings = append(rings, domain.FraudRing{
				RingID:         ringID(pattern, members),
				MemberAccounts: members,
				PatternType:    pattern,
				RiskScore:      math.Round(risk*10) / 10,
			})
		}
	}

	sort.Slice(rings, func(i, j int) bool {
		if rings[i].RiskScore != rings[j].RiskScore {
			return rings[i].RiskScore > rings[j].RiskScore
		}
		return rings[i].RingID < rings[j].RingID
	})

	// Assign each account to its riskiest ring. Rings are already ordered
	// by (risk desc, id asc), so first claim wins deterministically.
	assignment := make(map[string]string)
	for _, r := range rings {
		for _, member := range r.MemberAccounts {
			if _, taken := assignment[member]; !taken {
				assignment[member] = r.RingID
			}
		}
	}

	return rings, assignment
}

// ringID derives a stable identifier from the pattern type and sorted
// member set, so re-running on identical input yields identical ids.
func ringID(pattern string, sortedMembers []string) string {
	sum := sha256.Sum256([]byte(pattern + ":" + strings.Join(sortedMembers, ",")))
	return pattern + "-" + hex.EncodeToString(sum[:4])
}

// unionFind is a plain disjoint-set over account ids with path compression.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(id string) string {
	root, ok := u.parent[id]
	if !ok {
		u.parent[id] = id
		return id
	}
	if root == id {
		return id
	}
	top := u.find(root)
	u.parent[id] = top
	return top
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Smaller root id wins, keeping component roots deterministic.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

func (u *unionFind) components() [][]string {
	byRoot := make(map[string][]string)
	for id := range u.parent {
		root := u.find(id)
		byRoot[root] = append(byRoot[root], id)
	}
	roots := make([]string, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	out := make([][]string, 0, len(roots))
	for _, root := range roots {
		out = append(out, byRoot[root])
	}
	return out
}
