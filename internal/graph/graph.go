// Package graph builds the directed multigraph of accounts and transactions.
package graph

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulerift/internal/domain"
)

// Edge is one transaction between two accounts. Parallel edges are retained,
// never collapsed, so both count-based and volume-based analysis work.
type Edge struct {
	TxID      string
	Source    string
	Target    string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Node carries the per-account totals pre-computed during the build pass so
// detectors need no further full scans.
type Node struct {
	ID          string
	InDegree    int
	OutDegree   int
	InVolume    decimal.Decimal
	OutVolume   decimal.Decimal
	DistinctIn  int // distinct sending counterparties
	DistinctOut int // distinct receiving counterparties
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Graph is the immutable account graph for one run. Built once, read-only
// thereafter: no detector mutates it, and accessors return the internal
// slices under that contract.
type Graph struct {
	nodes     map[string]*Node
	out       map[string][]Edge
	in        map[string][]Edge
	nodeIDs   []string
	edgeCount int
}

// Build folds the transaction sequence into an account graph in one pass.
// Both endpoints of every transaction become nodes; self-loops are retained.
func Build(txs []domain.Transaction) *Graph {
	g := &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}

	distinctIn := make(map[string]map[string]struct{})
	distinctOut := make(map[string]map[string]struct{})

	for _, tx := range txs {
		src := g.ensureNode(tx.Source)
		dst := g.ensureNode(tx.Target)

		edge := Edge{
			TxID:      tx.ID,
			Source:    tx.Source,
			Target:    tx.Target,
			Amount:    tx.Amount,
			Timestamp: tx.Timestamp,
		}
		g.out[tx.Source] = append(g.out[tx.Source], edge)
		g.in[tx.Target] = append(g.in[tx.Target], edge)
		g.edgeCount++

		src.OutDegree++
		src.OutVolume = src.OutVolume.Add(tx.Amount)
		dst.InDegree++
		dst.InVolume = dst.InVolume.Add(tx.Amount)

		touch(src, tx.Timestamp)
		touch(dst, tx.Timestamp)

		addDistinct(distinctOut, tx.Source, tx.Target)
		addDistinct(distinctIn, tx.Target, tx.Source)
	}

	for id, node := range g.nodes {
		node.DistinctIn = len(distinctIn[id])
		node.DistinctOut = len(distinctOut[id])
		g.nodeIDs = append(g.nodeIDs, id)
	}
	sort.Strings(g.nodeIDs)

	// Deterministic edge order inside every adjacency list.
	for _, edges := range g.out {
		sortEdges(edges)
	}
	for _, edges := range g.in {
		sortEdges(edges)
	}

	return g
}

func (g *Graph) ensureNode(id string) *Node {
	if node, ok := g.nodes[id]; ok {
		return node
	}
	node := &Node{ID: id}
	g.nodes[id] = node
	return node
}

func touch(n *Node, ts time.Time) {
	if n.FirstSeen.IsZero() || ts.Before(n.FirstSeen) {
		n.FirstSeen = ts
	}
	if ts.After(n.LastSeen) {
		n.LastSeen = ts
	}
}

func addDistinct(sets map[string]map[string]struct{}, key, member string) {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]struct{})
		sets[key] = set
	}
	set[member] = struct{}{}
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].Timestamp.Equal(edges[j].Timestamp) {
			return edges[i].Timestamp.Before(edges[j].Timestamp)
		}
		return edges[i].TxID < edges[j].TxID
	})
}

// NodeCount returns the number of distinct accounts.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of transactions in the graph.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// HasNode reports whether the account appears in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the stats for one account, or nil if unseen.
func (g *Graph) Node(id string) *Node { return g.nodes[id] }

// NodeIDs returns all account ids in lexicographic order.
func (g *Graph) NodeIDs() []string { return g.nodeIDs }

// OutEdges returns the account's outbound transactions, oldest first.
func (g *Graph) OutEdges(id string) []Edge { return g.out[id] }

// InEdges returns the account's inbound transactions, oldest first.
func (g *Graph) InEdges(id string) []Edge { return g.in[id] }
