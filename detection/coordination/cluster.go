// Package coordination detects groups of accounts posting near-duplicate
// comment text within one evaluation window. It builds a similarity graph over
// the comments (edges connect pairs above a similarity threshold) and takes
// connected components of two or more distinct accounts as coordinated
// clusters.
package coordination

import (
	"sort"
	"time"

	"github.com/sift-social/sift/detection/texttools"
	"github.com/sift-social/sift/platform"
)

// Config tunes clustering. Thresholds are policy, exposed as configuration.
type Config struct {
	// SimilarityThreshold is the minimum pairwise similarity for an edge.
	SimilarityThreshold float64
	// MinClusterSize is the minimum number of distinct accounts in a cluster.
	MinClusterSize int
	// MinTextRunes filters out very short texts ("nice!", emoji) whose overlap
	// carries no coordination signal. Measured on the normalized text.
	MinTextRunes int
	// Window bounds which comments are compared; zero means all comments in
	// the evaluation set are contemporaneous (the single-post default).
	Window time.Duration
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.85,
		MinClusterSize:      2,
		MinTextRunes:        10,
	}
}

// Cluster is one detected group: accounts that co-produced near-duplicate
// text, the representative (longest, most complete) member text as evidence,
// and the mean similarity of the connecting edges.
type Cluster struct {
	Accounts       []string
	Representative string
	Similarity     float64
	Comments       []platform.Comment
}

type Clusterer struct {
	cfg Config
}

func NewClusterer(cfg Config) *Clusterer {
	def := DefaultConfig()
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.MinClusterSize == 0 {
		cfg.MinClusterSize = def.MinClusterSize
	}
	if cfg.MinTextRunes == 0 {
		cfg.MinTextRunes = def.MinTextRunes
	}
	return &Clusterer{cfg: cfg}
}

// unionFind over comment indices. Pointer-free, arena-indexed.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]] // path halving
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri != rj {
		u.parent[rj] = ri
	}
}

type edge struct {
	i, j int
	sim  float64
}

// Cluster partitions the authors of the given comments into zero or more
// coordinated clusters. Each account lands in at most one cluster per run: if
// an account has qualifying comments in several candidate groups, only its
// highest-similarity edge decides the assignment. Pure function of its inputs.
func (c *Clusterer) Cluster(comments []platform.Comment) []Cluster {
	// candidate arena: comments long enough to carry signal
	var idx []int
	norms := make([]string, len(comments))
	for i, cmt := range comments {
		n := texttools.Normalize(cmt.Text)
		if len([]rune(n)) < c.cfg.MinTextRunes {
			continue
		}
		norms[i] = n
		idx = append(idx, i)
	}
	if len(idx) < 2 {
		return nil
	}

	uf := newUnionFind(len(comments))
	var edges []edge
	bestEdge := make([]float64, len(comments))

	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			i, j := idx[a], idx[b]
			if c.cfg.Window > 0 && outsideWindow(comments[i].CreatedAt, comments[j].CreatedAt, c.cfg.Window) {
				continue
			}
			var sim float64
			if norms[i] == norms[j] {
				sim = 1
			} else {
				sim = jaccard(texttools.Tokenize(comments[i].Text), texttools.Tokenize(comments[j].Text))
			}
			if sim < c.cfg.SimilarityThreshold {
				continue
			}
			uf.union(i, j)
			edges = append(edges, edge{i: i, j: j, sim: sim})
			if sim > bestEdge[i] {
				bestEdge[i] = sim
			}
			if sim > bestEdge[j] {
				bestEdge[j] = sim
			}
		}
	}
	if len(edges) == 0 {
		return nil
	}

	// each account belongs to at most one cluster: the component holding its
	// highest-similarity edge
	assigned := make(map[string]int) // username -> root
	accountBest := make(map[string]float64)
	for _, i := range idx {
		if bestEdge[i] == 0 {
			continue
		}
		user := comments[i].Username
		if best, ok := accountBest[user]; !ok || bestEdge[i] > best {
			accountBest[user] = bestEdge[i]
			assigned[user] = uf.find(i)
		}
	}

	// aggregate edge similarity per component
	simSum := make(map[int]float64)
	simCount := make(map[int]int)
	for _, e := range edges {
		root := uf.find(e.i)
		simSum[root] += e.sim
		simCount[root]++
	}

	// collect member comments per component, honoring account assignment
	members := make(map[int][]int)
	for _, i := range idx {
		if bestEdge[i] == 0 {
			continue
		}
		root := uf.find(i)
		if assigned[comments[i].Username] != root {
			continue
		}
		members[root] = append(members[root], i)
	}

	var out []Cluster
	for root, idxs := range members {
		var accounts []string
		seen := make(map[string]bool)
		var sample []platform.Comment
		rep := ""
		for _, i := range idxs {
			cmt := comments[i]
			if !seen[cmt.Username] {
				seen[cmt.Username] = true
				accounts = append(accounts, cmt.Username)
			}
			sample = append(sample, cmt)
			if len(cmt.Text) > len(rep) || (len(cmt.Text) == len(rep) && cmt.Text < rep) {
				rep = cmt.Text
			}
		}
		if len(accounts) < c.cfg.MinClusterSize {
			continue
		}
		sort.Strings(accounts)
		sort.Slice(sample, func(a, b int) bool { return sample[a].ID < sample[b].ID })
		out = append(out, Cluster{
			Accounts:       accounts,
			Representative: rep,
			Similarity:     simSum[root] / float64(simCount[root]),
			Comments:       sample,
		})
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Similarity != out[b].Similarity {
			return out[a].Similarity > out[b].Similarity
		}
		return out[a].Representative < out[b].Representative
	})
	return out
}

func outsideWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d > window
}
