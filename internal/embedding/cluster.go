package embedding

import (
	"math/rand"
	"slices"
	"time"
)

const (
	// MaxClusterIterations caps the refinement loop in KMeans.
	MaxClusterIterations = 100

	// convergenceSimilarity is how close every centroid must stay to its
	// previous position for the loop to stop early.
	convergenceSimilarity = 0.99
)

// Cluster is a group of vectors identified by their input positions.
type Cluster struct {
	Centroid Vector `json:"centroid"`
	Members  []int  `json:"members"`
}

// KMeans groups vectors into at most k clusters using cosine similarity as
// the affinity: each vector joins the centroid it is most similar to.
//
// With fewer vectors than k, each vector becomes its own cluster. Clusters
// that end up empty are dropped. rng seeds centroid selection; nil uses a
// time-seeded source.
func KMeans(vectors []Vector, k int, rng *rand.Rand) []Cluster {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}
	if len(vectors) < k {
		clusters := make([]Cluster, len(vectors))
		for i, v := range vectors {
			clusters[i] = Cluster{Centroid: slices.Clone(v), Members: []int{i}}
		}
		return clusters
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	centroids := make([]Vector, k)
	for i, idx := range rng.Perm(len(vectors))[:k] {
		centroids[i] = slices.Clone(vectors[idx])
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < MaxClusterIterations; iter++ {
		for i, v := range vectors {
			assign[i] = nearest(v, centroids)
		}

		next := recompute(vectors, assign, centroids)
		done := true
		for i := range centroids {
			if !slices.Equal(centroids[i], next[i]) && CosineSimilarity(centroids[i], next[i]) <= convergenceSimilarity {
				done = false
				break
			}
		}
		centroids = next
		if done {
			break
		}
	}

	// final assignment against the settled centroids
	members := make([][]int, k)
	for i, v := range vectors {
		c := nearest(v, centroids)
		members[c] = append(members[c], i)
	}

	var out []Cluster
	for i, m := range members {
		if len(m) == 0 {
			continue
		}
		out = append(out, Cluster{Centroid: centroids[i], Members: m})
	}
	return out
}

// nearest returns the index of the centroid most similar to v. Ties go to
// the lowest index.
func nearest(v Vector, centroids []Vector) int {
	best, bestSim := 0, -2.0
	for i, c := range centroids {
		if sim := CosineSimilarity(v, c); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}

// recompute returns the mean of each cluster's members. A cluster with no
// members keeps its previous centroid.
func recompute(vectors []Vector, assign []int, prev []Vector) []Vector {
	dims := len(prev[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for i, v := range vectors {
		c := assign[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dims)
		}
		for d := 0; d < dims && d < len(v); d++ {
			sums[c][d] += float64(v[d])
		}
		counts[c]++
	}

	next := make([]Vector, len(prev))
	for c := range prev {
		if counts[c] == 0 {
			next[c] = prev[c]
			continue
		}
		mean := make(Vector, dims)
		for d, s := range sums[c] {
			mean[d] = float32(s / float64(counts[c]))
		}
		next[c] = mean
	}
	return next
}
