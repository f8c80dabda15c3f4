package graph

// ClusterMap groups nodes by feature-vector similarity using a small,
// fixed k-means pass. It is used only by consolidation's deduplication
// to narrow duplicate-pair comparisons to nodes that are plausibly
// alike; clustering parameters (k, iteration count) are
// implementation-defined, per the open question on clustering — callers
// observe only coarse dedup behavior, never exact cluster assignment.
type ClusterMap struct {
	nodeCluster map[NodeID]int
	clusters    map[int][]NodeID
	centroids   [][]float32
}

const (
	clusterIterations = 10
	clusterMaxK        = 16
)

// NewClusterMap returns an empty ClusterMap.
func NewClusterMap() *ClusterMap {
	return &ClusterMap{
		nodeCluster: make(map[NodeID]int),
		clusters:    make(map[int][]NodeID),
	}
}

// BuildClusterMap runs k-means over every node with a non-zero feature
// vector. Nodes with an all-zero vector are placed in cluster 0 without
// affecting centroid computation.
func BuildClusterMap(nodes []*CognitiveEvent) *ClusterMap {
	cm := NewClusterMap()
	if len(nodes) == 0 {
		return cm
	}

	var withVec []*CognitiveEvent
	for _, n := range nodes {
		if !IsZeroVector(n.FeatureVec) {
			withVec = append(withVec, n)
		}
	}
	if len(withVec) == 0 {
		for _, n := range nodes {
			cm.nodeCluster[n.ID] = 0
			cm.clusters[0] = append(cm.clusters[0], n.ID)
		}
		return cm
	}

	k := len(withVec) / 5
	if k < 1 {
		k = 1
	}
	if k > clusterMaxK {
		k = clusterMaxK
	}
	if k > len(withVec) {
		k = len(withVec)
	}

	dim := len(withVec[0].FeatureVec)
	centroids := make([][]float32, k)
	step := len(withVec) / k
	for i := 0; i < k; i++ {
		src := withVec[i*step].FeatureVec
		c := make([]float32, dim)
		copy(c, src)
		centroids[i] = c
	}

	assignment := make(map[NodeID]int, len(withVec))
	for iter := 0; iter < clusterIterations; iter++ {
		changed := false
		for _, n := range withVec {
			best, bestDist := 0, squaredDist(n.FeatureVec, centroids[0])
			for c := 1; c < k; c++ {
				d := squaredDist(n.FeatureVec, centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignment[n.ID] != best {
				changed = true
			}
			assignment[n.ID] = best
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, dim)
		}
		for _, n := range withVec {
			c := assignment[n.ID]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += n.FeatureVec[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}
		if !changed {
			break
		}
	}

	cm.centroids = centroids
	for _, n := range withVec {
		c := assignment[n.ID]
		cm.nodeCluster[n.ID] = c
		cm.clusters[c] = append(cm.clusters[c], n.ID)
	}
	for _, n := range nodes {
		if IsZeroVector(n.FeatureVec) {
			cm.nodeCluster[n.ID] = 0
			cm.clusters[0] = append(cm.clusters[0], n.ID)
		}
	}

	return cm
}

func squaredDist(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// AddNode assigns event to its nearest existing centroid, or to cluster
// 0 if no centroids exist yet or the vector is all-zero.
func (cm *ClusterMap) AddNode(event *CognitiveEvent) {
	if len(cm.centroids) == 0 || IsZeroVector(event.FeatureVec) {
		cm.nodeCluster[event.ID] = 0
		cm.clusters[0] = append(cm.clusters[0], event.ID)
		return
	}
	best, bestDist := 0, squaredDist(event.FeatureVec, cm.centroids[0])
	for c := 1; c < len(cm.centroids); c++ {
		d := squaredDist(event.FeatureVec, cm.centroids[c])
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	cm.nodeCluster[event.ID] = best
	cm.clusters[best] = append(cm.clusters[best], event.ID)
}

// RemoveNode removes id from its cluster bucket.
func (cm *ClusterMap) RemoveNode(id NodeID) {
	c, ok := cm.nodeCluster[id]
	if !ok {
		return
	}
	delete(cm.nodeCluster, id)
	bucket := cm.clusters[c]
	for i, v := range bucket {
		if v == id {
			cm.clusters[c] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

// Clear empties the cluster map.
func (cm *ClusterMap) Clear() {
	cm.nodeCluster = make(map[NodeID]int)
	cm.clusters = make(map[int][]NodeID)
	cm.centroids = nil
}

// Rebuild reruns k-means from scratch.
func (cm *ClusterMap) Rebuild(nodes []*CognitiveEvent) {
	*cm = *BuildClusterMap(nodes)
}

// ClusterOf returns the cluster id a node belongs to.
func (cm *ClusterMap) ClusterOf(id NodeID) (int, bool) {
	c, ok := cm.nodeCluster[id]
	return c, ok
}

// Members returns every node id in a cluster.
func (cm *ClusterMap) Members(cluster int) []NodeID {
	return cm.clusters[cluster]
}

// Clusters returns every non-empty cluster id.
func (cm *ClusterMap) Clusters() []int {
	out := make([]int, 0, len(cm.clusters))
	for c, members := range cm.clusters {
		if len(members) > 0 {
			out = append(out, c)
		}
	}
	return out
}
