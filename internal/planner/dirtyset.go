package planner

import (
	"strings"

	"weavecore/internal/dagutil"
	"weavecore/internal/ids"
	"weavecore/internal/store"
)

// BuildJobGraph derives the job-level dependency graph from each job's
// resolved inputs and fan-in members against every other job's produces
// (§4.3.6 "job-level graph... edge-reduced from artifact edges").
func BuildJobGraph(jobs []Job) *dagutil.Graph {
	nodes := make([]string, len(jobs))
	for i, j := range jobs {
		nodes[i] = string(j.JobID)
	}

	var edges [][2]string
	for _, consumer := range jobs {
		wanted := map[ids.ID]bool{}
		for _, in := range consumer.Inputs {
			wanted[in] = true
		}
		for _, producer := range jobs {
			if producer.JobID == consumer.JobID {
				continue
			}
			if jobProducesAnyOf(producer, wanted) {
				edges = append(edges, [2]string{string(producer.JobID), string(consumer.JobID)})
			}
		}
	}
	return dagutil.New(nodes, edges)
}

func jobProducesAnyOf(producer Job, wanted map[ids.ID]bool) bool {
	for _, p := range producer.Produces {
		for w := range wanted {
			if w == p || strings.HasPrefix(string(w), string(p)+"[") {
				return true
			}
		}
	}
	return false
}

// jobConsumesArtifact reports whether job binds art directly, via an
// indexed element access on art, or as a fan-in member (used both for
// override-consumer detection, §4.3.7 step 5, and artifactId restriction).
func jobConsumesArtifact(job Job, art ids.ID) bool {
	for _, in := range job.Inputs {
		if in == art || strings.HasPrefix(string(in), string(art)+"[") {
			return true
		}
	}
	for _, fi := range job.Context.FanIn {
		for _, m := range fi.Members {
			if m.ID == art {
				return true
			}
		}
	}
	return false
}

func priorStatus(job Job, prior *store.Manifest) (anyPresent, hashOK bool) {
	hashOK = true
	if prior == nil {
		return false, false
	}
	for _, pid := range job.Produces {
		entry, ok := prior.Artefacts[pid]
		if !ok {
			hashOK = false
			continue
		}
		anyPresent = true
		if entry.InputsHash != job.InputsHash {
			hashOK = false
		}
	}
	return anyPresent, hashOK
}

func propagateDownstream(dirty map[ids.ID]bool, g *dagutil.Graph) {
	seeds := make([]string, 0, len(dirty))
	for id := range dirty {
		seeds = append(seeds, string(id))
	}
	for _, seed := range seeds {
		for _, down := range g.DownstreamReachable(seed) {
			dirty[ids.ID(down)] = true
		}
	}
}

// ComputeDirty implements the dirty-set computation (§4.3.7): hash-diff
// against the prior manifest, downstream propagation, optional surgical
// override-consumer targeting, optional artifactId scope restriction, and
// optional forced re-run from a layer. Grounded on the invalidate-then-
// decide shape of the sibling incremental-planning reference
// (BuildIncrementalPlan/PlanIncremental), generalized from a flat task DAG
// with one Execute/ReuseCache decision per node to a job DAG additionally
// driven by a targeted leaf-artifact override.
func ComputeDirty(jobs []Job, layerOf map[ids.ID]int, jobGraph *dagutil.Graph, prior *store.Manifest, overrideArtifact *ids.ID, opts Options) map[ids.ID]bool {
	dirty := map[ids.ID]bool{}

	if overrideArtifact != nil {
		for _, job := range jobs {
			if jobConsumesArtifact(job, *overrideArtifact) {
				dirty[job.JobID] = true
			}
		}
	} else {
		for _, job := range jobs {
			anyPresent, hashOK := priorStatus(job, prior)
			if !anyPresent || !hashOK {
				dirty[job.JobID] = true
			}
		}
	}
	propagateDownstream(dirty, jobGraph)

	if opts.ArtifactID != nil {
		restrict := map[ids.ID]bool{}
		for _, job := range jobs {
			if jobConsumesArtifact(job, *opts.ArtifactID) {
				restrict[job.JobID] = true
			}
		}
		propagateDownstream(restrict, jobGraph)
		for id := range dirty {
			if !restrict[id] {
				delete(dirty, id)
			}
		}
	}

	if opts.ReRunFrom != nil {
		for _, job := range jobs {
			if layerOf[job.JobID] >= *opts.ReRunFrom {
				dirty[job.JobID] = true
			}
		}
		propagateDownstream(dirty, jobGraph)
	}

	return dirty
}
