package planner

import (
	"fmt"
	"sort"

	"weavecore/internal/blueprint"
	"weavecore/internal/graphbuild"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
)

// Cardinalities supplies, per LoopHint.Over path, the resolved array length
// driving dimension expansion (§4.3.1). The planner does not itself walk
// materialized artifact bytes to discover array lengths — callers resolve
// Inputs/prior artifacts first and pass the observed counts here, the same
// way graphbuild.Build receives leaf-decomposition cardinalities from its
// caller rather than inferring them from the schema alone.
type Cardinalities map[string]int

// ExpandJobs performs dimension expansion and job identity assignment
// (§4.3.1), input binding resolution (§4.3.2), virtual-artifact
// decomposition into produces lists (§4.3.3), and single-source-per-input
// gate capture (§4.3.4). Multi-source (fan-in) inputs are left unbound here
// and filled in by InferFanIn once every producer's jobs exist.
func ExpandJobs(g *graphbuild.ProducerGraph, card Cardinalities) ([]Job, error) {
	var jobs []Job
	jobsByAlias := make(map[string][]Job, len(g.Order))

	for _, alias := range g.Order {
		node := g.Nodes[alias]
		dimVectors, err := dimensionVectors(node.Producer, card)
		if err != nil {
			return nil, err
		}

		grouped := groupConnectionsByInput(g.Blueprint, alias)

		for _, dims := range dimVectors {
			jobID := ids.NewProducer(alias, dims...)
			job := Job{
				JobID:          jobID,
				ProducerAlias:  alias,
				DimensionIndex: dims,
				Provider:       node.Producer.Provider,
				Model:          node.Producer.Model,
				Context: JobContext{
					InputBindings: map[string]ids.ID{},
					SDKMapping:    node.Producer.SDKMapping,
					SchemaInput:   node.Producer.InputSchema,
					SchemaOutput:  node.Producer.OutputSchema,
				},
			}

			for _, leaf := range node.Leaves {
				if leaf.Root {
					job.Produces = append(job.Produces, ids.NewArtifact(jobID.Body(), ""))
				} else {
					job.Produces = append(job.Produces, ids.NewArtifact(jobID.Body(), leaf.Path))
				}
			}
			sort.Slice(job.Produces, func(i, j int) bool { return job.Produces[i] < job.Produces[j] })

			for inputName, conns := range grouped {
				if len(conns) > 1 {
					// Resolved by InferFanIn in a later pass; record nothing here.
					continue
				}
				resolved, err := resolveSingleBinding(conns[0], node.Producer, dims)
				if err != nil {
					return nil, err
				}
				job.Context.InputBindings[inputName] = resolved
				job.Inputs = append(job.Inputs, resolved)
			}

			if node.Producer.Condition != nil {
				job.Context.InputConditions = map[string]blueprint.Condition{
					"_producer": resolveConditionForDims(*node.Producer.Condition, node.Producer, dims),
				}
			}

			sort.Slice(job.Inputs, func(i, j int) bool { return job.Inputs[i] < job.Inputs[j] })
			jobs = append(jobs, job)
			jobsByAlias[alias] = append(jobsByAlias[alias], job)
		}
	}

	if err := InferFanIn(g, jobsByAlias, jobs); err != nil {
		return nil, err
	}

	sortJobsCanonical(jobs)
	return jobs, nil
}

// dimensionVectors returns the Cartesian product of a producer's declared
// loop cardinalities, in declared order; a producer with no loops yields a
// single empty vector (§4.3.1).
func dimensionVectors(p blueprint.Producer, card Cardinalities) ([][]int, error) {
	if len(p.Loops) == 0 {
		return [][]int{nil}, nil
	}
	sizes := make([]int, len(p.Loops))
	for i, loop := range p.Loops {
		n, ok := card[loop.Over]
		if !ok {
			return nil, &orcherr.PlanError{Code: "UnknownLoopCardinality", Message: fmt.Sprintf("no resolved cardinality for loop over %q on producer %q", loop.Over, p.Alias), OffendingID: p.Alias}
		}
		sizes[i] = n
	}

	var out [][]int
	var rec func(i int, cur []int)
	rec = func(i int, cur []int) {
		if i == len(sizes) {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for v := 0; v < sizes[i]; v++ {
			rec(i+1, append(cur, v))
		}
	}
	rec(0, nil)
	return out, nil
}

// groupConnectionsByInput buckets every connection targeting alias by its
// consumer-side input name, preserving blueprint declaration order; a
// bucket with more than one entry is a fan-in candidate (§4.3.5).
func groupConnectionsByInput(bp *blueprint.BlueprintTree, alias string) map[string][]blueprint.Connection {
	out := map[string][]blueprint.Connection{}
	for _, c := range bp.Connections {
		if c.ConsumerAlias != alias {
			continue
		}
		out[c.InputName] = append(out[c.InputName], c)
	}
	return out
}

// resolveSingleBinding resolves one non-fan-in connection into the canonical
// ID a job's input should bind to, substituting the job's own dimension
// index when the connection loops over one of this producer's declared
// dimensions (§4.3.2, scenario 5).
func resolveSingleBinding(c blueprint.Connection, p blueprint.Producer, dims []int) (ids.ID, error) {
	elementIdx := -1
	if c.HasElementIndex {
		elementIdx = c.ElementIndex
	}
	if c.Loop != nil {
		if li := loopIndexByName(p.Loops, c.Loop.Name); li >= 0 && li < len(dims) {
			elementIdx = dims[li]
		}
	}

	switch {
	case c.SourceInputName != "":
		base := ids.NewInput(c.SourceInputName)
		if elementIdx >= 0 {
			return ids.Index(base, elementIdx), nil
		}
		return base, nil
	case c.SourceProducerAlias != "":
		base := ids.NewArtifact(c.SourceProducerAlias, c.SourceOutputPath)
		if elementIdx >= 0 {
			return ids.Index(base, elementIdx), nil
		}
		return base, nil
	default:
		return "", &orcherr.PlanError{Code: "UnsatisfiedBinding", Message: fmt.Sprintf("connection for %s.%s has no source", c.ConsumerAlias, c.InputName), OffendingID: c.ConsumerAlias}
	}
}

// resolveConditionForDims substitutes the owning job's dimension index into
// every leaf condition whose Loop names one of the producer's declared
// dimensions, the same way resolveSingleBinding substitutes it into an input
// binding (§4.3.4, §8 scenario 2): without this, a looped producer's gate
// would evaluate the same unindexed artifact path for every fan-out
// instance instead of gating each index independently.
func resolveConditionForDims(c blueprint.Condition, p blueprint.Producer, dims []int) blueprint.Condition {
	if !c.IsLeaf() {
		out := c
		if len(c.Any) > 0 {
			out.Any = make([]blueprint.Condition, len(c.Any))
			for i, sub := range c.Any {
				out.Any[i] = resolveConditionForDims(sub, p, dims)
			}
		}
		if len(c.All) > 0 {
			out.All = make([]blueprint.Condition, len(c.All))
			for i, sub := range c.All {
				out.All[i] = resolveConditionForDims(sub, p, dims)
			}
		}
		return out
	}
	if c.Loop == nil {
		return c
	}
	if li := loopIndexByName(p.Loops, c.Loop.Name); li >= 0 && li < len(dims) {
		c.ArtifactPath = fmt.Sprintf("%s[%d]", c.ArtifactPath, dims[li])
	}
	return c
}

func loopIndexByName(loops []blueprint.LoopHint, name string) int {
	if name == "" {
		if len(loops) == 1 {
			return 0
		}
		return -1
	}
	for i, l := range loops {
		if l.Name == name {
			return i
		}
	}
	return -1
}

// sortJobsCanonical applies the plan's deterministic tie-break: producer
// alias ascending, then dimension-index vector lexicographic (§3 Plan entity).
func sortJobsCanonical(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.ProducerAlias != b.ProducerAlias {
			return a.ProducerAlias < b.ProducerAlias
		}
		return lessDims(a.DimensionIndex, b.DimensionIndex)
	})
}

func lessDims(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
