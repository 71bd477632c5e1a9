// Package graphbuild implements the Graph Builder (§4.2): compiling a
// validated BlueprintTree into a ProducerGraph with typed edges, a
// deterministic topological order, and a virtual-artifact index. Grounded
// on the teacher's internal/dag/taskgraph.go (canonical node ordering,
// length-prefixed graph hash) and internal/dag/validate.go (Kahn topological
// order via dagutil), generalized from flat shell-command tasks to producer
// nodes with schema-derived sub-artifact edges.
package graphbuild

import (
	"fmt"
	"sort"

	"weavecore/internal/blueprint"
	"weavecore/internal/dagutil"
	"weavecore/internal/hashutil"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
	"weavecore/internal/schema"
)

// EdgeSource describes where a consumer input is bound from.
type EdgeSource struct {
	ArtifactID   ids.ID // set when sourced from a producer output
	InputID      ids.ID // set when sourced from a blueprint input
	ElementIndex int    // -1 when the whole value is bound
	Loop         *blueprint.LoopHint
}

// ProducerNode is one compiled producer in the graph: its declared leaf
// artifact set and its resolved input edges.
type ProducerNode struct {
	Alias    string
	Producer blueprint.Producer
	Leaves   []schema.LeafPath
	// Edges maps input name -> its resolved source.
	Edges map[string]EdgeSource
}

// ProducerGraph is the Graph Builder's output contract (§4.2): a
// deterministic topological order, per-producer edge tables keyed by the
// consumer's input name, and a virtual-artifact index mapping every sub-artefact ID
// to its parent producer and JSON path.
type ProducerGraph struct {
	Blueprint *blueprint.BlueprintTree
	Nodes     map[string]*ProducerNode // by alias
	Order     []string                 // deterministic topological order of aliases

	// VirtualArtifacts maps every decomposed leaf artefactId to its parent
	// producer alias and JSON path.
	VirtualArtifacts map[ids.ID]VirtualArtifact

	dag *dagutil.Graph
}

// VirtualArtifact records a JSON-path leaf's provenance.
type VirtualArtifact struct {
	ProducerAlias string
	Path          string
}

// Hash is the graph's deterministic content identity, over canonical
// producer order, declared leaves, and edges — the length-prefixed idiom
// from internal/dag/taskgraph.go computeGraphHash, generalized to producer
// nodes.
func (g *ProducerGraph) Hash() string {
	w := hashutil.New()
	w.WriteCount(len(g.Order))
	for _, alias := range g.Order {
		n := g.Nodes[alias]
		w.WriteString(alias)
		leafPaths := make([]string, len(n.Leaves))
		for i, l := range n.Leaves {
			leafPaths[i] = l.Path
		}
		w.WriteStrings(leafPaths)

		inputNames := make([]string, 0, len(n.Edges))
		for name := range n.Edges {
			inputNames = append(inputNames, name)
		}
		sort.Strings(inputNames)
		w.WriteCount(len(inputNames))
		for _, name := range inputNames {
			src := n.Edges[name]
			w.WriteString(name).WriteString(string(src.ArtifactID)).WriteString(string(src.InputID))
		}
	}
	return w.Hex()
}

// DownstreamReachable returns producer aliases downstream of alias (§4.3.7 step 4).
func (g *ProducerGraph) DownstreamReachable(alias string) []string {
	return g.dag.DownstreamReachable(alias)
}

// Build compiles a BlueprintTree into a ProducerGraph (§4.2 steps 1-4).
// dims supplies observed/declared array cardinalities per producer alias,
// keyed by schema leaf-array path, for leaf decomposition (§4.2 step 1) —
// callers resolving a concrete Inputs document pass the Cartesian
// cardinalities inferred from upstream artifact counts.
func Build(bp *blueprint.BlueprintTree, dims map[string]map[string]int) (*ProducerGraph, error) {
	nodes := make(map[string]*ProducerNode, len(bp.Producers))
	var aliasList []string

	for _, p := range bp.Producers {
		if _, exists := nodes[p.Alias]; exists {
			return nil, &orcherr.PlanError{Code: "DuplicateProducer", Message: fmt.Sprintf("duplicate producer alias %q", p.Alias), OffendingID: p.Alias}
		}
		var leaves []schema.LeafPath
		if len(p.OutputSchema) > 0 {
			compiled, err := schema.Compile(p.OutputSchema)
			if err != nil {
				return nil, &orcherr.PlanError{Code: "InvalidSchema", Message: err.Error(), OffendingID: p.Alias, Cause: err}
			}
			leaves, err = compiled.EnumerateLeaves(dims[p.Alias])
			if err != nil {
				return nil, &orcherr.PlanError{Code: "LeafEnumeration", Message: err.Error(), OffendingID: p.Alias, Cause: err}
			}
		} else {
			leaves = []schema.LeafPath{{Root: true}}
		}

		nodes[p.Alias] = &ProducerNode{Alias: p.Alias, Producer: p, Leaves: leaves, Edges: map[string]EdgeSource{}}
		aliasList = append(aliasList, p.Alias)
	}

	// Step 2: resolve connections into edges (§4.2 step 2).
	var edgePairs [][2]string
	for _, c := range bp.Connections {
		consumer, ok := nodes[c.ConsumerAlias]
		if !ok {
			return nil, &orcherr.PlanError{Code: "UnknownProducer", Message: fmt.Sprintf("connection references unknown consumer %q", c.ConsumerAlias), OffendingID: c.ConsumerAlias}
		}

		src := EdgeSource{ElementIndex: -1, Loop: c.Loop}
		if c.HasElementIndex {
			src.ElementIndex = c.ElementIndex
		}

		if c.SourceProducerAlias != "" {
			if _, ok := nodes[c.SourceProducerAlias]; !ok {
				return nil, &orcherr.PlanError{Code: "UnknownProducer", Message: fmt.Sprintf("connection sources unknown producer %q", c.SourceProducerAlias), OffendingID: c.SourceProducerAlias}
			}
			src.ArtifactID = ids.NewArtifact(c.SourceProducerAlias, c.SourceOutputPath)
			edgePairs = append(edgePairs, [2]string{c.SourceProducerAlias, c.ConsumerAlias})
		} else if c.SourceInputName != "" {
			if _, ok := bp.InputByName(c.SourceInputName); !ok {
				return nil, &orcherr.PlanError{Code: "UnknownInput", Message: fmt.Sprintf("connection sources unknown input %q", c.SourceInputName), OffendingID: c.SourceInputName}
			}
			src.InputID = ids.NewInput(c.SourceInputName)
		} else {
			return nil, &orcherr.PlanError{Code: "UnsatisfiedBinding", Message: fmt.Sprintf("connection for %s.%s has no source", c.ConsumerAlias, c.InputName), OffendingID: c.ConsumerAlias}
		}

		consumer.Edges[c.InputName] = src
	}

	dag := dagutil.New(aliasList, edgePairs)
	order, err := dag.TopoOrder()
	if err != nil {
		return nil, &orcherr.PlanError{Code: "Cycle", Message: err.Error()}
	}

	g := &ProducerGraph{
		Blueprint:        bp,
		Nodes:            nodes,
		Order:            order,
		VirtualArtifacts: map[ids.ID]VirtualArtifact{},
		dag:              dag,
	}

	for _, alias := range order {
		n := nodes[alias]
		for _, leaf := range n.Leaves {
			var artID ids.ID
			if leaf.Root {
				artID = ids.NewArtifact(alias, "")
			} else {
				artID = ids.NewArtifact(alias, leaf.Path)
			}
			g.VirtualArtifacts[artID] = VirtualArtifact{ProducerAlias: alias, Path: leaf.Path}
		}
	}

	return g, nil
}
