package planner

import (
	"fmt"
	"sort"
	"strconv"

	"weavecore/internal/graphbuild"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
)

// InferFanIn resolves every input bound to more than one source connection
// into a FanIn record (§4.3.5): grouping by the shared fan-out dimension
// when one exists, or "singleton" when exactly one source contributes.
// Mutates each job in allJobs in place; jobsByAlias supplies the already-
// expanded job instances of each candidate source producer.
func InferFanIn(g *graphbuild.ProducerGraph, jobsByAlias map[string][]Job, allJobs []Job) error {
	for i := range allJobs {
		job := &allJobs[i]
		grouped := groupConnectionsByInput(g.Blueprint, job.ProducerAlias)

		for inputName, conns := range grouped {
			if len(conns) <= 1 {
				continue
			}

			var members []FanInMember
			groupBy := ""
			ambiguous := false

			for _, c := range conns {
				if c.SourceProducerAlias == "" {
					return &orcherr.PlanError{Code: "UnsatisfiedBinding", Message: fmt.Sprintf("fan-in source for %s.%s must be a producer output", job.ProducerAlias, inputName), OffendingID: job.ProducerAlias}
				}
				srcNode, ok := g.Nodes[c.SourceProducerAlias]
				if !ok {
					return &orcherr.PlanError{Code: "UnknownProducer", Message: fmt.Sprintf("fan-in references unknown producer %q", c.SourceProducerAlias), OffendingID: c.SourceProducerAlias}
				}
				conditional := srcNode.Producer.Condition != nil

				candidateGroupBy := ""
				if c.Loop != nil && c.Loop.Name != "" {
					candidateGroupBy = c.Loop.Name
				} else if len(srcNode.Producer.Loops) == 1 && srcNode.Producer.Loops[0].Name != "" {
					candidateGroupBy = srcNode.Producer.Loops[0].Name
				}

				sourceJobs := jobsByAlias[c.SourceProducerAlias]
				for _, sj := range sourceJobs {
					memberID := ids.NewArtifact(sj.JobID.Body(), c.SourceOutputPath)
					group := "singleton"
					if candidateGroupBy != "" {
						if li := loopIndexByName(srcNode.Producer.Loops, candidateGroupBy); li >= 0 && li < len(sj.DimensionIndex) {
							group = strconv.Itoa(sj.DimensionIndex[li])
						}
					}
					members = append(members, FanInMember{ID: memberID, Group: group, Conditional: conditional})

					if groupBy == "" {
						groupBy = candidateGroupBy
					} else if candidateGroupBy != "" && candidateGroupBy != groupBy {
						ambiguous = true
					}
				}
			}

			if len(members) == 0 {
				continue
			}
			if len(members) == 1 {
				groupBy = "singleton"
				members[0].Group = "singleton"
			} else if groupBy == "" || ambiguous {
				return &orcherr.PlanError{Code: "AmbiguousFanIn", Message: fmt.Sprintf("cannot infer a consistent groupBy for fan-in input %s.%s", job.ProducerAlias, inputName), OffendingID: job.ProducerAlias}
			}

			sort.Slice(members, func(a, b int) bool {
				if members[a].Group != members[b].Group {
					return members[a].Group < members[b].Group
				}
				return members[a].ID < members[b].ID
			})

			if job.Context.FanIn == nil {
				job.Context.FanIn = map[string]FanIn{}
			}
			job.Context.FanIn[inputName] = FanIn{GroupBy: groupBy, Members: members}

			for _, m := range members {
				job.Inputs = append(job.Inputs, m.ID)
			}
		}

		sort.Slice(job.Inputs, func(a, b int) bool { return job.Inputs[a] < job.Inputs[b] })
	}
	return nil
}
