package planner

import "weavecore/internal/hashutil"

// computeInputsHash is the stable per-job digest used for dirty-set
// comparison (§4.3.7 step 1): provider/model selection, resolved input
// canonical IDs, declared produces, and schema fingerprints. Grounded on the
// length-prefixed hashing idiom shared by internal/store/manifest.go and
// internal/graphbuild/graph.go.
func computeInputsHash(job Job) string {
	w := hashutil.New()
	w.WriteString(job.ProducerAlias).WriteString(job.Provider).WriteString(job.Model)

	inputs := make([]string, len(job.Inputs))
	for i, id := range job.Inputs {
		inputs[i] = string(id)
	}
	w.WriteStrings(inputs)

	produces := make([]string, len(job.Produces))
	for i, id := range job.Produces {
		produces[i] = string(id)
	}
	w.WriteStrings(produces)

	w.WriteBytes(job.Context.SchemaInput)
	w.WriteBytes(job.Context.SchemaOutput)
	return w.Hex()
}
