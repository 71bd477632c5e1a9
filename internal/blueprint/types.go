// Package blueprint defines the in-memory BlueprintTree data model that the
// Graph Builder compiles into a ProducerGraph. Parsing blueprint/schema files
// into this shape is an external collaborator's responsibility (out of
// scope, per the purpose note on CLI and file-format front ends); this
// package only defines the validated tree the core consumes.
package blueprint

import "encoding/json"

// InputType enumerates the declared primitive/shape types for a blueprint
// input.
type InputType string

const (
	TypeString  InputType = "string"
	TypeText    InputType = "text"
	TypeInt     InputType = "int"
	TypeNumber  InputType = "number"
	TypeBoolean InputType = "boolean"
	TypeArray   InputType = "array"
	TypeImage   InputType = "image"
	TypeVideo   InputType = "video"
	TypeAudio   InputType = "audio"
	TypeJSON    InputType = "json"
	TypeEnum    InputType = "enum"
)

// AnnotationKind classifies where an input's value ultimately comes from.
type AnnotationKind string

const (
	AnnotationUser    AnnotationKind = "user"
	AnnotationDerived AnnotationKind = "derived"
	AnnotationRuntime AnnotationKind = "runtime"
)

// Annotations records the system-level provenance of an input, when
// declared.
type Annotations struct {
	Kind         AnnotationKind `json:"kind,omitempty"`
	UserSupplied bool           `json:"userSupplied,omitempty"`
	Source       string         `json:"source,omitempty"`
}

// Input is one declared blueprint-level input.
type Input struct {
	Name        string      `json:"name"`
	Type        InputType   `json:"type"`
	ItemType    InputType   `json:"itemType,omitempty"`
	Required    bool        `json:"required"`
	Annotations Annotations `json:"annotations,omitempty"`
	EnumValues  []string    `json:"enumValues,omitempty"`
}

// Meta identifies a blueprint or producer node.
type Meta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "blueprint" | "producer"
}

// LoopHint declares that a producer fans out over one or more dimensions.
// Dimensions are evaluated in declared order; their Cartesian product yields
// the producer's dimension index vectors (§4.3.1).
type LoopHint struct {
	// Over is the artifact or input path whose cardinality drives this
	// dimension (e.g. "DocProducer.Segments").
	Over string `json:"over"`
	// Name is the dimension's logical name, used for named-dimension
	// indices and for fan-in groupBy inference.
	Name string `json:"name,omitempty"`
}

// ConditionOp is one leaf predicate operator in the condition grammar.
type ConditionOp string

const (
	OpEquals    ConditionOp = "equals"
	OpNotEmpty  ConditionOp = "notEmpty"
	OpEmpty     ConditionOp = "empty"
)

// Condition is a boolean expression over upstream artifacts: either a single
// `when` leaf predicate, or an `any`/`all` combinator over sub-conditions.
type Condition struct {
	// Leaf form.
	ArtifactPath string      `json:"artifactPath,omitempty"`
	Op           ConditionOp `json:"op,omitempty"`
	Literal      string      `json:"literal,omitempty"`

	// Loop, if non-nil, marks that ArtifactPath varies per dimension index
	// the way a fanning-out Connection's Loop does: the planner substitutes
	// the owning job's index for the named dimension before evaluating this
	// leaf, so a looped producer's gate is evaluated per index instead of
	// once for every fan-out instance.
	Loop *LoopHint `json:"loop,omitempty"`

	// Combinator form.
	Any []Condition `json:"any,omitempty"`
	All []Condition `json:"all,omitempty"`
}

func (c Condition) IsLeaf() bool { return len(c.Any) == 0 && len(c.All) == 0 }

// Connection binds one of a producer's declared inputs to a source: another
// producer's output path, or a blueprint input. Exactly one of
// SourceArtifactPath / SourceInput is set.
type Connection struct {
	ConsumerAlias    string `json:"consumerAlias"`
	InputName        string `json:"inputName"`
	// ElementIndex selects a single element of an array-valued input
	// binding ("inputName[k]"); only meaningful when HasElementIndex is true.
	ElementIndex    int  `json:"elementIndex,omitempty"`
	HasElementIndex bool `json:"hasElementIndex,omitempty"`

	SourceProducerAlias string `json:"sourceProducerAlias,omitempty"`
	SourceOutputPath    string `json:"sourceOutputPath,omitempty"`
	SourceInputName     string `json:"sourceInputName,omitempty"`

	// Loop, if non-nil, marks this connection as fanning out (one job per
	// index) rather than fanning in (aggregate).
	Loop *LoopHint `json:"loop,omitempty"`
}

// SDKMapping describes one payload-shaping rule for a single input name (§4.5).
type SDKMapping struct {
	InputName string `json:"inputName"`

	// RenameTo shapes `alias -> apiField`.
	RenameTo string `json:"renameTo,omitempty"`

	// Transform names one of the fixed value transforms.
	Transform string `json:"transform,omitempty"` // intToString | intToSecondsString | durationToFrames | invert | firstOf
	// TransformArg carries a transform parameter (e.g. fps for durationToFrames).
	TransformArg json.RawMessage `json:"transformArg,omitempty"`

	// Gate restricts this mapping to when the condition holds.
	Gate *Condition `json:"gate,omitempty"`

	// Expand marks that this mapping's resolved object value should be
	// spread into the payload root rather than nested under RenameTo.
	Expand bool `json:"expand,omitempty"`

	// Combine lists additional input names whose values are looked up
	// together as a composite key.
	Combine []string `json:"combine,omitempty"`
}

// Producer is one blueprint producer node: an alias bound to a producer
// spec, its declared output schema, fan-out hints and gating conditions.
type Producer struct {
	Alias string `json:"alias"`

	// ProducerRef names the reusable producer spec this alias instantiates
	// (e.g. "ImageProducer"); several aliases may reference the same ref.
	ProducerRef string `json:"producerRef"`

	OutputSchema json.RawMessage `json:"outputSchema"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`

	Loops      []LoopHint  `json:"loops,omitempty"`
	Condition  *Condition  `json:"condition,omitempty"`
	SDKMapping []SDKMapping `json:"sdkMapping,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// BlueprintTree is the validated input to the Graph Builder.
type BlueprintTree struct {
	Meta        Meta         `json:"meta"`
	Inputs      []Input      `json:"inputs"`
	Producers   []Producer   `json:"producers"`
	Connections []Connection `json:"connections"`
}

// ProducerByAlias looks up a producer by alias; ok is false if absent.
func (b *BlueprintTree) ProducerByAlias(alias string) (Producer, bool) {
	for _, p := range b.Producers {
		if p.Alias == alias {
			return p, true
		}
	}
	return Producer{}, false
}

// InputByName looks up a declared blueprint input by name; ok is false if absent.
func (b *BlueprintTree) InputByName(name string) (Input, bool) {
	for _, in := range b.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}
