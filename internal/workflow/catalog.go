// Package workflow defines the built-in stage graphs and the engine that runs
// them against tool providers, an LLM invoker and the cleanup service.
package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/graphseed/internal/pipeline"
)

// Name identifies a workflow.
type Name string

const (
	CreateSchema           Name = "CreateSchema"
	EditSchema             Name = "EditSchema"
	GenerateData           Name = "GenerateData"
	GenerateDataForUsecase Name = "GenerateDataForUsecase"
	ExpandDataForUsecase   Name = "ExpandDataForUsecase"
)

// ErrUnknownWorkflow is returned for names outside the catalog.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Names returns every workflow name in catalog order.
func Names() []Name {
	return []Name{CreateSchema, EditSchema, GenerateData, GenerateDataForUsecase, ExpandDataForUsecase}
}

// ParseName accepts a workflow name in any case, with or without dashes or
// underscores ("generate-data-for-usecase").
func ParseName(s string) (Name, error) {
	norm := func(v string) string {
		v = strings.ToLower(v)
		v = strings.ReplaceAll(v, "-", "")
		return strings.ReplaceAll(v, "_", "")
	}
	want := norm(strings.TrimSpace(s))
	for _, n := range Names() {
		if norm(string(n)) == want {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWorkflow, s)
}

// Capability names exposed by the data-modeling and cypher providers.
const (
	CapGetSchema          = "get_neo4j_schema"
	CapReadCypher         = "read_neo4j_cypher"
	CapWriteCypher        = "write_neo4j_cypher"
	CapValidateDataModel  = "validate_data_model"
	CapMermaidConfig      = "get_mermaid_config_str"
	CapNodeIngestQuery    = "get_node_cypher_ingest_query"
	CapRelationshipIngest = "get_relationship_cypher_ingest_query"
)

var (
	readCaps    = []string{CapGetSchema, CapReadCypher}
	diagramCaps = []string{CapValidateDataModel, CapMermaidConfig}
	ingestCaps  = []string{CapNodeIngestQuery, CapRelationshipIngest}
	uploadCaps  = []string{CapWriteCypher}
)

// StageDef is the static description of one stage.
type StageDef struct {
	Name string
	// Prompt is the key of the stage prompt in the prompt catalog.
	Prompt       string
	DependsOn    []int
	Capabilities []string
}

// Definition is a workflow's stage graph.
type Definition struct {
	Name   Name
	Stages []StageDef
	// Upload marks workflows that write data and report an upload status.
	Upload bool
	// Cleanup marks workflows followed by isolated-node cleanup.
	Cleanup bool
}

// RequiredCapabilities returns the sorted union of every stage's
// capabilities.
func (d Definition) RequiredCapabilities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range d.Stages {
		for _, c := range s.Capabilities {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// StageNames returns the stage names in declaration order.
func (d Definition) StageNames() []string {
	out := make([]string, len(d.Stages))
	for i, s := range d.Stages {
		out[i] = s.Name
	}
	return out
}

// Definitions returns the built-in stage graphs.
func Definitions() []Definition {
	return []Definition{
		{
			Name: CreateSchema,
			Stages: []StageDef{
				{Name: "ReadExistingSchema", Prompt: "read_existing_schema", Capabilities: readCaps},
				{Name: "ProposeGraphDiagram", Prompt: "propose_graph_diagram", DependsOn: []int{0}, Capabilities: diagramCaps},
			},
		},
		{
			Name: EditSchema,
			Stages: []StageDef{
				{Name: "ApplyEditInstructions", Prompt: "apply_edit_instructions", Capabilities: diagramCaps},
			},
		},
		{
			Name: GenerateData,
			Stages: []StageDef{
				{Name: "ReadExistingSchema", Prompt: "read_existing_schema",
					Capabilities: []string{CapGetSchema, CapReadCypher, CapMermaidConfig}},
				{Name: "BuildIngestQueries", Prompt: "build_ingest_queries_from_diagram", DependsOn: []int{0}, Capabilities: ingestCaps},
				{Name: "UploadData", Prompt: "upload_data_from_diagram", DependsOn: []int{1}, Capabilities: uploadCaps},
			},
			Upload: true,
		},
		{
			Name: GenerateDataForUsecase,
			Stages: []StageDef{
				{Name: "ReadExistingSchema", Prompt: "read_existing_schema", Capabilities: readCaps},
				{Name: "ProposeGraphDiagram", Prompt: "propose_graph_diagram", DependsOn: []int{0}, Capabilities: diagramCaps},
				{Name: "BuildIngestQueries", Prompt: "build_ingest_queries", DependsOn: []int{1}, Capabilities: ingestCaps},
				{Name: "UploadData", Prompt: "upload_data", DependsOn: []int{2}, Capabilities: uploadCaps},
			},
			Upload:  true,
			Cleanup: true,
		},
		{
			Name: ExpandDataForUsecase,
			Stages: []StageDef{
				{Name: "ReadExistingSchema", Prompt: "read_existing_schema", Capabilities: readCaps},
				{Name: "CompositeGraphDiagram", Prompt: "composite_graph_diagram", DependsOn: []int{0}, Capabilities: diagramCaps},
				{Name: "BuildIngestQueries", Prompt: "build_ingest_queries", DependsOn: []int{1}, Capabilities: ingestCaps},
				{Name: "UploadData", Prompt: "upload_data", DependsOn: []int{2}, Capabilities: uploadCaps},
			},
			Upload:  true,
			Cleanup: true,
		},
	}
}

// Catalog holds validated workflow definitions and their parsed templates.
// A Catalog is immutable once built.
type Catalog struct {
	persona   Persona
	defs      map[Name]Definition
	templates map[string]*pipeline.Template
	expected  map[string]string
}

// NewCatalog validates defs against prompts. Every stage must reference an
// existing prompt whose template parses, and every dependency must point at
// an earlier stage.
func NewCatalog(prompts *Prompts, defs []Definition) (*Catalog, error) {
	c := &Catalog{
		persona:   prompts.Agent,
		defs:      make(map[Name]Definition, len(defs)),
		templates: make(map[string]*pipeline.Template),
		expected:  make(map[string]string),
	}

	for _, def := range defs {
		if len(def.Stages) == 0 {
			return nil, fmt.Errorf("workflow %s has no stages", def.Name)
		}
		for i, s := range def.Stages {
			for _, dep := range s.DependsOn {
				if dep < 0 || dep >= i {
					return nil, &pipeline.OrderingError{
						Workflow:  string(def.Name),
						Stage:     s.Name,
						Index:     i,
						DependsOn: dep,
					}
				}
			}
			if _, ok := c.templates[s.Prompt]; ok {
				continue
			}
			sp, ok := prompts.Stages[s.Prompt]
			if !ok || strings.TrimSpace(sp.Description) == "" {
				return nil, fmt.Errorf("workflow %s: stage %s: no prompt %q", def.Name, s.Name, s.Prompt)
			}
			tmpl, err := pipeline.ParseTemplate(s.Prompt, sp.Description)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
			}
			c.templates[s.Prompt] = tmpl
			c.expected[s.Prompt] = strings.TrimSpace(sp.ExpectedOutput)
		}
		c.defs[def.Name] = def
	}
	return c, nil
}

// DefaultCatalog builds the built-in definitions with the prompts at path
// (empty for the embedded prompts only).
func DefaultCatalog(promptPath string) (*Catalog, error) {
	prompts, err := LoadPrompts(promptPath)
	if err != nil {
		return nil, err
	}
	return NewCatalog(prompts, Definitions())
}

// Definition returns the definition for name.
func (c *Catalog) Definition(name Name) (Definition, error) {
	def, ok := c.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	return def, nil
}

// Persona returns the shared worker persona.
func (c *Catalog) Persona() Persona { return c.persona }

// Build binds a worker for every stage of the named workflow and returns the
// pipeline. Binding fails with provider.ErrCapabilityUnavailable if src lacks
// any stage capability.
func (c *Catalog) Build(name Name, src pipeline.CapabilitySource, observer pipeline.Observer) (*pipeline.Pipeline, error) {
	def, err := c.Definition(name)
	if err != nil {
		return nil, err
	}

	steps := make([]pipeline.Step, 0, len(def.Stages))
	for _, s := range def.Stages {
		opts := []pipeline.WorkerOption{pipeline.WithBackstory(c.persona.Backstory)}
		if observer != nil {
			opts = append(opts, pipeline.WithObserver(observer))
		}
		w, err := pipeline.BuildWorker(src, c.persona.Role, c.persona.Goal, s.Capabilities, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: stage %s: %w", name, s.Name, err)
		}
		steps = append(steps, pipeline.Step{
			Stage: pipeline.Stage{
				Name:           s.Name,
				Template:       c.templates[s.Prompt],
				DependsOn:      s.DependsOn,
				ExpectedOutput: c.expected[s.Prompt],
			},
			Worker: w,
		})
	}
	return pipeline.New(string(name), steps...)
}
