package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/graphseed/internal/pipeline"
	"github.com/ShayCichocki/graphseed/internal/workflow"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

var (
	wfUsecase       string
	wfEntities      []string
	wfRelationships []string
	wfInstructions  string
	wfDiagramFile   string
	wfTUI           bool
	wfJSON          bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Design graph data models",
}

var schemaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Propose a Mermaid graph diagram for a usecase",
	Long: `Read the existing database schema and propose a Mermaid graph diagram
for a usecase. The diagram is printed to stdout.

Examples:
  graphseed schema create --usecase "Employee Org"
  graphseed schema create --usecase "Employee Org" --entity Employee --entity Company --relationship EMPLOYED_AT`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflowCmd(cmd, workflow.CreateSchema, pipeline.Inputs{
			Usecase:       wfUsecase,
			Entities:      wfEntities,
			Relationships: wfRelationships,
		})
	},
}

var schemaEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Apply natural-language edits to a Mermaid graph diagram",
	Long: `Apply edit instructions to a diagram read from --diagram-file (or stdin
with '-'). With no instructions the diagram is returned unchanged.

Examples:
  graphseed schema edit --diagram-file org.mmd --instructions "Add an Address node"
  graphseed schema create --usecase "Employee Org" | graphseed schema edit --diagram-file - --instructions "Drop Manager"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		diagram, err := readDiagram(cmd.InOrStdin(), wfDiagramFile)
		if err != nil {
			return err
		}
		return runWorkflowCmd(cmd, workflow.EditSchema, pipeline.Inputs{
			Diagram:      diagram,
			Instructions: wfInstructions,
		})
	},
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Generate and upload synthetic graph data",
}

var dataGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Upload a synthetic dataset for an existing diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		diagram, err := readDiagram(cmd.InOrStdin(), wfDiagramFile)
		if err != nil {
			return err
		}
		return runWorkflowCmd(cmd, workflow.GenerateData, pipeline.Inputs{Diagram: diagram})
	},
}

var dataUsecaseCmd = &cobra.Command{
	Use:   "usecase",
	Short: "Model a usecase and upload a connected dataset for it",
	Long: `Propose a data model for the usecase, build ingest queries, upload a
connected dataset and remove any isolated nodes afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflowCmd(cmd, workflow.GenerateDataForUsecase, pipeline.Inputs{Usecase: wfUsecase})
	},
}

var dataExpandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Extend the existing graph with data for a new usecase",
	Long: `Compose the existing schema with a model for the usecase, upload the
additional data and remove any isolated nodes afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflowCmd(cmd, workflow.ExpandDataForUsecase, pipeline.Inputs{Usecase: wfUsecase})
	},
}

func init() {
	schemaCreateCmd.Flags().StringVar(&wfUsecase, "usecase", "", "Usecase description (e.g. \"Employee Org\")")
	schemaCreateCmd.Flags().StringSliceVar(&wfEntities, "entity", nil, "Node label to include (repeatable)")
	schemaCreateCmd.Flags().StringSliceVar(&wfRelationships, "relationship", nil, "Relationship type to include (repeatable)")
	schemaCreateCmd.MarkFlagRequired("usecase")

	schemaEditCmd.Flags().StringVar(&wfInstructions, "instructions", "", "Edit instructions")
	schemaEditCmd.Flags().StringVar(&wfDiagramFile, "diagram-file", "", "Diagram file ('-' for stdin)")
	schemaEditCmd.MarkFlagRequired("diagram-file")

	dataGenerateCmd.Flags().StringVar(&wfDiagramFile, "diagram-file", "", "Diagram file ('-' for stdin)")
	dataGenerateCmd.MarkFlagRequired("diagram-file")

	for _, c := range []*cobra.Command{dataUsecaseCmd, dataExpandCmd} {
		c.Flags().StringVar(&wfUsecase, "usecase", "", "Usecase description (e.g. \"Sales pipeline\")")
		c.MarkFlagRequired("usecase")
	}

	for _, c := range []*cobra.Command{schemaCreateCmd, schemaEditCmd, dataGenerateCmd, dataUsecaseCmd, dataExpandCmd} {
		c.Flags().BoolVar(&wfTUI, "tui", false, "Show live stage progress")
	}
	for _, c := range []*cobra.Command{dataGenerateCmd, dataUsecaseCmd, dataExpandCmd} {
		c.Flags().BoolVar(&wfJSON, "json", false, "Print the upload status as JSON")
	}

	schemaCmd.AddCommand(schemaCreateCmd, schemaEditCmd)
	dataCmd.AddCommand(dataGenerateCmd, dataUsecaseCmd, dataExpandCmd)
}

// workflowRunner is the engine surface the commands use.
type workflowRunner interface {
	Run(ctx context.Context, req workflow.Request) (*workflow.Outcome, error)
}

func runWorkflowCmd(cmd *cobra.Command, name workflow.Name, in pipeline.Inputs) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := workflow.Request{Workflow: name, Inputs: in}
	var out *workflow.Outcome
	if wfTUI {
		out, err = runWithTUI(ctx, rt.engine, req)
	} else {
		req.Events = eventPrinter(cmd.ErrOrStderr())
		out, err = rt.engine.Run(ctx, req)
	}
	if err != nil {
		printRunError(cmd.ErrOrStderr(), err)
		return err
	}
	return printOutcome(cmd.OutOrStdout(), out, wfJSON)
}

// readDiagram reads a diagram from path, or from stdin when path is "-".
// The content is returned exactly as read.
func readDiagram(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read diagram: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("read diagram: diagram is empty")
	}
	return string(data), nil
}

// eventPrinter writes one colored line per stage transition.
func eventPrinter(w io.Writer) func(workflow.Event) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	return func(ev workflow.Event) {
		switch ev.Kind {
		case workflow.EventRunStarted:
			fmt.Fprintf(w, "%s %s %s\n", cyan("▶"), ev.Workflow, faint(shortID(ev.RunID)))
		case workflow.EventStageStarted:
			fmt.Fprintf(w, "  %s %s\n", cyan("…"), ev.Stage)
		case workflow.EventStageDone:
			switch ev.Status {
			case models.StageStatusSkipped:
				fmt.Fprintf(w, "  %s %s %s\n", green("↷"), ev.Stage, faint("skipped"))
			case models.StageStatusFailed:
				fmt.Fprintf(w, "  %s %s: %v\n", red("✗"), ev.Stage, ev.Err)
			default:
				fmt.Fprintf(w, "  %s %s %s\n", green("✓"), ev.Stage, faint(fmt.Sprintf("%.1fs", ev.Elapsed.Seconds())))
			}
		case workflow.EventCleanupDone:
			if ev.Err != nil {
				fmt.Fprintf(w, "  %s cleanup: %v\n", red("✗"), ev.Err)
			} else {
				fmt.Fprintf(w, "  %s cleanup removed %d isolated node(s)\n", green("✓"), ev.Removed)
			}
		}
	}
}

func printRunError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %v\n", red("Error:"), err)

	var ce *workflow.CleanupError
	if errors.As(err, &ce) && ce.Result != nil {
		fmt.Fprintln(w, "The upload completed; its report was:")
		fmt.Fprintln(w, ce.Result.Output)
	}
}

// printOutcome writes the run result: the raw diagram for schema
// workflows, the upload status for data workflows.
func printOutcome(w io.Writer, out *workflow.Outcome, asJSON bool) error {
	switch out.Workflow {
	case workflow.CreateSchema, workflow.EditSchema:
		_, err := fmt.Fprintln(w, out.Result.Output)
		return err
	}

	st := out.UploadStatus()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintln(w, st.Report)
	if st.CleanupRan {
		fmt.Fprintf(w, "\nRemoved %d isolated node(s).\n", st.NodesRemoved)
	}
	fmt.Fprintf(w, "Run %s finished in %.2fs.\n", shortID(st.RunID), st.ElapsedSeconds)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
