package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"interviewforge/internal/app"
	"interviewforge/internal/catalog"
	"interviewforge/internal/config"
	"interviewforge/internal/merge"
	"interviewforge/internal/orchestrator"
	"interviewforge/internal/prompt"
	"interviewforge/internal/server"
	"interviewforge/internal/util/jsonutil"
)

// inputFile is the --input document. Items are used as given; the
// structured sections go through the catalog producers first. Keys of
// the structured sections match the Go field names, case-insensitively.
type inputFile struct {
	Items        []catalog.Item        `json:"items"`
	Project      *catalog.Project      `json:"project"`
	Stakeholders []catalog.Stakeholder `json:"stakeholders"`
	Interviews   []catalog.Interview   `json:"interviews"`
	Files        []catalog.FileExtract `json:"files"`
	Questions    []catalog.Question    `json:"questions"`
	Mode         orchestrator.Mode     `json:"mode"`
	Budget       json.RawMessage       `json:"budget,omitempty"`
}

func (in inputFile) catalogItems(fileExcerptSize int) []catalog.Item {
	items := append([]catalog.Item(nil), in.Items...)
	if in.Project != nil {
		items = append(items, catalog.FromProject(*in.Project)...)
	}
	items = append(items, catalog.FromStakeholders(in.Stakeholders)...)
	items = append(items, catalog.FromInterviews(in.Interviews)...)
	items = append(items, catalog.FromFiles(in.Files, fileExcerptSize)...)
	items = append(items, catalog.FromQuestions(in.Questions)...)
	return items
}

// entitiesFrom defaults the assignment entities to the stakeholders.
func (in inputFile) entitiesFrom() []prompt.Entity {
	out := make([]prompt.Entity, 0, len(in.Stakeholders))
	for _, s := range in.Stakeholders {
		out = append(out, prompt.Entity{Key: s.ID, Label: s.Role})
	}
	return out
}

func generateCmd() *cobra.Command {
	var (
		inputPath  string
		budgetPath string
		modeKind   string
		task       string
		runID      string
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation over an input file and print the result JSON",
		Long: `Run one generation over an input file and print the result JSON.

Examples:
  interviewforge generate --input project.json --mode assignment
  interviewforge generate --input project.json --mode text --budget budget.yaml -o brief.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if budgetPath != "" {
				if cfg.Budget, err = config.LoadBudget(budgetPath, cfg.Budget); err != nil {
					return err
				}
			}
			req, err := readRequest(inputPath, modeKind, task, cfg.Budget.PerCallCapacity/2)
			if err != nil {
				return err
			}
			req.RunID = runID

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer deps.Close()

			res, err := deps.Service.Generate(ctx, req)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			return writeResult(res, outputPath)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input JSON file (items, project, stakeholders, interviews, files, questions, mode)")
	cmd.Flags().StringVarP(&budgetPath, "budget", "b", "", "budget YAML file overriding BUDGET_FILE and the defaults")
	cmd.Flags().StringVarP(&modeKind, "mode", "m", "", "assignment or text; overrides the input file's mode.kind")
	cmd.Flags().StringVar(&task, "task", "", "task instructions; overrides the input file's mode.task")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (generated when empty)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result here instead of stdout")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readRequest(path, modeKind, task string, fileExcerptSize int) (server.GenerateRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return server.GenerateRequest{}, fmt.Errorf("read input: %w", err)
	}
	var in inputFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return server.GenerateRequest{}, fmt.Errorf("parse input %s: %w", path, err)
	}
	mode := in.Mode
	if modeKind != "" {
		mode.Kind = merge.Kind(modeKind)
	}
	if mode.Kind == "" {
		mode.Kind = merge.KindAssignment
	}
	if task != "" {
		mode.Task = task
	}
	if mode.Kind == merge.KindAssignment && len(mode.Entities) == 0 {
		mode.Entities = in.entitiesFrom()
	}
	return server.GenerateRequest{
		Items:  in.catalogItems(fileExcerptSize),
		Mode:   mode,
		Budget: in.Budget,
	}, nil
}

func writeResult(res *orchestrator.Result, path string) error {
	data, err := jsonutil.MarshalNoEscapeIndent(res, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
