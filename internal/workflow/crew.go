package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/research-crew/internal/llm"
	"github.com/cuongbtq/research-crew/internal/search"
)

const (
	collectExpectation = "Expected output: A JSON object containing the researched information."
	analyseExpectation = "Expected output: A JSON object containing the researched information and analysis."
)

// Deps are the collaborators shared by every crew.
type Deps struct {
	LLM     llm.Client
	Search  search.Searcher
	Prompts *Prompts
	Logger  *slog.Logger
}

// crewTask is one step of a crew after its prompt was rendered.
type crewTask struct {
	name        string
	persona     Persona
	prompt      string
	searchQuery string
}

// Crew runs the collect and analyse tasks of one workflow kind in order. Each
// task output is reported to the job; the analyse output is the crew result.
type Crew struct {
	kind     Kind
	jobID    string
	reporter Reporter
	deps     Deps
	tasks    []crewTask
}

// NewCrew returns the factory registered for kind.
func NewCrew(kind Kind, deps Deps) Factory {
	if deps.Search == nil {
		deps.Search = search.Disabled{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return func(jobID string, reporter Reporter) Workflow {
		return &Crew{
			kind:     kind,
			jobID:    jobID,
			reporter: reporter,
			deps:     deps,
		}
	}
}

// DefaultCatalog registers a crew for every kind. All kinds are persisted.
func DefaultCatalog(deps Deps) *Catalog {
	c := NewCatalog()
	for _, kind := range []Kind{KindCompany, KindIndustry, KindMacroeconomic, KindTrip} {
		c.Register(kind, NewCrew(kind, deps), Persisted())
	}
	return c
}

// Configure renders both task prompts from the current templates.
func (c *Crew) Configure(req Request) error {
	c.tasks = nil

	if req.Kind != c.kind {
		return fmt.Errorf("%s crew cannot run a %s request", c.kind, req.Kind)
	}
	if c.kind == KindTrip {
		if req.Trip == nil {
			return ErrInvalidTrip
		}
		if err := req.Trip.Validate(); err != nil {
			return err
		}
	} else if strings.TrimSpace(req.Subject) == "" {
		return ErrEmptySubject
	}

	templates, ok := c.deps.Prompts.Tasks(c.kind)
	if !ok {
		return fmt.Errorf("no task templates for %s", c.kind)
	}

	data := templateData(req)
	collectPrompt, err := render("searchTask", templates.SearchTask, data)
	if err != nil {
		return err
	}
	analysePrompt, err := render("analyseTask", templates.AnalyseTask, data)
	if err != nil {
		return err
	}

	c.tasks = []crewTask{
		{
			name:        "collect",
			persona:     c.deps.Prompts.Agent(),
			prompt:      collectPrompt + "\n\n" + collectExpectation,
			searchQuery: searchQuery(c.kind, data),
		},
		{
			name:    "analyse",
			persona: c.deps.Prompts.Manager(),
			prompt:  analysePrompt + "\n\n" + analyseExpectation,
		},
	}
	return nil
}

// Execute runs the tasks in order, feeding each output into the next task.
func (c *Crew) Execute(ctx context.Context) (string, error) {
	if len(c.tasks) == 0 {
		return "", ErrNotConfigured
	}

	logger := c.deps.Logger.With(
		slog.String("job_id", c.jobID),
		slog.String("kind", c.kind.String()),
	)

	var previous string
	for _, task := range c.tasks {
		output, err := c.runTask(ctx, logger, task, previous)
		if err != nil {
			return "", fmt.Errorf("%s task: %w", task.name, err)
		}
		c.reporter.Report(c.jobID, output)
		previous = output
	}
	return previous, nil
}

func (c *Crew) runTask(ctx context.Context, logger *slog.Logger, task crewTask, previous string) (string, error) {
	prompt := task.prompt

	if task.searchQuery != "" {
		results, err := c.deps.Search.Search(ctx, task.searchQuery)
		if err != nil {
			// The model can still answer from its own knowledge.
			logger.Warn("Search failed, continuing without results",
				slog.String("task", task.name),
				slog.String("error", err.Error()),
			)
		} else if formatted := search.FormatResults(results); formatted != "" {
			prompt += "\n\nWeb search results:\n" + formatted
		}
	}

	if previous != "" {
		prompt += "\n\nContext from the previous task:\n" + previous
	}

	logger.Debug("Running crew task", slog.String("task", task.name))

	resp, err := c.deps.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: task.persona.System()},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	return stripCodeFence(resp.Content), nil
}

func searchQuery(kind Kind, data TemplateData) string {
	switch kind {
	case KindCompany:
		return data.Subject + " company overview financial results news"
	case KindIndustry:
		return data.Subject + " industry market size trends"
	case KindMacroeconomic:
		return data.Subject + " economy GDP inflation outlook"
	case KindTrip:
		return fmt.Sprintf("%s travel %s %s", data.To, data.Hobby, data.Date)
	default:
		return data.Subject
	}
}

// stripCodeFence removes a surrounding markdown code fence such as ```json.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return trimmed
	}
	body := strings.TrimSuffix(trimmed[3:], "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		return trimmed
	}
	return strings.TrimSpace(body)
}
