package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// ErrInvalidTemplate is returned when a task template does not parse or render.
var ErrInvalidTemplate = errors.New("invalid task template")

// Persona describes the agent an LLM call speaks as.
type Persona struct {
	Role      string `json:"role"`
	Goal      string `json:"goal"`
	Backstory string `json:"backstory"`
}

// PersonaPatch updates only the fields that are set.
type PersonaPatch struct {
	Role      *string `json:"role"`
	Goal      *string `json:"goal"`
	Backstory *string `json:"backstory"`
}

func (p PersonaPatch) apply(dst *Persona) {
	if p.Role != nil {
		dst.Role = *p.Role
	}
	if p.Goal != nil {
		dst.Goal = *p.Goal
	}
	if p.Backstory != nil {
		dst.Backstory = *p.Backstory
	}
}

// System renders the persona as a system message.
func (p Persona) System() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", strings.TrimSpace(p.Role))
	if goal := strings.TrimSpace(p.Goal); goal != "" {
		fmt.Fprintf(&b, "\nYour goal: %s", goal)
	}
	if backstory := strings.TrimSpace(p.Backstory); backstory != "" {
		fmt.Fprintf(&b, "\nBackground: %s", backstory)
	}
	return b.String()
}

// TaskTemplates are the two task descriptions of a crew. Both are text/template
// sources rendered against TemplateData.
type TaskTemplates struct {
	SearchTask  string `json:"searchTask"`
	AnalyseTask string `json:"analyseTask"`
}

// TaskTemplatesPatch updates only the templates that are set.
type TaskTemplatesPatch struct {
	SearchTask  *string `json:"searchTask"`
	AnalyseTask *string `json:"analyseTask"`
}

// TemplateData is what task templates can reference.
type TemplateData struct {
	Subject string
	From    string
	To      string
	Date    string
	Hobby   string
}

func templateData(req Request) TemplateData {
	data := TemplateData{Subject: req.Subject}
	if req.Trip != nil {
		data.From = req.Trip.From
		data.To = req.Trip.To
		data.Date = req.Trip.Date
		data.Hobby = req.Trip.Hobby
	}
	return data
}

var sampleData = TemplateData{
	Subject: "Acme",
	From:    "Hanoi",
	To:      "Da Nang",
	Date:    "2024-06-01",
	Hobby:   "hiking",
}

// Prompts holds the personas and task templates used by every crew. Updates
// apply to crews configured afterwards; a running crew keeps what it rendered.
type Prompts struct {
	mu      sync.RWMutex
	manager Persona
	agent   Persona
	tasks   map[Kind]TaskTemplates
}

// NewPrompts creates a store seeded with the default personas and templates.
func NewPrompts() *Prompts {
	tasks := make(map[Kind]TaskTemplates, len(defaultTasks))
	for k, v := range defaultTasks {
		tasks[k] = v
	}
	return &Prompts{
		manager: defaultManager,
		agent:   defaultAgent,
		tasks:   tasks,
	}
}

func (p *Prompts) Manager() Persona {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.manager
}

func (p *Prompts) Agent() Persona {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.agent
}

func (p *Prompts) UpdateManager(patch PersonaPatch) Persona {
	p.mu.Lock()
	defer p.mu.Unlock()
	patch.apply(&p.manager)
	return p.manager
}

func (p *Prompts) UpdateAgent(patch PersonaPatch) Persona {
	p.mu.Lock()
	defer p.mu.Unlock()
	patch.apply(&p.agent)
	return p.agent
}

// Tasks returns the templates of kind.
func (p *Prompts) Tasks(kind Kind) (TaskTemplates, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[kind]
	return t, ok
}

// UpdateTasks validates and stores the patched templates of kind. Nothing is
// stored when either template fails to render.
func (p *Prompts) UpdateTasks(kind Kind, patch TaskTemplatesPatch) (TaskTemplates, error) {
	if !kind.Valid() {
		return TaskTemplates{}, fmt.Errorf("%w: %s", ErrNoWorkflowSelected, kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.tasks[kind]
	if patch.SearchTask != nil {
		next.SearchTask = *patch.SearchTask
	}
	if patch.AnalyseTask != nil {
		next.AnalyseTask = *patch.AnalyseTask
	}

	if _, err := render("searchTask", next.SearchTask, sampleData); err != nil {
		return TaskTemplates{}, err
	}
	if _, err := render("analyseTask", next.AnalyseTask, sampleData); err != nil {
		return TaskTemplates{}, err
	}

	p.tasks[kind] = next
	return next, nil
}

func render(name, src string, data TemplateData) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidTemplate, name)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

var defaultManager = Persona{
	Role:      "Research Manager",
	Goal:      "Turn the collected research into a clear, well-structured analysis",
	Backstory: "A seasoned analyst who reviews the findings of the research team and writes the final report.",
}

var defaultAgent = Persona{
	Role:      "Research Agent",
	Goal:      "Collect accurate and current information from the web",
	Backstory: "A meticulous researcher who knows where to look and always cites sources.",
}

var defaultTasks = map[Kind]TaskTemplates{
	KindCompany: {
		SearchTask: `Research the company {{.Subject}}. Collect its business overview, products,
key executives, recent financial results and notable news.
Return a JSON object containing the researched information.`,
		AnalyseTask: `Analyse the collected information about the company. Assess its competitive
position, strengths, risks and outlook.
Return a JSON object containing the researched information and analysis.`,
	},
	KindIndustry: {
		SearchTask: `Research the {{.Subject}} industry. Collect market size, growth rate, leading
companies, regulation and recent trends.
Return a JSON object containing the researched information.`,
		AnalyseTask: `Analyse the collected industry information. Describe the competitive landscape,
growth drivers, risks and outlook.
Return a JSON object containing the researched information and analysis.`,
	},
	KindMacroeconomic: {
		SearchTask: `Research the macroeconomic situation of {{.Subject}}. Collect GDP growth,
inflation, interest rates, employment, trade balance and fiscal policy.
Return a JSON object containing the researched information.`,
		AnalyseTask: `Analyse the collected macroeconomic indicators. Explain the current cycle,
the main risks and the short-term outlook.
Return a JSON object containing the researched information and analysis.`,
	},
	KindTrip: {
		SearchTask: `Research a trip from {{.From}} to {{.To}} on {{.Date}} for a traveller who enjoys
{{.Hobby}}. Collect weather, transport options, attractions and local events.
Return a JSON object containing the researched information.`,
		AnalyseTask: `Plan the trip using the collected information. Produce a day by day itinerary
with estimated costs and packing suggestions.
Return a JSON object containing the itinerary.`,
	},
}
