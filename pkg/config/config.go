package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"supvisors/pkg/types"
)

// ProcessDocument is one process's rules section of the YAML document.
type ProcessDocument struct {
	Nodes                   []string `yaml:"nodes"`
	StartSequence           int      `yaml:"start_sequence"`
	StopSequence            int      `yaml:"stop_sequence"`
	Required                bool     `yaml:"required"`
	WaitExit                bool     `yaml:"wait_exit"`
	ExpectedLoad            int      `yaml:"expected_load"`
	ExtraArgsAllowed        bool     `yaml:"extra_args_allowed"`
	StartingFailureStrategy string   `yaml:"starting_failure_strategy"`
	RunningFailureStrategy  string   `yaml:"running_failure_strategy"`
}

// ApplicationDocument is one application's rules section, keyed by
// application name in Document.Applications.
type ApplicationDocument struct {
	StartSequence    int                        `yaml:"start_sequence"`
	StopSequence     int                        `yaml:"stop_sequence"`
	Strategy         string                     `yaml:"strategy"`
	StartingStrategy string                     `yaml:"starting_strategy"`
	Processes        map[string]ProcessDocument `yaml:"processes"`
}

// Document is the root of a rules file.
type Document struct {
	Nodes                []string                        `yaml:"nodes"`
	Local                string                           `yaml:"local"`
	SynchroTimeout       time.Duration                    `yaml:"synchro_timeout"`
	IsolationDelay       time.Duration                    `yaml:"isolation_delay"`
	ConciliationStrategy string                           `yaml:"conciliation_strategy"`
	Applications         map[string]ApplicationDocument   `yaml:"applications"`
}

// Load reads and parses a rules file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("config: %s declares no nodes", path)
	}
	if doc.Local == "" {
		return nil, fmt.Errorf("config: %s does not set local", path)
	}
	return &doc, nil
}

// ApplicationRules populates a types.ApplicationRules for application
// name, or the zero value (unmanaged) if name is not declared.
func (d *Document) ApplicationRules(name string) types.ApplicationRules {
	app, ok := d.Applications[name]
	if !ok {
		return types.ApplicationRules{}
	}
	return types.ApplicationRules{
		StartSequence:    app.StartSequence,
		StopSequence:     app.StopSequence,
		Strategy:         types.PlacementStrategy(app.Strategy),
		StartingStrategy: types.ConciliationStrategy(app.StartingStrategy),
	}
}

// ProcessRules populates every process's types.ProcessRules, keyed by
// namespec ("application:process").
func (d *Document) ProcessRules() map[string]types.ProcessRules {
	out := make(map[string]types.ProcessRules)
	for appName, app := range d.Applications {
		for procName, proc := range app.Processes {
			namespec := appName + ":" + procName
			out[namespec] = types.ProcessRules{
				Nodes:                   proc.Nodes,
				StartSequence:           proc.StartSequence,
				StopSequence:            proc.StopSequence,
				Required:                proc.Required,
				WaitExit:                proc.WaitExit,
				ExpectedLoad:            proc.ExpectedLoad,
				ExtraArgsAllowed:        proc.ExtraArgsAllowed,
				StartingFailureStrategy: types.StartingFailureStrategy(proc.StartingFailureStrategy),
				RunningFailureStrategy:  types.RunningFailureStrategy(proc.RunningFailureStrategy),
			}
		}
	}
	return out
}

// ApplicationNames returns every application declared in the document.
func (d *Document) ApplicationNames() []string {
	out := make([]string, 0, len(d.Applications))
	for name := range d.Applications {
		out = append(out, name)
	}
	return out
}
