package alert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventmon/pkg/events"
	"eventmon/pkg/filter"
)

// RuleFile is the YAML structure for an alert rule. The filter string
// is compiled at load time, so a bad expression fails configuration,
// never per-event.
type RuleFile struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Filter   string     `yaml:"filter"`
	Action   ActionFile `yaml:"action"`
	Throttle string     `yaml:"throttle"` // Go duration, e.g. "5m"
}

type ActionFile struct {
	Kind     string `yaml:"kind"`
	Severity string `yaml:"severity"`
	Target   string `yaml:"target"`
}

// Compile validates a rule file and compiles its filter expression.
func Compile(rf *RuleFile) (*Rule, error) {
	if rf.Name == "" {
		return nil, fmt.Errorf("rule: name is required")
	}
	if rf.Filter == "" {
		return nil, fmt.Errorf("rule %s: filter is required", rf.Name)
	}
	expr, err := filter.Parse(rf.Filter)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rf.Name, err)
	}

	action := Action{Kind: ActionKind(rf.Action.Kind), Severity: events.SeverityInfo, Target: rf.Action.Target}
	switch action.Kind {
	case "", ActionLog:
		action.Kind = ActionLog
		if rf.Action.Severity != "" {
			sev, err := events.ParseSeverity(rf.Action.Severity)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rf.Name, err)
			}
			action.Severity = sev
		}
	case ActionEmail, ActionWebhook, ActionCommand:
		if action.Target == "" {
			return nil, fmt.Errorf("rule %s: %s action requires a target", rf.Name, action.Kind)
		}
	default:
		return nil, fmt.Errorf("rule %s: unknown action kind %q", rf.Name, rf.Action.Kind)
	}

	var throttle time.Duration
	if rf.Throttle != "" {
		throttle, err = time.ParseDuration(rf.Throttle)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid throttle: %w", rf.Name, err)
		}
	}

	return &Rule{
		ID:       rf.ID,
		Name:     rf.Name,
		Filter:   expr,
		Action:   action,
		Throttle: throttle,
	}, nil
}

// LoadFile loads and compiles a single rule YAML file.
func LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("rule %s: %w", filepath.Base(path), err)
	}
	return Compile(&rf)
}

// LoadDir loads all .yml/.yaml files from a directory. Files that fail
// to compile are skipped.
func LoadDir(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml") {
			continue
		}
		r, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			continue // skip invalid rules
		}
		rules = append(rules, *r)
	}
	return rules, nil
}
