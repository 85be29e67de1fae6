// Package sigma evaluates detection events against operator-supplied Sigma
// rules, so a site can tag or suppress alerts (for example, only page when
// the stuck reader belongs to a production user). Rules are optional; with
// no rules directory configured the detector is nil and matching is skipped.
package sigma

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Detector manages Sigma rules and matches detection events against them.
type Detector struct {
	rulesDir string
	log      *logrus.Logger
	watcher  *fsnotify.Watcher

	mu         sync.RWMutex
	evaluators map[string]*evaluator.RuleEvaluator
}

// fieldConfig maps the field names rule authors use to the fields the
// actuator supplies for each detection.
func fieldConfig() sigma.Config {
	return sigma.Config{
		Title: "readguard detection fields",
		FieldMappings: map[string]sigma.FieldMapping{
			"Kind":      {TargetNames: []string{"Kind"}},
			"ProcessId": {TargetNames: []string{"ProcessId"}},
			"ThreadId":  {TargetNames: []string{"ThreadId"}},
			"User":      {TargetNames: []string{"User"}},
			"Image":     {TargetNames: []string{"Image"}},
			"Errno":     {TargetNames: []string{"Errno"}},
		},
	}
}

// NewDetector loads rules from rulesDir and watches it for changes.
func NewDetector(rulesDir string, log *logrus.Logger) (*Detector, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %v", err)
	}

	d := &Detector{
		rulesDir:   rulesDir,
		log:        log,
		watcher:    watcher,
		evaluators: make(map[string]*evaluator.RuleEvaluator),
	}

	if err := os.MkdirAll(rulesDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create rules directory %s: %v", rulesDir, err)
	}

	if err := d.LoadRules(); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to load rules: %v", err)
	}

	if err := watcher.Add(rulesDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %v", rulesDir, err)
	}
	go d.watchFileChanges()

	return d, nil
}

// LoadRules replaces the active rule set with the contents of the rules
// directory. Unparseable files are skipped with a warning.
func (d *Detector) LoadRules() error {
	entries, err := os.ReadDir(d.rulesDir)
	if err != nil {
		return err
	}

	evaluators := make(map[string]*evaluator.RuleEvaluator)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		path := filepath.Join(d.rulesDir, entry.Name())

		content, err := os.ReadFile(path)
		if err != nil {
			d.log.WithError(err).Warnf("failed to read rule file %s", path)
			continue
		}

		if sigma.InferFileType(content) != sigma.RuleFile {
			d.log.Warnf("file is not a Sigma rule: %s", path)
			continue
		}

		rule, err := sigma.ParseRule(content)
		if err != nil {
			d.log.WithError(err).Warnf("failed to parse rule file %s", path)
			continue
		}

		evaluators[rule.ID] = evaluator.ForRule(rule,
			evaluator.WithConfig(fieldConfig()),
			evaluator.WithPlaceholderExpander(func(ctx context.Context, placeholderName string) ([]string, error) {
				return nil, nil
			}))
		d.log.Infof("loaded rule: %s (%s)", rule.Title, rule.ID)
	}

	d.mu.Lock()
	d.evaluators = evaluators
	d.mu.Unlock()

	d.log.Infof("loaded %d Sigma rules from %s", len(evaluators), d.rulesDir)
	return nil
}

func (d *Detector) watchFileChanges() {
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yml") && !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				d.log.Infof("detected rule change: %s", event.Name)
				if err := d.LoadRules(); err != nil {
					d.log.WithError(err).Error("failed to reload rules")
				}
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.WithError(err).Error("rule watcher error")
		}
	}
}

// Check evaluates one detection event against all loaded rules and returns
// the titles of the rules that matched.
func (d *Detector) Check(ctx context.Context, event map[string]interface{}) []string {
	d.mu.RLock()
	evaluators := d.evaluators
	d.mu.RUnlock()

	var matched []string
	for _, ev := range evaluators {
		result, err := ev.Matches(ctx, event)
		if err != nil {
			d.log.WithError(err).Warnf("error evaluating rule %s", ev.Rule.ID)
			continue
		}
		if result.Match {
			matched = append(matched, ev.Rule.Title)
		}
	}
	return matched
}

// RuleCount returns the number of loaded rules.
func (d *Detector) RuleCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.evaluators)
}

func (d *Detector) Close() error {
	return d.watcher.Close()
}
