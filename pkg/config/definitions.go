package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/google/uuid"
)

// TaskFile is the on-disk form of a task and the triggers scheduling it.
//
//	id: 0b6d6d7e-5a0c-4a53-9a57-7c1b1f3c2a10   # optional
//	task:
//	  name: open-data
//	  source:
//	    type: CKAN
//	    properties:
//	      hostUrl: https://catalog.example.org
//	  destinations:
//	    - type: FOLDER
//	      properties:
//	        rootFolder: /var/harvest
//	triggers:
//	  - type: CRON
//	    properties:
//	      cron: "0 3 * * *"
type TaskFile struct {
	ID       uuid.UUID             `yaml:"id,omitempty"`
	Task     models.TaskDefinition `yaml:"task"`
	Triggers []TriggerSpec         `yaml:"triggers,omitempty"`
}

// TriggerSpec schedules the task of its file.
type TriggerSpec struct {
	ID         uuid.UUID         `yaml:"id,omitempty"`
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"properties,omitempty"`
	// Active defaults to true
	Active *bool `yaml:"active,omitempty"`
}

// StoredTask returns the task keyed by the file's identifier.
func (f *TaskFile) StoredTask() models.StoredTask {
	return models.StoredTask{ID: f.ID, Definition: f.Task}
}

// TriggerDefinitions returns the file's triggers bound to its task.
func (f *TaskFile) TriggerDefinitions() []models.TriggerInstanceDefinition {
	defs := make([]models.TriggerInstanceDefinition, 0, len(f.Triggers))
	for _, t := range f.Triggers {
		active := true
		if t.Active != nil {
			active = *t.Active
		}
		defs = append(defs, models.TriggerInstanceDefinition{
			ID:         t.ID,
			Type:       strings.ToUpper(t.Type),
			TaskID:     f.ID,
			Properties: t.Properties,
			Active:     active,
		})
	}
	return defs
}

// LoadTaskFile reads a task file. Missing identifiers are derived from the
// file's absolute path so that reloading the same file yields the same ids.
func LoadTaskFile(path string) (*TaskFile, error) {
	f := &TaskFile{}
	if err := Load(path, f); err != nil {
		return nil, err
	}
	if f.Task.Source.Type == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "task source type is required").WithDetail("path", path)
	}
	if len(f.Task.Destinations) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "task needs at least one destination").WithDetail("path", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs))
	}
	if f.Task.Name == "" {
		f.Task.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i := range f.Triggers {
		if f.Triggers[i].Type == "" {
			return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("trigger %d has no type", i)).WithDetail("path", path)
		}
		if f.Triggers[i].ID == uuid.Nil {
			f.Triggers[i].ID = uuid.NewSHA1(f.ID, []byte(fmt.Sprintf("trigger/%d", i)))
		}
	}
	return f, nil
}

// LoadTaskDir reads every *.yaml and *.yml task file in dir, in name order.
func LoadTaskDir(dir string) ([]*TaskFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read task directory").WithDetail("path", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]*TaskFile, 0, len(names))
	for _, name := range names {
		f, err := LoadTaskFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
