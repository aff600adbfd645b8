package workflow

import (
	"strings"

	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/types"
)

// StepKind identifies a step executor.
type StepKind string

const (
	KindProviderCall  StepKind = "provider_call"
	KindDataTransform StepKind = "data_transform"
	KindValidate      StepKind = "validate"
	KindNotify        StepKind = "notify"
)

// Known reports whether k has an executor.
func (k StepKind) Known() bool {
	switch k {
	case KindProviderCall, KindDataTransform, KindValidate, KindNotify:
		return true
	}
	return false
}

// StepConfig is the kind-specific configuration of a step. Implementations are
// value types; mapStrings returns a copy with fn applied to every declared
// string field, leaving numbers and pointers untouched.
type StepConfig interface {
	Kind() StepKind
	mapStrings(fn func(string) string) StepConfig
	validate() error
}

// ProviderCallConfig calls the provider dispatcher with a rendered prompt.
type ProviderCallConfig struct {
	Prompt       string       `json:"prompt" yaml:"prompt"`
	SystemPrompt string       `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Provider     string       `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model        string       `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens    int          `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature  *float64     `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TaskHint     llm.TaskHint `json:"task_hint,omitempty" yaml:"task_hint,omitempty"`
}

func (ProviderCallConfig) Kind() StepKind { return KindProviderCall }

func (c ProviderCallConfig) mapStrings(fn func(string) string) StepConfig {
	c.Prompt = fn(c.Prompt)
	c.SystemPrompt = fn(c.SystemPrompt)
	c.Provider = fn(c.Provider)
	c.Model = fn(c.Model)
	if c.Temperature != nil {
		t := *c.Temperature
		c.Temperature = &t
	}
	return c
}

func (c ProviderCallConfig) validate() error {
	if c.Prompt == "" {
		return types.NewError(types.ErrInvalidStepConfig, "provider_call requires a prompt")
	}
	if c.MaxTokens < 0 {
		return types.NewError(types.ErrInvalidStepConfig, "max_tokens must be >= 0")
	}
	return nil
}

// TransformConfig applies a named pure transform. An empty Input means the
// outputs of the step's dependencies, joined by newlines.
type TransformConfig struct {
	Transform string            `json:"transform" yaml:"transform"`
	Input     string            `json:"input,omitempty" yaml:"input,omitempty"`
	Params    map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

func (TransformConfig) Kind() StepKind { return KindDataTransform }

func (c TransformConfig) mapStrings(fn func(string) string) StepConfig {
	c.Transform = fn(c.Transform)
	c.Input = fn(c.Input)
	c.Params = mapStringMap(c.Params, fn)
	return c
}

func (c TransformConfig) validate() error {
	if c.Transform == "" {
		return types.NewError(types.ErrInvalidStepConfig, "data_transform requires a transform name")
	}
	return nil
}

// ValidateConfig runs named checks against the output of Target (a step name;
// defaults to the first dependency).
type ValidateConfig struct {
	Checks []string          `json:"checks" yaml:"checks"`
	Target string            `json:"target,omitempty" yaml:"target,omitempty"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

func (ValidateConfig) Kind() StepKind { return KindValidate }

func (c ValidateConfig) mapStrings(fn func(string) string) StepConfig {
	if c.Checks != nil {
		checks := make([]string, len(c.Checks))
		for i, s := range c.Checks {
			checks[i] = fn(s)
		}
		c.Checks = checks
	}
	c.Target = fn(c.Target)
	c.Params = mapStringMap(c.Params, fn)
	return c
}

func (c ValidateConfig) validate() error {
	if len(c.Checks) == 0 {
		return types.NewError(types.ErrInvalidStepConfig, "validate requires at least one check")
	}
	return nil
}

// NotifyConfig sends Message through a notification sink (default sink when empty).
type NotifyConfig struct {
	Sink     string            `json:"sink,omitempty" yaml:"sink,omitempty"`
	Channel  string            `json:"channel,omitempty" yaml:"channel,omitempty"`
	Subject  string            `json:"subject,omitempty" yaml:"subject,omitempty"`
	Message  string            `json:"message" yaml:"message"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (NotifyConfig) Kind() StepKind { return KindNotify }

func (c NotifyConfig) mapStrings(fn func(string) string) StepConfig {
	c.Sink = fn(c.Sink)
	c.Channel = fn(c.Channel)
	c.Subject = fn(c.Subject)
	c.Message = fn(c.Message)
	c.Metadata = mapStringMap(c.Metadata, fn)
	return c
}

func (c NotifyConfig) validate() error {
	if c.Message == "" {
		return types.NewError(types.ErrInvalidStepConfig, "notify requires a message")
	}
	return nil
}

func mapStringMap(in map[string]string, fn func(string) string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fn(v)
	}
	return out
}

func identity(s string) string { return s }

// StepDescriptor declares one step of a template.
type StepDescriptor struct {
	Name      string     `json:"name" yaml:"name"`
	Kind      StepKind   `json:"kind" yaml:"kind"`
	Config    StepConfig `json:"config" yaml:"config"`
	DependsOn []string   `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

func (s StepDescriptor) clone() StepDescriptor {
	out := s
	if s.Config != nil {
		out.Config = s.Config.mapStrings(identity)
	}
	if s.DependsOn != nil {
		out.DependsOn = append([]string(nil), s.DependsOn...)
	}
	return out
}

// Template is a reusable workflow definition. It is immutable once registered:
// the registry stores and hands out deep copies.
type Template struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StepDescriptor `json:"steps" yaml:"steps"`
	Variables   []string         `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	out := *t
	out.Steps = make([]StepDescriptor, len(t.Steps))
	for i, s := range t.Steps {
		out.Steps[i] = s.clone()
	}
	if t.Variables != nil {
		out.Variables = append([]string(nil), t.Variables...)
	}
	return &out
}

// Validate checks structural invariants. Dependency cycles are not rejected
// here; the scheduler detects them at run time.
func (t *Template) Validate() error {
	if t.ID == "" {
		return types.NewError(types.ErrInvalidTemplate, "template id is empty")
	}
	if t.Name == "" {
		return types.Errorf(types.ErrInvalidTemplate, "template %q has no name", t.ID)
	}
	if len(t.Steps) == 0 {
		return types.Errorf(types.ErrInvalidTemplate, "template %q has no steps", t.ID)
	}

	names := make(map[string]struct{}, len(t.Steps))
	for _, s := range t.Steps {
		if s.Name == "" {
			return types.Errorf(types.ErrInvalidTemplate, "template %q has a step without a name", t.ID)
		}
		if _, dup := names[s.Name]; dup {
			return types.Errorf(types.ErrDuplicateStepName, "duplicate step name %q", s.Name).WithStep(s.Name)
		}
		names[s.Name] = struct{}{}
	}

	for _, s := range t.Steps {
		if !s.Kind.Known() {
			return types.Errorf(types.ErrUnknownStepKind, "unknown step kind %q", s.Kind).WithStep(s.Name)
		}
		if s.Config == nil {
			return types.NewError(types.ErrInvalidTemplate, "step has no config").WithStep(s.Name)
		}
		if s.Config.Kind() != s.Kind {
			return types.Errorf(types.ErrInvalidTemplate, "config kind %q does not match step kind %q", s.Config.Kind(), s.Kind).WithStep(s.Name)
		}
		if err := s.Config.validate(); err != nil {
			return types.NewError(types.ErrInvalidTemplate, "invalid step config").WithStep(s.Name).WithCause(err)
		}
		deps := make(map[string]struct{}, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return types.Errorf(types.ErrInvalidTemplate, "step %q depends on itself", s.Name).WithStep(s.Name)
			}
			if _, ok := names[dep]; !ok {
				return types.Errorf(types.ErrInvalidTemplate, "step %q depends on unknown step %q", s.Name, dep).WithStep(s.Name)
			}
			deps[dep] = struct{}{}
		}
		if err := checkStepReferences(s, names, deps); err != nil {
			return err
		}
	}

	for _, v := range t.Variables {
		if _, ok := names[v]; ok {
			return types.Errorf(types.ErrInvalidTemplate, "variable %q has the same name as a step", v)
		}
	}
	return nil
}

// checkStepReferences 要求 step 读取的其他 step 结果都在 DependsOn 中，
// 否则两者可能落在同一轮，读取时结果尚未发布。
func checkStepReferences(s StepDescriptor, names, deps map[string]struct{}) error {
	if vc, ok := s.Config.(ValidateConfig); ok && vc.Target != "" {
		if _, ok := deps[vc.Target]; !ok {
			return types.Errorf(types.ErrInvalidTemplate, "validate target %q is not a dependency of %q", vc.Target, s.Name).WithStep(s.Name)
		}
	}
	for _, key := range configPlaceholders(s.Config) {
		ref, ok := referencedStep(key, names)
		if !ok {
			continue
		}
		if _, ok := deps[ref]; !ok {
			return types.Errorf(types.ErrInvalidTemplate, "step %q references {{%s}} without depending on %q", s.Name, key, ref).WithStep(s.Name)
		}
	}
	return nil
}

// referencedStep resolves a placeholder key to the step it reads, matching
// the run-time lookup order: the whole key first, then the part before '.'.
func referencedStep(key string, names map[string]struct{}) (string, bool) {
	if _, ok := names[key]; ok {
		return key, true
	}
	name, _, found := strings.Cut(key, ".")
	if !found {
		return "", false
	}
	_, ok := names[name]
	return name, ok
}
