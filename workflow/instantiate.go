package workflow

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/BaSui01/stepflow/types"
)

// Instantiator binds caller variables into a template and produces pending
// instances.
type Instantiator struct {
	registry *TemplateRegistry
	strict   bool
	seq      atomic.Uint64
}

// NewInstantiator creates an instantiator. In strict mode a placeholder that
// names a declared template variable the caller did not supply is an error.
func NewInstantiator(registry *TemplateRegistry, strict bool) *Instantiator {
	return &Instantiator{registry: registry, strict: strict}
}

// Instantiate creates a pending instance of templateID. Tokens that name
// undeclared keys are left verbatim for run-time step-result rendering.
func (in *Instantiator) Instantiate(templateID string, variables map[string]any) (*Instance, error) {
	tmpl, err := in.registry.Get(templateID)
	if err != nil {
		return nil, err
	}

	if in.strict {
		if err := checkDeclaredVariables(tmpl, variables); err != nil {
			return nil, err
		}
	}

	rendered := make(map[string]string, len(variables))
	for k, v := range variables {
		rendered[k] = renderValue(v)
	}
	lookup := func(key string) (string, bool) {
		v, ok := rendered[key]
		return v, ok
	}
	subst := func(s string) string { return Substitute(s, lookup) }

	id := in.nextID(templateID)
	steps := make([]BoundStep, len(tmpl.Steps))
	for idx, s := range tmpl.Steps {
		bound := s.clone()
		bound.Config = s.Config.mapStrings(subst)
		steps[idx] = BoundStep{ID: stepID(id, idx), StepDescriptor: bound, source: s.Config}
	}
	inst := newInstance(id, tmpl.ID, steps)
	inst.variables = rendered
	return inst, nil
}

func (in *Instantiator) nextID(templateID string) string {
	n := in.seq.Add(1)
	return templateID + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.FormatUint(n, 10)
}

func checkDeclaredVariables(tmpl *Template, variables map[string]any) error {
	declared := make(map[string]struct{}, len(tmpl.Variables))
	for _, v := range tmpl.Variables {
		declared[v] = struct{}{}
	}
	for _, s := range tmpl.Steps {
		for _, key := range configPlaceholders(s.Config) {
			if _, ok := declared[key]; !ok {
				continue
			}
			if _, ok := variables[key]; !ok {
				return types.Errorf(types.ErrUnresolvedVariable, "variable %q is not supplied", key).WithStep(s.Name)
			}
		}
	}
	return nil
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
