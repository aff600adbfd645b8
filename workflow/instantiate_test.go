package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stepflow/types"
)

func newGreetingRegistry(t *testing.T) *TemplateRegistry {
	t.Helper()
	reg := NewTemplateRegistry(nil)
	temp := 0.2
	require.NoError(t, reg.Register(&Template{
		ID:        "greeting",
		Name:      "Greeting",
		Variables: []string{"name", "lang"},
		Steps: []StepDescriptor{
			{
				Name:   "prep",
				Kind:   KindDataTransform,
				Config: TransformConfig{Transform: "trim", Input: "{{name}}", Params: map[string]string{"p": "{{lang}}"}},
			},
			{
				Name: "greet",
				Kind: KindProviderCall,
				Config: ProviderCallConfig{
					Prompt:      "Say hi to {{prep}} in {{lang}} ({{count}})",
					Temperature: &temp,
					MaxTokens:   64,
				},
				DependsOn: []string{"prep"},
			},
			{
				Name:      "check",
				Kind:      KindValidate,
				Config:    ValidateConfig{Checks: []string{"{{lang}}", "tone"}},
				DependsOn: []string{"greet"},
			},
		},
	}))
	return reg
}

func TestInstantiator_SubstitutesVariables(t *testing.T) {
	t.Parallel()

	in := NewInstantiator(newGreetingRegistry(t), false)
	inst, err := in.Instantiate("greeting", map[string]any{"name": " Ada ", "lang": "fr", "count": 3})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(inst.ID, "greeting-"))
	assert.Equal(t, "greeting", inst.TemplateID)
	assert.Equal(t, StatusPending, inst.Status())
	require.Len(t, inst.Steps, 3)

	for i, s := range inst.Steps {
		assert.Equal(t, stepID(inst.ID, i), s.ID)
	}
	assert.Equal(t, inst.ID+"-step-1", inst.Steps[1].ID)

	prep := inst.Steps[0].Config.(TransformConfig)
	assert.Equal(t, " Ada ", prep.Input)
	assert.Equal(t, "fr", prep.Params["p"])

	greet := inst.Steps[1].Config.(ProviderCallConfig)
	assert.Equal(t, "Say hi to {{prep}} in fr (3)", greet.Prompt, "step references stay for run time")
	require.NotNil(t, greet.Temperature)
	assert.InDelta(t, 0.2, *greet.Temperature, 1e-9)
	assert.Equal(t, 64, greet.MaxTokens)

	check := inst.Steps[2].Config.(ValidateConfig)
	assert.Equal(t, []string{"fr", "tone"}, check.Checks)
}

func TestInstantiator_PermissiveLeavesMissingVariables(t *testing.T) {
	t.Parallel()

	in := NewInstantiator(newGreetingRegistry(t), false)
	inst, err := in.Instantiate("greeting", map[string]any{"name": "Ada"})
	require.NoError(t, err)

	greet := inst.Steps[1].Config.(ProviderCallConfig)
	assert.Equal(t, "Say hi to {{prep}} in {{lang}} ({{count}})", greet.Prompt)
}

func TestInstantiator_StrictRejectsMissingDeclaredVariable(t *testing.T) {
	t.Parallel()

	in := NewInstantiator(newGreetingRegistry(t), true)
	_, err := in.Instantiate("greeting", map[string]any{"name": "Ada"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnresolvedVariable))
	assert.Contains(t, err.Error(), `"lang"`)

	// undeclared "count" and step reference "prep" may stay unresolved
	inst, err := in.Instantiate("greeting", map[string]any{"name": "Ada", "lang": "en"})
	require.NoError(t, err)
	assert.Contains(t, inst.Steps[1].Config.(ProviderCallConfig).Prompt, "{{count}}")
}

func TestInstantiator_UnknownTemplate(t *testing.T) {
	t.Parallel()

	_, err := NewInstantiator(NewTemplateRegistry(nil), false).Instantiate("nope", nil)
	assert.True(t, types.IsCode(err, types.ErrTemplateNotFound))
}

func TestInstantiator_DoesNotMutateTemplate(t *testing.T) {
	t.Parallel()

	reg := newGreetingRegistry(t)
	in := NewInstantiator(reg, false)

	a, err := in.Instantiate("greeting", map[string]any{"lang": "de"})
	require.NoError(t, err)
	b, err := in.Instantiate("greeting", map[string]any{"lang": "it"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "de", a.Steps[0].Config.(TransformConfig).Params["p"])
	assert.Equal(t, "it", b.Steps[0].Config.(TransformConfig).Params["p"])

	tmpl, err := reg.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "{{lang}}", tmpl.Steps[0].Config.(TransformConfig).Params["p"])
}
