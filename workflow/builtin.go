package workflow

import "github.com/BaSui01/stepflow/llm"

// Built-in template ids.
const (
	EmotionAnalysisTemplateID = "emotion-analysis"
	JournalSummaryTemplateID  = "journal-summary"
)

// BuiltinTemplates returns fresh copies of the bundled templates.
func BuiltinTemplates() []*Template {
	return []*Template{emotionAnalysisTemplate(), journalSummaryTemplate()}
}

// RegisterBuiltins registers the bundled templates.
func (e *Engine) RegisterBuiltins() error {
	for _, t := range BuiltinTemplates() {
		if err := e.RegisterTemplate(t); err != nil {
			return err
		}
	}
	return nil
}

// emotion-analysis: preprocess → {analyze, risk-assess} → insight
func emotionAnalysisTemplate() *Template {
	return &Template{
		ID:          EmotionAnalysisTemplateID,
		Name:        "Emotion analysis",
		Description: "Normalizes a journal entry, analyzes its emotions and risk in parallel, then writes a supportive insight.",
		Variables:   []string{"userText"},
		Steps: []StepDescriptor{
			{
				Name: "preprocess",
				Kind: KindDataTransform,
				Config: TransformConfig{
					Transform: "normalize_text",
					Input:     "{{userText}}",
				},
			},
			{
				Name: "analyze",
				Kind: KindProviderCall,
				Config: ProviderCallConfig{
					SystemPrompt: "You are an empathetic assistant that analyzes emotions in personal writing.",
					Prompt:       "Identify the primary emotions in the following text and rate the intensity of each from 1 to 10.\n\n{{preprocess}}",
					TaskHint:     llm.TaskAnalytical,
					MaxTokens:    512,
				},
				DependsOn: []string{"preprocess"},
			},
			{
				Name: "risk-assess",
				Kind: KindProviderCall,
				Config: ProviderCallConfig{
					Prompt:    "Assess whether the following text shows signs of emotional distress. Answer low, medium or high with a one-sentence reason.\n\n{{preprocess}}",
					TaskHint:  llm.TaskAnalytical,
					MaxTokens: 256,
				},
				DependsOn: []string{"preprocess"},
			},
			{
				Name: "insight",
				Kind: KindProviderCall,
				Config: ProviderCallConfig{
					Prompt:    "Emotions:\n{{analyze}}\n\nRisk:\n{{risk-assess}}\n\nWrite a short, supportive insight for the writer.",
					TaskHint:  llm.TaskCreative,
					MaxTokens: 512,
				},
				DependsOn: []string{"analyze", "risk-assess"},
			},
		},
	}
}

// journal-summary: clean → summarize → validate-summary → notify
func journalSummaryTemplate() *Template {
	return &Template{
		ID:          JournalSummaryTemplateID,
		Name:        "Journal summary",
		Description: "Summarizes a journal entry, checks the summary and sends it to a notification sink.",
		Variables:   []string{"entry"},
		Steps: []StepDescriptor{
			{
				Name: "clean",
				Kind: KindDataTransform,
				Config: TransformConfig{
					Transform: "normalize_text",
					Input:     "{{entry}}",
				},
			},
			{
				Name: "summarize",
				Kind: KindProviderCall,
				Config: ProviderCallConfig{
					Prompt:    "Summarize the following journal entry in at most three sentences.\n\n{{clean}}",
					TaskHint:  llm.TaskCreative,
					MaxTokens: 256,
				},
				DependsOn: []string{"clean"},
			},
			{
				Name: "validate-summary",
				Kind: KindValidate,
				Config: ValidateConfig{
					Checks: []string{"accuracy", "tone", "compliance", "length"},
					Target: "summarize",
					Params: map[string]string{"max_length": "1200"},
				},
				DependsOn: []string{"summarize"},
			},
			{
				Name: "notify",
				Kind: KindNotify,
				Config: NotifyConfig{
					Subject:  "Journal summary",
					Message:  "{{summarize}}",
					Metadata: map[string]string{"validated": "{{validate-summary.passed}}"},
				},
				DependsOn: []string{"summarize", "validate-summary"},
			},
		},
	}
}
