package workflow

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/types"
)

// TemplateRegistry stores validated templates by id. There is no update API;
// a registered template never changes.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	logger    *zap.Logger
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry(logger *zap.Logger) *TemplateRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateRegistry{
		templates: make(map[string]*Template),
		logger:    logger.With(zap.String("component", "template_registry")),
	}
}

// Register validates t and stores a deep copy of it.
func (r *TemplateRegistry) Register(t *Template) error {
	if t == nil {
		return types.NewError(types.ErrInvalidTemplate, "template is nil")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; exists {
		return types.Errorf(types.ErrDuplicateTemplate, "template %q already registered", t.ID)
	}
	r.templates[t.ID] = t.Clone()

	r.logger.Debug("template registered",
		zap.String("template_id", t.ID),
		zap.Int("steps", len(t.Steps)),
	)
	return nil
}

// Get returns a copy of the template.
func (r *TemplateRegistry) Get(id string) (*Template, error) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrTemplateNotFound, "template %q not found", id)
	}
	return t.Clone(), nil
}

// IDs returns the registered template ids, sorted.
func (r *TemplateRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns copies of all templates, sorted by id.
func (r *TemplateRegistry) List() []*Template {
	ids := r.IDs()
	out := make([]*Template, 0, len(ids))
	for _, id := range ids {
		if t, err := r.Get(id); err == nil {
			out = append(out, t)
		}
	}
	return out
}
