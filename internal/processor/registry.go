package processor

import (
	"fmt"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// Registry stores the immutable task-type -> Processor map.
type Registry struct {
	byType map[models.TaskType]interfaces.Processor
}

var _ interfaces.ProcessorRegistry = (*Registry)(nil)

// NewRegistry builds an empty registry. Call Register for every task type
// before serving traffic; the map is not safe to mutate concurrently with
// Resolve.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[models.TaskType]interfaces.Processor)}
}

// Register adds processor for every task type it reports CanHandle for
// among the closed TaskType set.
func (r *Registry) Register(p interfaces.Processor) {
	for _, taskType := range models.AllTaskTypes() {
		if p.CanHandle(taskType) {
			r.byType[taskType] = p
		}
	}
}

// Resolve routes taskType to its registered Processor.
func (r *Registry) Resolve(taskType models.TaskType) (interfaces.Processor, bool) {
	p, ok := r.byType[taskType]
	return p, ok
}

// JobErrorNoProcessor is the programmer-error sentinel message for a
// dispatch miss.
func JobErrorNoProcessor(taskType models.TaskType) error {
	return fmt.Errorf("no processor for %s", taskType)
}
