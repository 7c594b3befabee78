package permissions

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in permission kinds. External modules may register additional
// kinds before the registry is frozen.
const (
	KindCaseView           = "case:view"
	KindCaseRequestAccess  = "case:request-access"
	KindCaseHandleAccess   = "case:handle-access"
	KindCaseCreateDocument = "case:create-document"
	KindDocumentView       = "document:view"
	KindDocumentDownload   = "document:download"
)

// Kind is a named capability. The name is opaque to the evaluator; an
// unknown name is simply never granted.
type Kind struct {
	Name        string
	Description string
}

// KindRegistry holds all known permission kinds. It is populated once
// during startup and frozen before the service starts handling
// requests; registration after that fails.
type KindRegistry struct {
	mu     sync.Mutex
	kinds  map[string]Kind
	frozen bool
}

func NewKindRegistry() *KindRegistry {
	return &KindRegistry{kinds: make(map[string]Kind)}
}

func (r *KindRegistry) Register(kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register permission kind '%s': registry is frozen", kind.Name)
	}
	if kind.Name == "" {
		return fmt.Errorf("permission kind needs a name")
	}
	if _, ok := r.kinds[kind.Name]; ok {
		return fmt.Errorf("permission kind '%s' is already registered", kind.Name)
	}

	r.kinds[kind.Name] = kind
	return nil
}

// MustRegister is for startup wiring, where a duplicate registration is
// a programming error.
func (r *KindRegistry) MustRegister(kind Kind) {
	if err := r.Register(kind); err != nil {
		panic(err)
	}
}

// Freeze closes the registry for further registrations.
func (r *KindRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *KindRegistry) Get(name string) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, ok := r.kinds[name]
	return kind, ok
}

func (r *KindRegistry) All() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]Kind, 0, len(r.kinds))
	for _, kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Name < kinds[j].Name })
	return kinds
}

// RegisterDefaultKinds registers the kinds the service ships with.
func RegisterDefaultKinds(r *KindRegistry) {
	r.MustRegister(Kind{Name: KindCaseView, Description: "Read case details"})
	r.MustRegister(Kind{Name: KindCaseRequestAccess, Description: "Request access to a case"})
	r.MustRegister(Kind{Name: KindCaseHandleAccess, Description: "Handle access requests for a case"})
	r.MustRegister(Kind{Name: KindCaseCreateDocument, Description: "Add documents to a case"})
	r.MustRegister(Kind{Name: KindDocumentView, Description: "Read document details"})
	r.MustRegister(Kind{Name: KindDocumentDownload, Description: "Download document content"})
}
