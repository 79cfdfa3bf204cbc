package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"qualtrack/internal/domain/entity"
	"qualtrack/internal/domain/repository"
	"qualtrack/internal/infrastructure/document"
)

type fakeQueueRepository struct {
	mu         sync.Mutex
	items      map[string]*entity.SignatureQueueItem
	updates    int
	failAdd    error
	failUpdate error
}

func newFakeQueueRepository() *fakeQueueRepository {
	return &fakeQueueRepository{items: make(map[string]*entity.SignatureQueueItem)}
}

func (r *fakeQueueRepository) GetByID(ctx context.Context, id string) (*entity.SignatureQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrItemNotFound, id)
	}
	return item.Clone(), nil
}

func (r *fakeQueueRepository) Add(ctx context.Context, item *entity.SignatureQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAdd != nil {
		return r.failAdd
	}
	if item.Version == 0 {
		item.Version = 1
	}
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *fakeQueueRepository) Update(ctx context.Context, item *entity.SignatureQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	stored, ok := r.items[item.ID]
	if !ok {
		return repository.ErrItemNotFound
	}
	if stored.Version != item.Version {
		return repository.ErrVersionConflict
	}
	item.Version++
	r.items[item.ID] = item.Clone()
	r.updates++
	return nil
}

func (r *fakeQueueRepository) GetInbox(ctx context.Context, filter entity.InboxFilter) ([]*entity.SignatureQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SignatureQueueItem
	for _, item := range r.items {
		if item.CurrentRole != filter.Role {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.FormType != "" && item.FormType != filter.FormType {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeDocumentRepository struct {
	mu         sync.Mutex
	docs       map[string]*entity.Document
	failAdd    error
	failUpdate error
}

func newFakeDocumentRepository() *fakeDocumentRepository {
	return &fakeDocumentRepository{docs: make(map[string]*entity.Document)}
}

func (r *fakeDocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	c := *doc
	return &c, nil
}

func (r *fakeDocumentRepository) Add(ctx context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAdd != nil {
		return r.failAdd
	}
	c := *doc
	r.docs[doc.ID] = &c
	return nil
}

func (r *fakeDocumentRepository) Update(ctx context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	c := *doc
	r.docs[doc.ID] = &c
	return nil
}

// fakeProvider "signs" by writing a copy of the input with a marker line
type fakeProvider struct {
	mu       sync.Mutex
	failure  entity.SignatureFailure
	requests []entity.SignatureRequest
	outputs  []string
}

func (p *fakeProvider) Name() string { return "Fake" }

func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return p.failure == "" }

func (p *fakeProvider) RequestSignature(ctx context.Context, req *entity.SignatureRequest) *entity.SignatureResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, *req)

	if p.failure != "" {
		return entity.NewFailedResult(p.failure, "fake failure")
	}
	data, err := os.ReadFile(req.DocumentPath)
	if err != nil {
		return entity.NewFailedResult(entity.FailureInputNotFound, err.Error())
	}
	stem := strings.TrimSuffix(filepath.Base(req.DocumentPath), filepath.Ext(req.DocumentPath))
	out := filepath.Join(filepath.Dir(req.DocumentPath), fmt.Sprintf("%s_signed_%d.pdf", stem, len(p.requests)))
	data = append(data, []byte("\n% signed for "+req.SignatureFieldName)...)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return entity.NewFailedResult(entity.FailureSigningOperationFailed, err.Error())
	}
	p.outputs = append(p.outputs, out)
	return &entity.SignatureResult{
		Success:            true,
		Message:            "signed",
		SignedAt:           time.Now(),
		SignedDocumentPath: out,
		SignerThumbprint:   "ABCDEF",
	}
}

func (p *fakeProvider) VerifyDocument(ctx context.Context, path string) ([]entity.EmbeddedSignature, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return []entity.EmbeddedSignature{{FieldName: "fake", Valid: true, CoversWholeFile: true}}, nil
}

// failingPlacement refuses to move anything into the signed area
type failingPlacement struct {
	document.PlacementManager
}

func (p failingPlacement) MovePdfToFolder(sourcePath, targetFolder string) (string, error) {
	if targetFolder == p.GetSignedPath() {
		return "", fmt.Errorf("%w: disk full", document.ErrPlacementFailed)
	}
	return p.PlacementManager.MovePdfToFolder(sourcePath, targetFolder)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*entity.QueueEvent
	err    error
}

func (n *fakeNotifier) Notify(ctx context.Context, event *entity.QueueEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

var errRegistryDown = errors.New("registry unavailable")
