package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qualtrack/internal/domain/entity"
	"qualtrack/internal/domain/provider"
	"qualtrack/internal/domain/repository"
	"qualtrack/internal/domain/workflow"
	"qualtrack/internal/infrastructure/document"
	"qualtrack/internal/infrastructure/lock"
)

var (
	// ErrDocumentNotFound is returned when a queue item is created for a missing file
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidStatus is returned for an unknown inbox status filter
	ErrInvalidStatus = errors.New("invalid status")
)

type SignatureUsecase interface {
	// CreateQueueItem registers a document, places it in its storage area and queues it
	CreateQueueItem(ctx context.Context, req *entity.CreateQueueItemRequest) (*entity.SignatureQueueItem, error)

	// SignCurrent signs the item on behalf of its current role and advances it
	SignCurrent(ctx context.Context, id string, req *entity.SignRequest) (*entity.SignOutcome, error)

	// ReturnItem sends the item back to an earlier role, by default the last one that signed
	ReturnItem(ctx context.Context, id string, req *entity.ReturnRequest) (*entity.SignatureQueueItem, error)

	GetItem(ctx context.Context, id string) (*entity.SignatureQueueItem, error)
	GetInbox(ctx context.Context, filter entity.InboxFilter) ([]*entity.SignatureQueueItem, error)
	ProviderStatus(ctx context.Context) *entity.ProviderStatus

	// VerifyDocument lists the signatures embedded in the item's current document
	VerifyDocument(ctx context.Context, id string) ([]entity.EmbeddedSignature, error)
}

type signatureUsecase struct {
	queueRepo repository.QueueRepository
	docRepo   repository.DocumentRepository
	provider  provider.SignatureProvider
	verifier  provider.SignatureVerifier
	notifier  provider.QueueNotifier
	placement document.PlacementManager
	locker    lock.Locker
	logger    *zap.Logger
	now       func() time.Time
}

func NewSignatureUsecase(
	queueRepo repository.QueueRepository,
	docRepo repository.DocumentRepository,
	signer provider.SignatureProvider,
	verifier provider.SignatureVerifier,
	notifier provider.QueueNotifier,
	placement document.PlacementManager,
	locker lock.Locker,
	logger *zap.Logger,
) SignatureUsecase {
	return &signatureUsecase{
		queueRepo: queueRepo,
		docRepo:   docRepo,
		provider:  signer,
		verifier:  verifier,
		notifier:  notifier,
		placement: placement,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
}

func (u *signatureUsecase) CreateQueueItem(ctx context.Context, req *entity.CreateQueueItemRequest) (*entity.SignatureQueueItem, error) {
	u.logger.Info("Creating signature queue item",
		zap.String("document_path", req.DocumentPath),
		zap.String("form_type", req.FormType),
		zap.Strings("required_roles", req.RequiredRoles),
	)

	required, err := entity.ParseRoles(req.RequiredRoles)
	if err != nil {
		return nil, err
	}
	completed, err := entity.ParseRoles(req.CompletedRoles)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(req.DocumentPath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, req.DocumentPath)
	}

	now := u.now()
	item, err := workflow.NewQueueItem(workflow.NewItemParams{
		ID:             uuid.NewString(),
		DocumentID:     req.DocumentID,
		PersonnelID:    req.PersonnelID,
		DocumentPath:   req.DocumentPath,
		FormType:       entity.FormType(req.FormType),
		RequiredRoles:  required,
		CompletedRoles: completed,
	}, now)
	if err != nil {
		return nil, err
	}

	// Item ids keep placed names unique across callers' folders.
	source := item.DocumentPath
	placed, err := u.placement.MovePdfToFolderAs(source, u.placement.FolderFor(item.Status),
		item.ID+"_"+filepath.Base(source))
	if err != nil {
		u.logger.Error("Failed to place new document", zap.Error(err))
		return nil, err
	}
	item.DocumentPath = placed

	register := item.DocumentID == ""
	if register {
		item.DocumentID = uuid.NewString()
	}

	if err := u.queueRepo.Add(ctx, item); err != nil {
		u.logger.Error("Failed to persist queue item",
			zap.String("item_id", item.ID),
			zap.String("document_path", item.DocumentPath),
			zap.Error(err),
		)
		u.restoreSource(placed, source)
		return nil, err
	}

	if register {
		if err := u.registerDocument(ctx, item); err != nil {
			u.logger.Warn("Failed to register document; item stays unlinked",
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
			item.DocumentID = ""
			if err := u.queueRepo.Update(ctx, item); err != nil {
				u.logger.Warn("Failed to unlink queue item from registry",
					zap.String("item_id", item.ID),
					zap.Error(err),
				)
			}
		}
	} else {
		u.syncRegistry(ctx, item)
	}

	u.logger.Info("Signature queue item created",
		zap.String("item_id", item.ID),
		zap.String("current_role", string(item.CurrentRole)),
		zap.String("status", string(item.Status)),
	)

	return item, nil
}

// restoreSource puts a document back where the caller left it after the item
// referencing it could not be persisted.
func (u *signatureUsecase) restoreSource(placed, source string) {
	if _, err := u.placement.MovePdfToFolderAs(placed, filepath.Dir(source), filepath.Base(source)); err != nil {
		u.logger.Error("Failed to restore document to its original location",
			zap.String("path", placed),
			zap.String("original_path", source),
			zap.Error(err),
		)
	}
}

// registerDocument adds the registry record the item already points at
func (u *signatureUsecase) registerDocument(ctx context.Context, item *entity.SignatureQueueItem) error {
	info, err := os.Stat(item.DocumentPath)
	if err != nil {
		return fmt.Errorf("failed to stat document: %w", err)
	}
	doc := &entity.Document{
		ID:          item.DocumentID,
		FileName:    filepath.Base(item.DocumentPath),
		FilePath:    item.DocumentPath,
		FileSize:    info.Size(),
		PersonnelID: item.PersonnelID,
		FormType:    item.FormType,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.CreatedAt,
	}
	if err := u.docRepo.Add(ctx, doc); err != nil {
		return fmt.Errorf("failed to add registry record: %w", err)
	}
	return nil
}

func (u *signatureUsecase) SignCurrent(ctx context.Context, id string, req *entity.SignRequest) (*entity.SignOutcome, error) {
	release, err := u.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := u.queueRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return u.sign(ctx, item, req)
}

// sign runs one orchestration step. The stored item changes only through a
// single Update after signing, advancing and any relocation have succeeded.
func (u *signatureUsecase) sign(ctx context.Context, item *entity.SignatureQueueItem, req *entity.SignRequest) (*entity.SignOutcome, error) {
	log := u.logger.With(
		zap.String("item_id", item.ID),
		zap.String("current_role", string(item.CurrentRole)),
	)

	if item.CurrentRole == "" {
		log.Warn("Nothing to sign", zap.String("status", string(item.Status)))
		return &entity.SignOutcome{
			Kind:    entity.OutcomeRejected,
			Failure: entity.FailureInvalidTransition,
			Message: fmt.Sprintf("item %s has no role awaiting signature", item.ID),
			Item:    item,
		}, nil
	}

	role := item.CurrentRole
	field := entity.LookupSignatureField(item.FormType, role)

	result := u.provider.RequestSignature(ctx, &entity.SignatureRequest{
		DocumentPath:        item.DocumentPath,
		Purpose:             field.Purpose,
		SignerDisplayName:   req.SignerDisplayName,
		SignatureFieldName:  field.FieldName,
		PageNumber:          field.Page,
		PreferredThumbprint: req.CertificateThumbprint,
	})
	if !result.Success {
		log.Warn("Signature not applied",
			zap.String("failure", string(result.Failure)),
			zap.String("message", result.Message),
		)
		return &entity.SignOutcome{
			Kind:      entity.OutcomeNoChange,
			Failure:   result.Failure,
			Message:   result.Message,
			Item:      item,
			Signature: result,
		}, nil
	}

	now := u.now()
	next := item.Clone()
	next.DocumentPath = result.SignedDocumentPath
	if err := workflow.AdvanceAfterSignature(next, role, now); err != nil {
		u.discardArtifact(result.SignedDocumentPath)
		return nil, err
	}
	next.LastAction = fmt.Sprintf("Signed as %s by %s", role, req.SignerDisplayName)

	if next.Status == entity.QueueStatusCompleted {
		placed, err := u.placement.MovePdfToFolder(next.DocumentPath, u.placement.FolderFor(next.Status))
		if err != nil {
			log.Error("Failed to relocate completed document", zap.Error(err))
			u.discardArtifact(result.SignedDocumentPath)
			return nil, err
		}
		next.DocumentPath = placed
	}

	if err := u.queueRepo.Update(ctx, next); err != nil {
		log.Error("Failed to persist signed queue item", zap.Error(err))
		u.discardArtifact(next.DocumentPath)
		return nil, err
	}

	u.syncRegistry(ctx, next)
	u.archiveSuperseded(item.DocumentPath, next.DocumentPath)

	kind := entity.OutcomeSignedPending
	message := fmt.Sprintf("signed as %s; awaiting %s", role, next.CurrentRole)
	if next.Status == entity.QueueStatusCompleted {
		kind = entity.OutcomeCompleted
		message = fmt.Sprintf("signed as %s; all signatures collected", role)
		u.notify(ctx, entity.QueueEventCompleted, next)
	}

	log.Info("Signature step completed",
		zap.String("outcome", string(kind)),
		zap.String("next_role", string(next.CurrentRole)),
		zap.String("document_path", next.DocumentPath),
		zap.String("thumbprint", result.SignerThumbprint),
	)

	return &entity.SignOutcome{
		Kind:       kind,
		SignedRole: role,
		Message:    message,
		Item:       next,
		Signature:  result,
	}, nil
}

// discardArtifact removes a signed file that will not be referenced by any
// persisted state. The input document is never touched.
func (u *signatureUsecase) discardArtifact(path string) {
	if err := u.placement.Remove(path); err != nil {
		u.logger.Warn("Failed to remove orphaned signed document",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// archiveSuperseded moves the previous revision out of the pending area once
// the signed revision is durably recorded.
func (u *signatureUsecase) archiveSuperseded(previous, current string) {
	if previous == "" || previous == current {
		return
	}
	if _, err := os.Stat(previous); err != nil {
		return
	}
	if _, err := u.placement.MovePdfToFolder(previous, u.placement.GetArchivePath()); err != nil {
		u.logger.Warn("Failed to archive superseded document",
			zap.String("path", previous),
			zap.Error(err),
		)
	}
}

// syncRegistry mirrors the item's file into its registry record. The queue
// item stays authoritative, so failures are only logged.
func (u *signatureUsecase) syncRegistry(ctx context.Context, item *entity.SignatureQueueItem) {
	if item.DocumentID == "" {
		return
	}
	log := u.logger.With(zap.String("item_id", item.ID), zap.String("document_id", item.DocumentID))

	doc, err := u.docRepo.GetByID(ctx, item.DocumentID)
	if err != nil {
		log.Warn("Failed to load registry record", zap.Error(err))
		return
	}
	info, err := os.Stat(item.DocumentPath)
	if err != nil {
		log.Warn("Failed to stat document for registry", zap.Error(err))
		return
	}

	doc.FileName = filepath.Base(item.DocumentPath)
	doc.FilePath = item.DocumentPath
	doc.FileSize = info.Size()
	doc.UpdatedAt = u.now()
	if err := u.docRepo.Update(ctx, doc); err != nil {
		log.Warn("Failed to update registry record", zap.Error(err))
	}
}

// notify announces a committed transition; delivery failures are only logged
func (u *signatureUsecase) notify(ctx context.Context, event entity.QueueEventType, item *entity.SignatureQueueItem) {
	if err := u.notifier.Notify(ctx, entity.NewQueueEvent(event, item, u.now())); err != nil {
		u.logger.Warn("Failed to deliver queue event",
			zap.String("event", string(event)),
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}
}

func (u *signatureUsecase) ReturnItem(ctx context.Context, id string, req *entity.ReturnRequest) (*entity.SignatureQueueItem, error) {
	release, err := u.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := u.queueRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var role entity.Role
	if req.Role != "" {
		if role, err = entity.ParseRole(req.Role); err != nil {
			return nil, err
		}
	} else {
		role = workflow.GetPreviousRole(item)
	}

	next := item.Clone()
	if err := workflow.ReturnToQueue(next, role, u.now()); err != nil {
		return nil, err
	}
	next.LastAction = fmt.Sprintf("Returned to %s", next.CurrentRole)
	if req.Note != "" {
		next.LastAction += ": " + req.Note
	}

	if err := u.queueRepo.Update(ctx, next); err != nil {
		u.logger.Error("Failed to persist returned queue item",
			zap.String("item_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	u.logger.Info("Queue item returned",
		zap.String("item_id", id),
		zap.String("return_role", string(next.CurrentRole)),
	)
	u.notify(ctx, entity.QueueEventReturned, next)

	return next, nil
}

func (u *signatureUsecase) GetItem(ctx context.Context, id string) (*entity.SignatureQueueItem, error) {
	return u.queueRepo.GetByID(ctx, id)
}

func (u *signatureUsecase) GetInbox(ctx context.Context, filter entity.InboxFilter) ([]*entity.SignatureQueueItem, error) {
	if _, err := entity.ParseRole(string(filter.Role)); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	return u.queueRepo.GetInbox(ctx, filter)
}

func (u *signatureUsecase) ProviderStatus(ctx context.Context) *entity.ProviderStatus {
	return &entity.ProviderStatus{
		ProviderName: u.provider.Name(),
		IsAvailable:  u.provider.IsAvailable(ctx),
	}
}

func (u *signatureUsecase) VerifyDocument(ctx context.Context, id string) ([]entity.EmbeddedSignature, error) {
	item, err := u.queueRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sigs, err := u.verifier.VerifyDocument(ctx, item.DocumentPath)
	if err != nil {
		u.logger.Error("Failed to verify document",
			zap.String("item_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	return sigs, nil
}
