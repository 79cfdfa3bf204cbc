package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/domain/entity"
)

// ErrPlacementFailed wraps every I/O failure while relocating a document
var ErrPlacementFailed = errors.New("document placement failed")

// PlacementManager keeps the physical location of a document consistent
// with its workflow status
type PlacementManager interface {
	// MovePdfToFolder moves sourcePath into targetFolder and returns the new path.
	// It is a no-op when the document already lives there.
	MovePdfToFolder(sourcePath, targetFolder string) (string, error)

	// MovePdfToFolderAs is MovePdfToFolder with a new file name. An existing
	// destination is never replaced.
	MovePdfToFolderAs(sourcePath, targetFolder, fileName string) (string, error)

	// FolderFor returns the storage area a document with the given status belongs in
	FolderFor(status entity.QueueStatus) string

	// Remove deletes a document artifact, ignoring files that are already gone
	Remove(path string) error

	// Recover finishes or rolls back moves interrupted by a crash
	Recover() error

	// GetPendingPath returns the full path to the pending folder
	GetPendingPath() string

	// GetSignedPath returns the full path to the signed folder
	GetSignedPath() string

	// GetArchivePath returns the full path to the archive folder
	GetArchivePath() string
}

type placementManager struct {
	config  *config.DocumentConfig
	journal *journal
	logger  *zap.Logger
	mu      sync.Mutex
}

func NewPlacementManager(cfg *config.Config, logger *zap.Logger) (PlacementManager, error) {
	svc := &placementManager{
		config:  &cfg.Document,
		journal: newJournal(filepath.Join(cfg.Document.BasePath, cfg.Document.JournalFile)),
		logger:  logger,
	}

	// Ensure all directories exist
	if err := svc.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create document directories: %w", err)
	}

	logger.Info("Placement manager initialized",
		zap.String("base_path", cfg.Document.BasePath),
		zap.String("pending_folder", svc.GetPendingPath()),
		zap.String("signed_folder", svc.GetSignedPath()),
		zap.String("archive_folder", svc.GetArchivePath()),
	)

	return svc, nil
}

func (s *placementManager) ensureDirectories() error {
	dirs := []string{
		s.GetPendingPath(),
		s.GetSignedPath(),
		s.GetArchivePath(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func (s *placementManager) GetPendingPath() string {
	return filepath.Join(s.config.BasePath, s.config.PendingFolder)
}

func (s *placementManager) GetSignedPath() string {
	return filepath.Join(s.config.BasePath, s.config.SignedFolder)
}

func (s *placementManager) GetArchivePath() string {
	return filepath.Join(s.config.BasePath, s.config.ArchiveFolder)
}

func (s *placementManager) FolderFor(status entity.QueueStatus) string {
	if status == entity.QueueStatusCompleted {
		return s.GetSignedPath()
	}
	return s.GetPendingPath()
}

func (s *placementManager) MovePdfToFolder(sourcePath, targetFolder string) (string, error) {
	return s.MovePdfToFolderAs(sourcePath, targetFolder, filepath.Base(sourcePath))
}

func (s *placementManager) MovePdfToFolderAs(sourcePath, targetFolder, fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return "", fmt.Errorf("%w: invalid file name %q", ErrPlacementFailed, fileName)
	}
	dstPath := filepath.Join(targetFolder, fileName)

	if samePath(sourcePath, dstPath) {
		s.logger.Debug("Document already in target folder",
			zap.String("path", sourcePath),
		)
		return sourcePath, nil
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrPlacementFailed, sourcePath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: source %s is a directory", ErrPlacementFailed, sourcePath)
	}

	if err := os.MkdirAll(targetFolder, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create folder %s: %v", ErrPlacementFailed, targetFolder, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Moving document",
		zap.String("filename", fileName),
		zap.String("from", sourcePath),
		zap.String("to", dstPath),
	)

	if _, err := os.Stat(dstPath); err == nil {
		s.logger.Error("Refusing to replace existing document",
			zap.String("from", sourcePath),
			zap.String("to", dstPath),
		)
		return "", fmt.Errorf("%w: destination already exists: %s", ErrPlacementFailed, dstPath)
	}

	id, err := s.journal.begin(sourcePath, dstPath, info.Size())
	if err != nil {
		return "", fmt.Errorf("%w: failed to write placement journal: %v", ErrPlacementFailed, err)
	}

	if err := copyFileDurable(sourcePath, dstPath, info.Mode().Perm()); err != nil {
		_ = os.Remove(partialPath(dstPath))
		_ = s.journal.commit(id)
		return "", fmt.Errorf("%w: failed to copy document: %v", ErrPlacementFailed, err)
	}

	if err := os.Remove(sourcePath); err != nil {
		// The copy is complete; recovery will retry the delete.
		s.logger.Error("Failed to delete source after copy",
			zap.String("path", sourcePath),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: failed to delete source: %v", ErrPlacementFailed, err)
	}
	syncDir(filepath.Dir(sourcePath))

	if err := s.journal.commit(id); err != nil {
		s.logger.Warn("Failed to commit placement journal entry", zap.Error(err))
	}

	s.logger.Info("Document moved successfully",
		zap.String("filename", filepath.Base(dstPath)),
	)

	return dstPath, nil
}

func (s *placementManager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove document %s: %w", path, err)
	}
	return nil
}

// Recover replays the journal: a move whose destination was fully written
// is finished by deleting the source, anything else is rolled back. A
// destination whose size differs from the journaled source is not ours, so
// both files are kept.
func (s *placementManager) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	open, err := s.journal.pending()
	if err != nil {
		return fmt.Errorf("failed to read placement journal: %w", err)
	}

	for _, e := range open {
		_, srcErr := os.Stat(e.Source)
		dstInfo, dstErr := os.Stat(e.Destination)
		_ = os.Remove(partialPath(e.Destination))

		switch {
		case srcErr == nil && dstErr == nil && dstInfo.Size() != e.Size:
			s.logger.Error("Destination of interrupted move does not match its source; keeping both",
				zap.String("from", e.Source),
				zap.String("to", e.Destination),
				zap.Int64("expected_size", e.Size),
				zap.Int64("actual_size", dstInfo.Size()),
			)
		case srcErr == nil && dstErr == nil:
			if err := os.Remove(e.Source); err != nil {
				return fmt.Errorf("failed to finish move of %s: %w", e.Source, err)
			}
			s.logger.Info("Finished interrupted move",
				zap.String("from", e.Source),
				zap.String("to", e.Destination),
			)
		case srcErr == nil:
			s.logger.Info("Rolled back interrupted move",
				zap.String("path", e.Source),
			)
		case dstErr == nil:
			s.logger.Info("Interrupted move had already completed",
				zap.String("path", e.Destination),
			)
		default:
			s.logger.Error("Document missing after interrupted move",
				zap.String("from", e.Source),
				zap.String("to", e.Destination),
			)
		}
	}

	return s.journal.reset()
}

func partialPath(dst string) string {
	return dst + ".part"
}

// copyFileDurable copies src next to dst, syncs it and renames it into place
// so dst only ever appears complete.
func copyFileDurable(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := partialPath(dst)
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	syncDir(filepath.Dir(dst))
	return nil
}

// syncDir flushes directory entries where the platform supports it
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func samePath(a, b string) bool {
	ca, errA := filepath.Abs(a)
	cb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
	}
	return strings.EqualFold(ca, cb)
}
