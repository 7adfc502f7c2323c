package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const sqliteMimeType = "application/vnd.sqlite3"

// Snapshotter is a database that can flush its write-ahead log so the main
// file is a consistent copy.
type Snapshotter interface {
	Checkpoint() error
	Path() string
}

type uploader interface {
	create(ctx context.Context, meta *drive.File, media io.Reader) (string, error)
	update(ctx context.Context, fileID string, media io.Reader) error
}

type driveFiles struct {
	service *drive.Service
}

func (d driveFiles) create(ctx context.Context, meta *drive.File, media io.Reader) (string, error) {
	doc, err := d.service.Files.Create(meta).Media(media).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (d driveFiles) update(ctx context.Context, fileID string, media io.Reader) error {
	_, err := d.service.Files.Update(fileID, &drive.File{}).Media(media).Context(ctx).Do()
	return err
}

// Syncer keeps one Drive copy of the audit database per day, replacing it
// on every backup.
type Syncer struct {
	files    uploader
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
	now      func() time.Time
	logger   *slog.Logger
}

func NewSyncer(ctx context.Context, credPath, folderID string, logger *slog.Logger) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newSyncer(driveFiles{service: svc}, folderID, logger), nil
}

func newSyncer(files uploader, folderID string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		files:    files,
		folderID: folderID,
		fileIDs:  make(map[string]string),
		now:      time.Now,
		logger:   logger,
	}
}

// Sync uploads localPath as the backup for date, creating the Drive file
// on first use and updating it afterwards.
func (s *Syncer) Sync(ctx context.Context, localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[date]; ok {
		if err := s.files.update(ctx, fileID, f); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	id, err := s.files.create(ctx, &drive.File{
		Name:     fmt.Sprintf("call-insights-%s.db", date),
		MimeType: sqliteMimeType,
		Parents:  []string{s.folderID},
	}, f)
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[date] = id
	return nil
}

// Backup checkpoints db and uploads it under today's date.
func (s *Syncer) Backup(ctx context.Context, db Snapshotter) error {
	if err := db.Checkpoint(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return s.Sync(ctx, db.Path(), s.now().UTC().Format("2006-01-02"))
}

// Run backs db up every interval until ctx is done. Failures are logged and
// retried on the next tick.
func (s *Syncer) Run(ctx context.Context, db Snapshotter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Backup(ctx, db); err != nil {
				s.logger.Warn("drive backup failed", "error", err)
				continue
			}
			s.logger.Debug("drive backup done", "path", db.Path())
		}
	}
}
