package checkpoint

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nexusbridge/relayer/pkg/domain"
)

// LocalSyncer is a Syncer backed by a directory on the local
// filesystem, holding the bit-exact "index.json" / "<index>_with_id.json"
// / "announcement.json" layout. It is intended for validator-side
// writes and for relayer-side reads when local checkpoint syncers are
// explicitly allowed by configuration.
type LocalSyncer struct {
	dir    string
	logger *log.Logger
	mu     sync.Mutex
}

// NewLocalSyncer returns a LocalSyncer rooted at dir, creating it if
// it does not already exist.
func NewLocalSyncer(dir string) (*LocalSyncer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create local syncer dir %s: %w", dir, err)
	}
	return &LocalSyncer{
		dir:    dir,
		logger: log.New(log.Writer(), "[CheckpointSyncer:local] ", log.LstdFlags),
	}, nil
}

func (s *LocalSyncer) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *LocalSyncer) LatestIndex(ctx context.Context) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("checkpoint: read %s: %w", indexFileName, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint: parse %s: %w", indexFileName, err)
	}
	return uint32(n), true, nil
}

func (s *LocalSyncer) FetchCheckpoint(ctx context.Context, index uint32) (domain.SignedCheckpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(checkpointFileName(index)))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SignedCheckpoint{}, false, nil
		}
		return domain.SignedCheckpoint{}, false, fmt.Errorf("checkpoint: read index %d: %w", index, err)
	}
	signed, err := unmarshalSignedCheckpoint(b)
	if err != nil {
		return domain.SignedCheckpoint{}, false, err
	}
	return signed, true, nil
}

func (s *LocalSyncer) WriteCheckpoint(ctx context.Context, signed domain.SignedCheckpoint) error {
	b, err := marshalSignedCheckpoint(signed)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path(checkpointFileName(signed.Value.Index)), b, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write index %d: %w", signed.Value.Index, err)
	}
	return nil
}

func (s *LocalSyncer) WriteLatestIndex(ctx context.Context, index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := []byte(strconv.FormatUint(uint64(index), 10))
	if err := os.WriteFile(s.path(indexFileName), b, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", indexFileName, err)
	}
	return nil
}

func (s *LocalSyncer) WriteAnnouncement(ctx context.Context, signed SignedAnnouncement) error {
	b, err := marshalSignedAnnouncement(signed)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path(announcementFileName), b, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", announcementFileName, err)
	}
	return nil
}

func (s *LocalSyncer) AnnouncementLocation() string {
	abs, err := filepath.Abs(s.dir)
	if err != nil {
		abs = s.dir
	}
	return "file://" + abs
}
