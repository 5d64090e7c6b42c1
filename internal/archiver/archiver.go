package archiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"skillbadge/internal/domain"
	"skillbadge/internal/ledger"
	"skillbadge/internal/repository"
	"skillbadge/internal/storage"
)

// Manager uploads a JSON certificate for every issued badge and records where it lives.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, id domain.BadgeID) error
	Resume(ctx context.Context) error
}

type Config struct {
	Bucket        string
	Prefix        string
	MaxConcurrent int
	Logger        *logrus.Logger
	Now           func() time.Time
}

// Certificate is the archived document for a single badge.
type Certificate struct {
	Badge      ledger.BadgeJSON `json:"badge"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

type manager struct {
	cfg     Config
	badges  repository.BadgeRepository
	storage storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[domain.BadgeID]struct{}
}

func NewManager(cfg Config, badges repository.BadgeRepository, store storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &manager{
		cfg:     cfg,
		badges:  badges,
		storage: store,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[domain.BadgeID]struct{}),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if strings.TrimSpace(m.cfg.Bucket) == "" {
		return fmt.Errorf("archive bucket is required")
	}
	// Only Shutdown stops the workers; the caller's cancellation is not inherited.
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.cfg.Logger.Infof("certificate archiver started, bucket: %s", m.cfg.Bucket)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("certificate archiver stopped")
}

func (m *manager) Enqueue(ctx context.Context, id domain.BadgeID) error {
	if m.ctx == nil {
		return fmt.Errorf("archiver not started")
	}
	badge, err := m.badges.Get(ctx, id)
	if err != nil {
		return err
	}
	m.spawn(*badge)
	return nil
}

// Resume queues every badge that has no certificate yet.
func (m *manager) Resume(ctx context.Context) error {
	if m.ctx == nil {
		return fmt.Errorf("archiver not started")
	}
	badges, err := m.badges.ListUnarchived(ctx)
	if err != nil {
		return err
	}
	for i := range badges {
		m.spawn(badges[i])
	}
	return nil
}

func (m *manager) spawn(badge domain.SkillBadge) {
	if !m.register(badge.ID) {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.unregister(badge.ID)
		select {
		case <-m.ctx.Done():
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.archive(m.ctx, badge)
		}
	}()
}

func (m *manager) register(id domain.BadgeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[id]; busy {
		return false
	}
	m.active[id] = struct{}{}
	return true
}

func (m *manager) unregister(id domain.BadgeID) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *manager) archive(ctx context.Context, badge domain.SkillBadge) {
	logger := m.cfg.Logger.WithField("badge_id", badge.ID)

	body, err := json.MarshalIndent(Certificate{
		Badge:      ledger.BadgeToJSON(badge),
		ArchivedAt: m.cfg.Now().UTC(),
	}, "", "  ")
	if err != nil {
		logger.Errorf("encode certificate: %v", err)
		return
	}

	key := CertificateKey(m.cfg.Prefix, badge.ID)
	location, err := m.storage.PutObject(ctx, m.cfg.Bucket, key, bytes.NewReader(body), "application/json")
	if err != nil {
		logger.Errorf("upload certificate: %v", err)
		return
	}
	if err := m.badges.SetCertificateLocation(ctx, badge.ID, location); err != nil {
		logger.Errorf("record certificate location: %v", err)
		return
	}
	logger.Infof("certificate archived at %s", location)
}

// CertificateKey returns the object key for a badge certificate.
func CertificateKey(prefix string, id domain.BadgeID) string {
	return path.Join(strings.Trim(prefix, "/"), "badges", id.String()+".json")
}
