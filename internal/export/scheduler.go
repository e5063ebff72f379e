package export

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/licensekit/edd-export/internal/logging"
	"github.com/licensekit/edd-export/internal/session"
	"github.com/licensekit/edd-export/internal/vat"
)

// activeSessionKey is the fixed transient key holding the live token.
// At most one export run is active at a time.
const activeSessionKey = "active"

// ErrDirNotWritable reports that the export directory cannot be written.
// The export does not start; the operator sees a notice.
var ErrDirNotWritable = errors.New("export directory is not writable")

// State classifies the outcome of one trigger request.
type State int

const (
	// StateStarted: a new run was minted and its first batch scheduled.
	StateStarted State = iota

	// StateAlreadyExported: the output file exists and no run is active;
	// any stale session was cleared and nothing else happened.
	StateAlreadyExported

	// StateIgnored: the continuation token did not match the active
	// session (or there is none). Silent no-op.
	StateIgnored

	// StateBatchContinued: a full batch was processed and a successor
	// scheduled.
	StateBatchContinued

	// StateCompleted: the final, short batch was processed; the chain
	// ends and the session is left to expire.
	StateCompleted
)

// TriggerRequest is one inbound trigger, as seen by the scheduler. Offset
// and Limit arrive raw: non-numeric values fall back to defaults.
type TriggerRequest struct {
	Token  string
	Offset string
	Limit  string

	// SelfURL is the trigger endpoint as derived from the inbound
	// request; continuations are addressed to it.
	SelfURL string

	// Cookies and APIKey to forward on the continuation, so it passes
	// the same gates the originating request passed.
	Cookies []*http.Cookie
	APIKey  string
}

// TriggerResult reports what one trigger request did.
type TriggerResult struct {
	State      State
	Processed  int // records fetched by this batch, if one ran
	NextOffset int // offset of the scheduled successor, if any
}

// Options wires a Service. Every collaborator is injected so tests can
// substitute fakes for the source, the session store and the spawner.
type Options struct {
	Source   Source
	Sessions session.Store
	Spawner  Spawner
	VAT      vat.Lookup // nil when the VAT extension is absent

	Dir      string
	FileName string

	BatchSize  int
	SessionTTL time.Duration
	DebugRows  bool
}

// Service is the self-resuming scheduler: it owns the correlation token
// lifecycle and decides, per trigger, whether to begin, continue, or
// ignore an export.
type Service struct {
	source   Source
	sessions session.Store
	spawner  Spawner
	driver   *Driver

	dir       string
	path      string
	batchSize int
	ttl       time.Duration
}

// NewService builds the scheduler and its batch driver. The configured
// batch size is clamped to MaxBatchSize.
func NewService(opts Options) *Service {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	path := filepath.Join(opts.Dir, opts.FileName)
	projector := NewProjector(opts.Source, opts.VAT)

	return &Service{
		source:    opts.Source,
		sessions:  opts.Sessions,
		spawner:   opts.Spawner,
		driver:    NewDriver(opts.Source, projector, path, opts.DebugRows),
		dir:       opts.Dir,
		path:      path,
		batchSize: batchSize,
		ttl:       opts.SessionTTL,
	}
}

// FilePath returns the export artifact's path.
func (s *Service) FilePath() string {
	return s.path
}

// HandleTrigger processes one inbound trigger request. A request without a
// token asks to start a new export; a request with a token continues the
// active one.
func (s *Service) HandleTrigger(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	if req.Token == "" {
		return s.start(ctx, req)
	}
	return s.resume(ctx, req)
}

// start mints a new run, unless the output file already exists — in which
// case the file is treated as a completed (or abandoned) export, the stale
// session is cleared, and nothing is written. The file itself is never
// deleted here; removing it is an explicit operator action.
func (s *Service) start(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	logger := logging.FromContext(ctx)

	if _, err := os.Stat(s.path); err == nil {
		if err := s.sessions.Delete(ctx, activeSessionKey); err != nil {
			logger.Warn("clear stale session", "error", err)
		}
		logger.Info("export file already exists, not starting", "path", s.path)
		return TriggerResult{State: StateAlreadyExported}, nil
	}

	if err := s.ensureWritable(); err != nil {
		return TriggerResult{}, err
	}

	token := mintToken()
	if err := s.sessions.Set(ctx, activeSessionKey, token, s.ttl); err != nil {
		return TriggerResult{}, fmt.Errorf("store session token: %w", err)
	}

	s.spawner.Spawn(Continuation{
		BaseURL: req.SelfURL,
		Token:   token,
		Offset:  0,
		Limit:   s.batchSize,
		Cookies: req.Cookies,
		APIKey:  req.APIKey,
	})

	logger.Info("export started", "path", s.path, "batch_size", s.batchSize)
	return TriggerResult{State: StateStarted}, nil
}

// resume validates the continuation against the active session and runs
// one batch. Mismatches are silent: a stale retry, an expired session and
// a forged request all look the same and all do nothing.
func (s *Service) resume(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	logger := logging.FromContext(ctx)

	stored, err := s.sessions.Get(ctx, activeSessionKey)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			logger.Warn("session lookup failed, ignoring continuation", "error", err)
		}
		return TriggerResult{State: StateIgnored}, nil
	}
	if stored != req.Token {
		logger.Debug("continuation token mismatch, ignoring")
		return TriggerResult{State: StateIgnored}, nil
	}

	offset := parseOffset(req.Offset)
	limit := parseLimit(req.Limit)

	processed, err := s.driver.RunBatch(ctx, offset, limit)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("batch at offset %d: %w", offset, err)
	}

	if processed == limit {
		next := offset + limit
		s.spawner.Spawn(Continuation{
			BaseURL: req.SelfURL,
			Token:   req.Token,
			Offset:  next,
			Limit:   limit,
			Cookies: req.Cookies,
			APIKey:  req.APIKey,
		})
		return TriggerResult{State: StateBatchContinued, Processed: processed, NextOffset: next}, nil
	}

	// Short page: data exhausted. No successor, no cleanup signal — the
	// session transient expires on its own.
	logger.Info("export complete", "final_offset", offset, "final_count", processed)
	return TriggerResult{State: StateCompleted, Processed: processed}, nil
}

// StatusInfo is the operator-facing view of the export artifact.
type StatusInfo struct {
	FileExists    bool      `json:"file_exists"`
	FileSize      int64     `json:"file_size,omitempty"`
	ModifiedAt    time.Time `json:"modified_at,omitzero"`
	SessionActive bool      `json:"session_active"`
}

// Status reports the artifact and session state.
func (s *Service) Status(ctx context.Context) StatusInfo {
	var info StatusInfo
	if fi, err := os.Stat(s.path); err == nil {
		info.FileExists = true
		info.FileSize = fi.Size()
		info.ModifiedAt = fi.ModTime()
	}
	if _, err := s.sessions.Get(ctx, activeSessionKey); err == nil {
		info.SessionActive = true
	}
	return info
}

// ensureWritable verifies the export directory accepts writes before a run
// is minted. The probe must not create the export file itself, or it would
// trip the already-exported guard.
func (s *Service) ensureWritable() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDirNotWritable, err)
	}
	probe, err := os.CreateTemp(s.dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirNotWritable, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// mintToken derives an unguessable correlation token from random bytes and
// the current timestamp.
func mintToken() string {
	var buf [40]byte
	rand.Read(buf[:32])
	binary.BigEndian.PutUint64(buf[32:], uint64(time.Now().UnixNano()))
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

// parseOffset takes a numeric offset at face value (floored at zero) and
// falls back to 0 otherwise.
func parseOffset(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// parseLimit takes a positive numeric limit capped at MaxBatchSize and
// falls back to the default otherwise.
func parseLimit(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return DefaultBatchSize
	}
	if v > MaxBatchSize {
		return MaxBatchSize
	}
	return v
}
