package games

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrGameNotFound indicates the identifier does not name an entry owned by the caller.
	ErrGameNotFound = errors.New("games: game not found")
)

// ServiceError attaches a stable operation code to an underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code for logging and HTTP mapping.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "games.service.new"
	opList          = "games.list"
	opCount         = "games.count"
	opCreate        = "games.create"
	opUpdate        = "games.update"
	opAdvanceStatus = "games.advance_status"
	opDelete        = "games.delete"
	opInsertBatch   = "games.insert_batch"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies required by the games service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues server-assigned entry identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service persists the per-owner remote collection.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the games service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns every entry owned by the caller, newest first.
func (s *Service) List(ctx context.Context, owner OwnerID) ([]Game, error) {
	var rows []Game
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", owner.String()).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("owner_id", owner.String()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return rows, nil
}

// Count returns the size of the caller's collection.
func (s *Service) Count(ctx context.Context, owner OwnerID) (int, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&Game{}).
		Where("owner_id = ?", owner.String()).
		Count(&total).Error; err != nil {
		s.logError(opCount, "query_failed", err, zap.String("owner_id", owner.String()))
		return 0, newServiceError(opCount, "query_failed", err)
	}
	return int(total), nil
}

// Create inserts a single entry with a server-assigned identifier and
// creation timestamp.
func (s *Service) Create(ctx context.Context, owner OwnerID, payload NewGame) (Game, error) {
	if err := payload.Validate(); err != nil {
		return Game{}, newServiceError(opCreate, "invalid_payload", err)
	}

	row, err := s.newRow(owner, payload)
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("owner_id", owner.String()))
		return Game{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("owner_id", owner.String()))
		return Game{}, newServiceError(opCreate, "insert_failed", err)
	}
	return row, nil
}

// Update applies an owner-initiated partial field edit.
func (s *Service) Update(ctx context.Context, owner OwnerID, id GameID, edits FieldEdits) (Game, error) {
	updates := map[string]interface{}{}
	if edits.Name != nil {
		name, err := normalizedName(*edits.Name)
		if err != nil {
			return Game{}, newServiceError(opUpdate, "invalid_name", err)
		}
		updates["name"] = name
	}
	if edits.Platform != nil {
		updates["platform"] = NormalizePlatform(*edits.Platform)
	}
	if edits.ImageURL != nil {
		updates["image_url"] = *edits.ImageURL
	}
	if edits.Status != nil {
		status := *edits.Status
		if !status.Valid() {
			status = StatusPending
		}
		updates["status"] = status
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).
			Model(&Game{}).
			Where("owner_id = ? AND id = ?", owner.String(), id.String()).
			Updates(updates)
		if result.Error != nil {
			s.logError(opUpdate, "update_failed", result.Error,
				zap.String("owner_id", owner.String()),
				zap.String("game_id", id.String()))
			return Game{}, newServiceError(opUpdate, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return Game{}, newServiceError(opUpdate, "not_found", ErrGameNotFound)
		}
	}

	return s.fetch(ctx, owner, id, opUpdate)
}

// AdvanceStatus moves the entry to the next status in the
// pending → playing → completed cycle.
func (s *Service) AdvanceStatus(ctx context.Context, owner OwnerID, id GameID) (Game, error) {
	current, err := s.fetch(ctx, owner, id, opAdvanceStatus)
	if err != nil {
		return Game{}, err
	}

	next := current.Status.Next()
	if err := s.db.WithContext(ctx).
		Model(&Game{}).
		Where("owner_id = ? AND id = ?", owner.String(), id.String()).
		Update("status", next).Error; err != nil {
		s.logError(opAdvanceStatus, "update_failed", err,
			zap.String("owner_id", owner.String()),
			zap.String("game_id", id.String()))
		return Game{}, newServiceError(opAdvanceStatus, "update_failed", err)
	}

	current.Status = next
	return current, nil
}

// Delete removes the entry owned by the caller.
func (s *Service) Delete(ctx context.Context, owner OwnerID, id GameID) error {
	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", owner.String(), id.String()).
		Delete(&Game{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error,
			zap.String("owner_id", owner.String()),
			zap.String("game_id", id.String()))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, "not_found", ErrGameNotFound)
	}
	return nil
}

// InsertBatch persists one migration batch in a single transaction, so a
// batch either fully succeeds or fully fails. Returned rows carry the
// server-assigned identifiers and timestamps in submission order.
func (s *Service) InsertBatch(ctx context.Context, owner OwnerID, payloads []NewGame) ([]Game, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	rows := make([]Game, 0, len(payloads))
	for _, payload := range payloads {
		if err := payload.Validate(); err != nil {
			return nil, newServiceError(opInsertBatch, "invalid_payload", err)
		}
		row, err := s.newRow(owner, payload)
		if err != nil {
			s.logError(opInsertBatch, "id_generation_failed", err, zap.String("owner_id", owner.String()))
			return nil, newServiceError(opInsertBatch, "id_generation_failed", err)
		}
		rows = append(rows, row)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if txErr != nil {
		s.logError(opInsertBatch, "insert_failed", txErr,
			zap.String("owner_id", owner.String()),
			zap.Int("batch_size", len(rows)))
		return nil, newServiceError(opInsertBatch, "insert_failed", txErr)
	}
	return rows, nil
}

func (s *Service) newRow(owner OwnerID, payload NewGame) (Game, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		return Game{}, err
	}
	return Game{
		ID:        id,
		OwnerID:   owner.String(),
		Name:      strings.TrimSpace(payload.Name),
		Platform:  NormalizePlatform(payload.Platform),
		ImageURL:  payload.ImageURL,
		Status:    payload.Status,
		CreatedAt: s.clock().UTC(),
	}, nil
}

func (s *Service) fetch(ctx context.Context, owner OwnerID, id GameID, operation string) (Game, error) {
	var row Game
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", owner.String(), id.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Game{}, newServiceError(operation, "not_found", ErrGameNotFound)
	}
	if err != nil {
		s.logError(operation, "query_failed", err,
			zap.String("owner_id", owner.String()),
			zap.String("game_id", id.String()))
		return Game{}, newServiceError(operation, "query_failed", err)
	}
	return row, nil
}

func normalizedName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	return trimmed, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("games service error", attrs...)
}
