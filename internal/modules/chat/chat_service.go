package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crowdship/internal/models"

	"github.com/google/uuid"
)

const messageLimit = 500

type ServiceInterface interface {
	SendMessage(ctx context.Context, senderID string, req *models.SendMessageRequest) (*models.Message, error)
	ListMessages(ctx context.Context, deliveryID, userID string, page, limit int) ([]models.Message, error)
}

type Service struct {
	repo  RepositoryInterface
	clock func() time.Time
}

func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// chatOpen reports whether the delivery is in a state where the parties may
// talk: from match through delivery, so post-handover questions still work.
// A disputed delivery belongs to the admin; direct messaging closes with it.
func chatOpen(status models.DeliveryStatus) bool {
	switch status {
	case models.StatusMatched, models.StatusPickedUp, models.StatusDelivered:
		return true
	}
	return false
}

func (s *Service) guard(ctx context.Context, deliveryID, userID string) error {
	ref, err := s.repo.GetDeliveryRef(ctx, deliveryID)
	if err != nil {
		return err
	}
	isParty := ref.SenderID == userID || (ref.CarrierID != nil && *ref.CarrierID == userID)
	if !isParty {
		return models.ErrForbidden
	}
	if !chatOpen(ref.Status) {
		return fmt.Errorf("%w: chat is closed while delivery is %s", models.ErrStateConflict, ref.Status)
	}
	return nil
}

func (s *Service) SendMessage(ctx context.Context, senderID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := s.guard(ctx, req.DeliveryID, senderID); err != nil {
		return nil, err
	}

	m := &models.Message{
		ID:         "msg_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		DeliveryID: req.DeliveryID,
		SenderID:   senderID,
		Content:    req.Content,
		CreatedAt:  s.clock(),
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("service.SendMessage: %w", err)
	}
	return m, nil
}

func (s *Service) ListMessages(ctx context.Context, deliveryID, userID string, page, limit int) ([]models.Message, error) {
	if err := s.guard(ctx, deliveryID, userID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > messageLimit {
		limit = messageLimit
	}
	if page < 1 {
		page = 1
	}
	return s.repo.ListMessages(ctx, deliveryID, limit, (page-1)*limit)
}
