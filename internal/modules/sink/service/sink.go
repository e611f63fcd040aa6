package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market_scanner/internal/models"
	"market_scanner/internal/notify"
	"market_scanner/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// ErrRecipientBlocked: сигнал сохранён, но пользователь недоступен для доставки.
var ErrRecipientBlocked = errors.New("recipient blocked")

type Sink interface {
	Emit(ctx context.Context, res models.SignalResult, userID int64, cfg models.ScanConfig) (string, error)
}

type TradeRepo interface {
	Insert(ctx context.Context, t models.Trade) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Service: сохранить сделку -> раздать в канал -> уведомить пользователя.
type Service struct {
	repo     TradeRepo
	pub      Publisher
	channel  string
	notifier notify.Notifier

	now   func() time.Time
	newID func() string
}

func New(repo TradeRepo, pub Publisher, channel string, notifier notify.Notifier) *Service {
	return &Service{
		repo:     repo,
		pub:      pub,
		channel:  channel,
		notifier: notifier,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

func (s *Service) Emit(ctx context.Context, res models.SignalResult, userID int64, cfg models.ScanConfig) (string, error) {
	trade := models.Trade{
		ID:        s.newID(),
		UserID:    userID,
		Signal:    res,
		Config:    cfg,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, trade); err != nil {
		return "", fmt.Errorf("save trade %s %s: %w", res.Symbol, res.Direction, err)
	}

	if s.pub != nil {
		if payload, err := sonic.Marshal(trade); err != nil {
			logger.Warn("[SINK] encode %s: %v", trade.ID, err)
		} else if err := s.pub.Publish(ctx, s.channel, payload); err != nil {
			logger.Warn("[SINK] publish %s: %v", trade.ID, err)
		}
	}

	if err := s.notifier.SendSignal(ctx, userID, res, trade.ID); err != nil {
		if errors.Is(err, notify.ErrBlocked) {
			return trade.ID, fmt.Errorf("%w: %v", ErrRecipientBlocked, err)
		}
		// сигнал уже найден и сохранён, доставку не повторяем
		logger.Warn("[SINK] notify user=%d trade=%s: %v", userID, trade.ID, err)
	}

	logger.Info("[SINK] %s %s q=%d user=%d trade=%s", res.Symbol, res.Direction, res.Quality, userID, trade.ID)
	return trade.ID, nil
}
