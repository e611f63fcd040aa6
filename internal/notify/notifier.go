package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"market_scanner/internal/models"
	"market_scanner/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// ErrBlocked: канал доставки отклонил чат (бот заблокирован, чат удалён).
var ErrBlocked = errors.New("recipient blocked")

type Notifier interface {
	SendSignal(ctx context.Context, chatID int64, res models.SignalResult, tradeID string) error
	SendExpiry(ctx context.Context, chatID int64, status models.AccessStatus) error
	SendService(ctx context.Context, msg string)
}

type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram: пассивный нотифайер: только исходящие сообщения.
type Telegram struct {
	bot       sender
	adminChat int64
}

func NewTelegram(token string, adminChat int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, adminChat: adminChat}, nil
}

func (t *Telegram) SendSignal(_ context.Context, chatID int64, res models.SignalResult, tradeID string) error {
	return t.send(chatID, FormatSignal(res, tradeID))
}

func (t *Telegram) SendExpiry(_ context.Context, chatID int64, status models.AccessStatus) error {
	return t.send(chatID, FormatExpiry(status))
}

func (t *Telegram) SendService(_ context.Context, msg string) {
	if t.adminChat == 0 {
		return
	}
	if err := t.send(t.adminChat, msg); err != nil {
		logger.Warn("[NOTIFY] service message: %v", err)
	}
}

func (t *Telegram) send(chatID int64, text string) error {
	_, err := t.bot.Send(tgbot.NewMessage(chatID, text))
	if err == nil {
		return nil
	}
	var tgErr *tgbot.Error
	if errors.As(err, &tgErr) && tgErr.Code == 403 {
		return fmt.Errorf("chat %d: %w: %s", chatID, ErrBlocked, tgErr.Message)
	}
	return fmt.Errorf("chat %d: %w", chatID, err)
}

// Stdout: заглушка без токена, всё пишет в лог.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) SendSignal(_ context.Context, chatID int64, res models.SignalResult, tradeID string) error {
	logger.Info("[NOTIFY] -> %d\n%s", chatID, FormatSignal(res, tradeID))
	return nil
}

func (s *Stdout) SendExpiry(_ context.Context, chatID int64, status models.AccessStatus) error {
	logger.Info("[NOTIFY] -> %d %s", chatID, FormatExpiry(status))
	return nil
}

func (s *Stdout) SendService(_ context.Context, msg string) {
	logger.Info("[NOTIFY] service: %s", msg)
}

func FormatSignal(res models.SignalResult, tradeID string) string {
	var b strings.Builder

	emoji := "🟢"
	if res.Direction == models.Short {
		emoji = "🔴"
	}
	fmt.Fprintf(&b, "%s %s %s [%s]\n", emoji, res.Direction, res.Symbol, res.Timeframe)
	fmt.Fprintf(&b, "Качество: %s (%d/5)\n", strings.Repeat("⭐", res.Quality), res.Quality)
	if res.CounterTrend {
		b.WriteString("⚠️ Контртренд\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Вход: %s\n", Price(res.Entry))
	fmt.Fprintf(&b, "Стоп: %s (%s%%)\n", Price(res.Stop), decimal.NewFromFloat(res.RiskPct).StringFixed(2))
	fmt.Fprintf(&b, "TP1: %s\nTP2: %s\nTP3: %s\n", Price(res.TP1), Price(res.TP2), Price(res.TP3))
	if res.DynamicTargets {
		b.WriteString("(цели по FVG/OB)\n")
	}

	if len(res.Reasons) > 0 {
		b.WriteString("\n")
		for _, r := range res.Reasons {
			fmt.Fprintf(&b, "• %s\n", r)
		}
	}
	fmt.Fprintf(&b, "\nRSI %s · объём x%s · %s", decimal.NewFromFloat(res.RSI).StringFixed(1),
		decimal.NewFromFloat(res.VolumeRatio).StringFixed(2), res.Variant)
	if m := res.Market; m != nil {
		sign := ""
		if m.ChangePct > 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "\n24ч: %s%s%% · оборот %s", sign, decimal.NewFromFloat(m.ChangePct).StringFixed(2), Volume(m.QuoteVolume))
	}
	if tradeID != "" {
		fmt.Fprintf(&b, "\nID: %s", tradeID)
	}
	return b.String()
}

func FormatExpiry(status models.AccessStatus) string {
	if status == models.AccessNone {
		return "⛔️ Нет активной подписки. Сканирование остановлено."
	}
	return "⏳ Подписка истекла. Сканирование остановлено, продлите доступ, чтобы продолжить."
}

// Volume: оборот в K/M/B.
func Volume(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case v >= 1e9:
		return d.Shift(-9).StringFixed(2) + "B"
	case v >= 1e6:
		return d.Shift(-6).StringFixed(2) + "M"
	case v >= 1e3:
		return d.Shift(-3).StringFixed(1) + "K"
	}
	return d.StringFixed(0)
}

// Price: точность по порядку цены.
func Price(p float64) string {
	abs := p
	if abs < 0 {
		abs = -abs
	}
	places := int32(8)
	switch {
	case abs >= 100:
		places = 2
	case abs >= 1:
		places = 4
	case abs >= 0.01:
		places = 6
	}
	return decimal.NewFromFloat(p).StringFixed(places)
}
