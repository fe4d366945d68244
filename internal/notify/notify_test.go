package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sebdah/goldie/v2"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/engine"
)

func report() ImportReport {
	return ImportReport{
		JobID:        "job-1",
		JobType:      "SaveCloverData",
		RestaurantID: "r1",
		UserID:       "u1",
		Summary: engine.Summary{
			RestaurantID: "r1",
			Rows:         3,
			Tally: engine.Tally{
				catalog.KindItem:     {Created: 2, Updated: 1},
				catalog.KindCategory: {Created: 1, Updated: 1},
				catalog.KindModifier: {Created: 4},
			},
		},
	}
}

func TestFormatImportSummary(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "import_summary", []byte(FormatImportSummary(report())))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramSender(t *testing.T) {
	bot := &fakeBot{}
	s := NewTelegramSender(bot, 42)

	if err := s.ImportCompleted(context.Background(), report()); err != nil {
		t.Fatalf("ImportCompleted() error = %v", err)
	}
	if err := s.JobFailed(context.Background(), FailureReport{JobID: "job-2", JobType: "SaveCsvData", RestaurantID: "r1", Err: errors.New("boom")}); err != nil {
		t.Fatalf("JobFailed() error = %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(bot.sent))
	}

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", bot.sent[0])
	}
	if msg.ChatID != 42 || msg.Text != FormatImportSummary(report()) {
		t.Errorf("message = %d %q", msg.ChatID, msg.Text)
	}
	if got := bot.sent[1].(tgbotapi.MessageConfig).Text; got != "Job job-2 (SaveCsvData) for restaurant r1 failed: boom\n" {
		t.Errorf("failure text = %q", got)
	}
}

func TestTelegramSenderError(t *testing.T) {
	s := NewTelegramSender(&fakeBot{err: errors.New("chat not found")}, 42)
	err := s.ImportCompleted(context.Background(), report())
	if !errors.Is(err, catalog.ErrExternalService) {
		t.Errorf("error = %v, want external service error", err)
	}
}

type countingSender struct {
	completed, failed int
	err               error
}

func (c *countingSender) ImportCompleted(context.Context, ImportReport) error {
	c.completed++
	return c.err
}

func (c *countingSender) JobFailed(context.Context, FailureReport) error {
	c.failed++
	return c.err
}

func TestMulti(t *testing.T) {
	a, b := &countingSender{}, &countingSender{err: errors.New("down")}
	m := Multi{a, LogSender{}, b}

	if err := m.ImportCompleted(context.Background(), report()); err == nil {
		t.Error("ImportCompleted() error = nil, want the failing sender's error")
	}
	if err := m.JobFailed(context.Background(), FailureReport{Err: errors.New("x")}); err == nil {
		t.Error("JobFailed() error = nil")
	}
	if a.completed != 1 || b.completed != 1 || a.failed != 1 || b.failed != 1 {
		t.Errorf("senders called %d/%d and %d/%d times", a.completed, a.failed, b.completed, b.failed)
	}
}
