// bot/bot.go
package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/devzayn/otpbazaar_backend/models"
	"github.com/devzayn/otpbazaar_backend/repositories"
	"github.com/devzayn/otpbazaar_backend/services"
	"github.com/devzayn/otpbazaar_backend/utils"
)

// Conversation steps
const (
	stepNone            = "none"
	stepAwaitingCountry = "awaiting_country"
	stepAwaitingNumbers = "awaiting_numbers"
	stepConfirm         = "confirm"
)

// conversation is the per-admin state of the /bulk setup dialog. Once the
// job starts, all state lives in the bulk service and the conversation
// resets to none.
type conversation struct {
	step    string
	country string
	numbers []string
	invalid []string
}

// Bot is the Telegram control surface for bulk provisioning. Only admins
// listed in BOT_ADMIN_IDS or registered in the admins collection may use it.
type Bot struct {
	tb          *tele.Bot
	bulk        *services.BulkService
	adminRepo   *repositories.AdminRepository
	countryRepo *repositories.CountryRepository
	accountRepo *repositories.AccountRepository
	logger      *log.Logger

	adminIDs map[int64]bool

	mu    sync.Mutex
	convs map[int64]*conversation

	// last (index, state) notified per admin, to avoid repeating prompts
	notified map[int64]string
}

// New creates and configures the bot. Returns nil without error when
// BOT_TOKEN is unset so the backend can run HTTP-only.
func New(bulk *services.BulkService, adminRepo *repositories.AdminRepository, countryRepo *repositories.CountryRepository, accountRepo *repositories.AccountRepository) (*Bot, error) {
	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Println("BOT_TOKEN not set, Telegram bot disabled")
		return nil, nil
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Printf("[BOT] telebot error: %v", err)
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	adminIDs := make(map[int64]bool)
	for _, part := range strings.Split(os.Getenv("BOT_ADMIN_IDS"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			adminIDs[id] = true
		}
	}

	b := &Bot{
		tb:          tb,
		bulk:        bulk,
		adminRepo:   adminRepo,
		countryRepo: countryRepo,
		accountRepo: accountRepo,
		logger:      log.New(os.Stdout, "[BOT] ", log.LstdFlags),
		adminIDs:    adminIDs,
		convs:       make(map[int64]*conversation),
		notified:    make(map[int64]string),
	}

	b.registerHandlers()

	return b, nil
}

// Start begins long polling. Blocks; call from its own goroutine.
func (b *Bot) Start() {
	b.logger.Println("Telegram bot started")
	b.tb.Start()
}

// Stop shuts the poller down
func (b *Bot) Stop() {
	b.tb.Stop()
}

// registerHandlers sets up all bot message and callback handlers
func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.requireAdmin(b.handleStart))
	b.tb.Handle("/bulk", b.requireAdmin(b.handleBulk))
	b.tb.Handle("/stock", b.requireAdmin(b.handleStock))
	b.tb.Handle("/status", b.requireAdmin(b.handleStatus))
	b.tb.Handle("/cancel", b.requireAdmin(b.handleCancel))
	b.tb.Handle(tele.OnText, b.requireAdmin(b.handleText))
	b.tb.Handle(tele.OnCallback, b.requireAdmin(b.handleCallback))
}

// requireAdmin drops updates from anyone who is not a registered admin
func (b *Bot) requireAdmin(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !b.isAdmin(c.Sender().ID) {
			return nil
		}
		return next(c)
	}
}

func (b *Bot) isAdmin(telegramID int64) bool {
	if b.adminIDs[telegramID] {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := b.adminRepo.GetAdminByTelegramID(ctx, telegramID)
	return err == nil
}

func (b *Bot) conv(telegramID int64) *conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	conv, ok := b.convs[telegramID]
	if !ok {
		conv = &conversation{step: stepNone}
		b.convs[telegramID] = conv
	}
	return conv
}

func (b *Bot) resetConv(telegramID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.convs, telegramID)
}

// ── Commands ──────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	b.resetConv(c.Sender().ID)
	return c.Send("Welcome.\n\n" +
		"/bulk - start a bulk provisioning job\n" +
		"/stock - show available accounts per country\n" +
		"/status - show the current job\n" +
		"/cancel - cancel the current job")
}

func (b *Bot) handleBulk(c tele.Context) error {
	owner := c.Sender().ID

	if _, err := b.bulk.Job(owner); err == nil {
		return c.Send("You already have a bulk job in progress. Use /status or /cancel first.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	countries, err := b.countryRepo.GetActiveCountries(ctx)
	if err != nil {
		b.logger.Printf("Country list failed: %v", err)
		return c.Send("Failed to load the country list, try again.")
	}
	if len(countries) == 0 {
		return c.Send("No active countries in the catalog. Add one first.")
	}

	conv := b.conv(owner)
	conv.step = stepAwaitingCountry

	kb := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, country := range countries {
		rows = append(rows, tele.Row{kb.Data(country.Name, "country", country.Name)})
	}
	kb.Inline(rows...)

	return c.Send("Select the country for this batch:", kb)
}

func (b *Bot) handleStock(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stock, err := b.accountRepo.StockByCountry(ctx)
	if err != nil {
		b.logger.Printf("Stock query failed: %v", err)
		return c.Send("Failed to load stock, try again.")
	}
	if len(stock) == 0 {
		return c.Send("No accounts in stock.")
	}

	var sb strings.Builder
	sb.WriteString("Available accounts:\n")
	for country, count := range stock {
		fmt.Fprintf(&sb, "  %s: %d\n", country, count)
	}
	return c.Send(sb.String())
}

func (b *Bot) handleStatus(c tele.Context) error {
	owner := c.Sender().ID
	snap, err := b.bulk.Progress(owner)
	if err != nil {
		return c.Send("No bulk job in progress.")
	}
	return c.Send(renderProgress(snap), b.controlKeyboard(snap.Running))
}

func (b *Bot) handleCancel(c tele.Context) error {
	owner := c.Sender().ID
	b.resetConv(owner)

	if err := b.bulk.Cancel(owner); err != nil {
		return c.Send("Nothing to cancel.")
	}
	return c.Send("Bulk job cancelled.")
}

// ── Conversation flow ─────────────────────────────────────────────────

func (b *Bot) handleText(c tele.Context) error {
	owner := c.Sender().ID
	text := c.Text()

	conv := b.conv(owner)
	switch conv.step {
	case stepAwaitingNumbers:
		return b.collectNumbers(c, conv, text)
	case stepConfirm:
		return c.Send("Confirm or abort the pending job with the buttons above.")
	}

	// No setup dialog running: treat text as input for the active job
	err := b.bulk.SubmitInput(owner, text)
	switch err {
	case nil:
		return nil
	case services.ErrNoJob:
		return c.Send("No bulk job in progress. Use /bulk to start one.")
	case services.ErrBadCodeFormat:
		return c.Send("The code must be exactly 5 digits. Try again, or send 'skip'.")
	case services.ErrEmptyPassword:
		return c.Send("The password cannot be empty. Try again, or send 'skip'.")
	case services.ErrNoInput:
		return c.Send("Not waiting for input right now.")
	case services.ErrBusy:
		return c.Send("Still checking the previous input, one moment.")
	default:
		b.logger.Printf("SubmitInput failed: owner=%d err=%v", owner, err)
		return c.Send("Something went wrong, try again.")
	}
}

func (b *Bot) collectNumbers(c tele.Context, conv *conversation, text string) error {
	owner := c.Sender().ID

	valid, invalid := utils.ParsePhoneText(text)
	if len(valid) == 0 {
		return c.Send("None of those numbers are valid. Use international format (+1234567890), one per line.")
	}

	conv.numbers = strings.Split(text, "\n")
	conv.invalid = invalid
	conv.step = stepConfirm

	kb := &tele.ReplyMarkup{}
	kb.Inline(tele.Row{
		kb.Data("✅ Start", "bulk_confirm"),
		kb.Data("❌ Abort", "bulk_abort"),
	})

	msg := fmt.Sprintf("Country: %s\nValid numbers: %d", conv.country, len(valid))
	if len(invalid) > 0 {
		msg += fmt.Sprintf("\nDropped (bad format): %d\n%s", len(invalid), strings.Join(invalid, "\n"))
	}
	msg += fmt.Sprintf("\n\nStart provisioning %d numbers?", len(valid))

	b.logger.Printf("Bulk setup: owner=%d country=%s valid=%d invalid=%d",
		owner, conv.country, len(valid), len(invalid))
	return c.Send(msg, kb)
}

func (b *Bot) handleCallback(c tele.Context) error {
	owner := c.Sender().ID
	data := strings.TrimSpace(c.Callback().Data)

	_ = c.Respond()

	// telebot packs unique+payload as "\funique|payload"
	data = strings.TrimPrefix(data, "\f")
	unique, payload := data, ""
	if idx := strings.IndexByte(data, '|'); idx >= 0 {
		unique, payload = data[:idx], data[idx+1:]
	}

	switch unique {
	case "country":
		return b.selectCountry(c, payload)
	case "bulk_confirm":
		return b.confirmJob(c)
	case "bulk_abort":
		b.resetConv(owner)
		return c.Send("Bulk setup aborted.")
	case "bulk_pause":
		if err := b.bulk.Pause(owner); err != nil {
			return c.Send("No bulk job in progress.")
		}
		return c.Send("Paused. The current number still accepts input.")
	case "bulk_resume":
		go func() {
			if err := b.bulk.Resume(owner); err != nil {
				b.logger.Printf("Resume failed: owner=%d err=%v", owner, err)
			}
		}()
		return c.Send("Resumed.")
	case "bulk_skip":
		err := b.bulk.SkipCurrent(owner)
		switch err {
		case nil:
			return nil
		case services.ErrBusy:
			return c.Send("Still checking the previous input, one moment.")
		default:
			return c.Send("Nothing to skip.")
		}
	case "bulk_cancel":
		b.resetConv(owner)
		if err := b.bulk.Cancel(owner); err != nil {
			return c.Send("Nothing to cancel.")
		}
		return c.Send("Bulk job cancelled.")
	}

	return nil
}

func (b *Bot) selectCountry(c tele.Context, name string) error {
	owner := c.Sender().ID

	conv := b.conv(owner)
	if conv.step != stepAwaitingCountry {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.countryRepo.GetCountryByName(ctx, name); err != nil {
		return c.Send("Unknown country, pick one from the list.")
	}

	conv.country = name
	conv.step = stepAwaitingNumbers

	return c.Send(fmt.Sprintf(
		"Country set to %s.\n\nNow paste the phone numbers, one per line, international format (+1234567890). Up to %d numbers.",
		name, utils.MaxBulkNumbers))
}

func (b *Bot) confirmJob(c tele.Context) error {
	owner := c.Sender().ID

	conv := b.conv(owner)
	if conv.step != stepConfirm {
		return nil
	}

	_, _, err := b.bulk.CreateJob(owner, conv.country, conv.numbers)
	b.resetConv(owner)
	if err != nil {
		switch err {
		case services.ErrJobExists:
			return c.Send("You already have a bulk job in progress.")
		case services.ErrNoValidNumbers:
			return c.Send("No valid numbers left to process.")
		default:
			b.logger.Printf("CreateJob failed: owner=%d err=%v", owner, err)
			return c.Send("Failed to create the job, try again.")
		}
	}

	go func() {
		if err := b.bulk.Start(owner); err != nil {
			b.logger.Printf("Start failed: owner=%d err=%v", owner, err)
		}
	}()

	return c.Send("Job started. I will prompt you for each code.")
}

// ── Rendering ─────────────────────────────────────────────────────────

func (b *Bot) controlKeyboard(running bool) *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{}
	var toggle tele.Btn
	if running {
		toggle = kb.Data("⏸ Pause", "bulk_pause")
	} else {
		toggle = kb.Data("▶️ Resume", "bulk_resume")
	}
	kb.Inline(
		tele.Row{toggle, kb.Data("⏭ Skip", "bulk_skip")},
		tele.Row{kb.Data("🛑 Cancel", "bulk_cancel")},
	)
	return kb
}

func renderProgress(snap models.ProgressSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Progress: %d/%d\n", snap.CurrentIndex, snap.Total)
	fmt.Fprintf(&sb, "Verified: %d | Failed: %d\n", snap.SuccessCount, snap.FailureCount)
	if snap.CurrentPhone != "" {
		fmt.Fprintf(&sb, "Current: %s (%s)\n", snap.CurrentPhone, snap.CurrentState)
	}
	if !snap.Running {
		sb.WriteString("Paused.")
	}
	return sb.String()
}

func renderSummary(summary models.BulkSummary) string {
	var sb strings.Builder
	sb.WriteString("Bulk job finished.\n\n")
	fmt.Fprintf(&sb, "Country: %s\n", summary.Country)
	fmt.Fprintf(&sb, "Total: %d\n", summary.Total)
	fmt.Fprintf(&sb, "Verified: %d\n", summary.SuccessCount)
	fmt.Fprintf(&sb, "Failed: %d\n", summary.FailureCount)
	if len(summary.FailedList) > 0 {
		sb.WriteString("\nFailed numbers:\n")
		for _, failed := range summary.FailedList {
			fmt.Fprintf(&sb, "  %s - %s\n", failed.Phone, failed.Reason)
		}
	}
	return sb.String()
}
