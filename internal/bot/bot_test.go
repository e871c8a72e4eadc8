package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/bot/keyboard"
	"github.com/Proton-105/alina-bot/internal/chat"
	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/i18n"
	"github.com/Proton-105/alina-bot/internal/idempotency"
	"github.com/Proton-105/alina-bot/internal/middleware"
	"github.com/Proton-105/alina-bot/internal/payment"
	"github.com/Proton-105/alina-bot/internal/ratelimit"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/internal/scheduler"
	"github.com/Proton-105/alina-bot/internal/state"
	"github.com/Proton-105/alina-bot/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeAPI stands in for the Telegram Bot API and records every call.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

type apiCall struct {
	Method string
	Params map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: path.Base(r.URL.Path), Params: params})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":100,"date":0,"chat":{"id":1,"type":"private"}}}`)
}

func (f *fakeAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) sentTexts() []string {
	var out []string
	for _, c := range f.byMethod("sendMessage") {
		text, _ := c.Params["text"].(string)
		out = append(out, text)
	}
	return out
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeUsers struct {
	mu     sync.Mutex
	users  map[int64]*domain.User
	active []int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]*domain.User)}
}

func (f *fakeUsers) GetOrCreate(_ context.Context, tu *telebot.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[tu.ID]; ok {
		return u, nil
	}
	u := &domain.User{ID: tu.ID, FirstName: tu.FirstName, FreeLeft: 10, CreatedAt: testNow}
	f.users[tu.ID] = u
	return u, nil
}

func (f *fakeUsers) SetTimezone(_ context.Context, userID int64, tz string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.TZ = tz
	}
	return nil
}

func (f *fakeUsers) UpdateLastActive(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, userID)
	return nil
}

func (f *fakeUsers) put(u *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUsers) tz(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return u.TZ
	}
	return ""
}

func (f *fakeUsers) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

type fakeConversation struct {
	mu      sync.Mutex
	outcome *chat.Outcome
	err     error
	inbound []string
	moods   map[string]string
}

func (f *fakeConversation) Reply(_ context.Context, in chat.Inbound) (*chat.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, in.Text)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &chat.Outcome{Kind: chat.OutcomeReply, Text: "я тут)"}, nil
}

func (f *fakeConversation) ApplyProfilePhrase(_ context.Context, _ int64, text string) (chat.ProfilePhrase, error) {
	if !chat.HasProfileTrigger(text) {
		return chat.ProfilePhrase{}, nil
	}
	return chat.ParseProfilePhrase(text), nil
}

func (f *fakeConversation) MoodExchange(_ context.Context, _ int64, label string) (string, bool, error) {
	answer, ok := f.moods[label]
	return answer, ok, nil
}

func (f *fakeConversation) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inbound)
}

type mockReminders struct {
	mock.Mock
}

func (m *mockReminders) Add(ctx context.Context, userID int64, tz string, rtype domain.ReminderType, timeLocal string) (*domain.Reminder, error) {
	args := m.Called(ctx, userID, tz, rtype, timeLocal)
	r, _ := args.Get(0).(*domain.Reminder)
	return r, args.Error(1)
}

func (m *mockReminders) Toggle(ctx context.Context, userID int64, tz string, reminderID int64) (*domain.Reminder, error) {
	args := m.Called(ctx, userID, tz, reminderID)
	r, _ := args.Get(0).(*domain.Reminder)
	return r, args.Error(1)
}

func (m *mockReminders) Delete(ctx context.Context, userID, reminderID int64) error {
	return m.Called(ctx, userID, reminderID).Error(0)
}

func (m *mockReminders) Entries(ctx context.Context, userID int64) ([]scheduler.Entry, error) {
	args := m.Called(ctx, userID)
	entries, _ := args.Get(0).([]scheduler.Entry)
	return entries, args.Error(1)
}

func (m *mockReminders) RescheduleUser(ctx context.Context, userID int64, tz string) error {
	return m.Called(ctx, userID, tz).Error(0)
}

func (m *mockReminders) Once(userID int64, at time.Time, text string) error {
	return m.Called(userID, at, text).Error(0)
}

type mockStars struct {
	mock.Mock
}

func (m *mockStars) Invoice(ctx context.Context, userID int64, planID payment.PlanID) (*telebot.Invoice, error) {
	args := m.Called(ctx, userID, planID)
	inv, _ := args.Get(0).(*telebot.Invoice)
	return inv, args.Error(1)
}

func (m *mockStars) PreCheckout(ctx context.Context, userID int64, payload, currency string, total int) error {
	return m.Called(ctx, userID, payload, currency, total).Error(0)
}

func (m *mockStars) Complete(ctx context.Context, userID int64, payload, chargeID string) (*payment.Activation, error) {
	args := m.Called(ctx, userID, payload, chargeID)
	act, _ := args.Get(0).(*payment.Activation)
	return act, args.Error(1)
}

type fakeCard struct {
	enabled bool
	url     string
}

func (f fakeCard) Enabled() bool { return f.enabled }

func (f fakeCard) StartURL(context.Context, int64) (string, error) { return f.url, nil }

type harness struct {
	api       *fakeAPI
	tb        *telebot.Bot
	users     *fakeUsers
	chat      *fakeConversation
	reminders *mockReminders
	stars     *mockStars
	fsm       state.StateMachine
	redis     *redis.Client
	texts     i18n.Translator
}

func newHarness(t *testing.T, configure ...func(*harness, *Deps)) *harness {
	t.Helper()
	log := testLogger()

	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tb, err := telebot.NewBot(telebot.Settings{Token: "test-token", URL: srv.URL, Offline: true, Synchronous: true})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog, err := i18n.Load("", "ru")
	require.NoError(t, err)
	texts := catalog.Translator("ru")

	h := &harness{
		api:       api,
		tb:        tb,
		users:     newFakeUsers(),
		chat:      &fakeConversation{moods: map[string]string{"грустно": "я рядом 💛"}},
		reminders: &mockReminders{},
		stars:     &mockStars{},
		fsm:       state.NewStateMachine(state.NewRedisStorage(client, log, time.Hour), log, client),
		redis:     client,
		texts:     texts,
	}

	deps := Deps{
		Handlers: handlers.Deps{
			Users:     h.users,
			Chat:      h.chat,
			Reminders: h.reminders,
			Stars:     h.stars,
			Card:      fakeCard{},
			Plans: payment.PlansFromConfig(config.SubscriptionConfig{
				StarsDayAmount: 200, StarsWeekAmount: 600, StarsMonthAmount: 1200,
				DayDays: 1, WeekDays: 7, MonthDays: 30,
			}),
			FSM:       h.fsm,
			Keyboards: keyboard.NewBuilder(texts),
			Texts:     texts,
			Debug:     config.DebugConfig{UserIDs: []int64{99}},
			Now:       func() time.Time { return testNow },
			Log:       log,
		},
		Users:  h.users,
		Errors: apperrors.NewHandler(log, false),
	}
	for _, fn := range configure {
		fn(h, &deps)
	}

	New(tb, deps, log)
	return h
}

func textUpdate(id int, userID int64, text string) telebot.Update {
	return telebot.Update{
		ID: id,
		Message: &telebot.Message{
			ID:     id,
			Text:   text,
			Sender: &telebot.User{ID: userID, FirstName: "Аня"},
			Chat:   &telebot.Chat{ID: userID, Type: telebot.ChatPrivate},
		},
	}
}

func callbackUpdate(id int, userID int64, data string) telebot.Update {
	return telebot.Update{
		ID: id,
		Callback: &telebot.Callback{
			ID:     "cb-" + data,
			Data:   data,
			Sender: &telebot.User{ID: userID},
			Message: &telebot.Message{
				ID:   50,
				Chat: &telebot.Chat{ID: userID, Type: telebot.ChatPrivate},
			},
		},
	}
}

func TestStartShowsFreeAllowance(t *testing.T) {
	h := newHarness(t)
	h.reminders.On("RescheduleUser", mock.Anything, int64(1), "UTC").Return(nil).Once()

	h.tb.ProcessUpdate(textUpdate(1, 1, "/start"))

	texts := h.api.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "бесплатных сообщений: 10")
	h.reminders.AssertExpectations(t)
	assert.Eventually(t, func() bool { return h.users.activeCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestStatusForSubscriber(t *testing.T) {
	h := newHarness(t)
	until := testNow.Add(50 * time.Hour)
	h.users.put(&domain.User{ID: 2, SubUntil: &until})

	h.tb.ProcessUpdate(textUpdate(1, 2, "/status"))

	texts := h.api.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "до: 3 марта 2025, 14:00 (UTC)")
	assert.Contains(t, texts[0], "осталось: 2 дн. 2 ч.")
}

func TestFreeTextReply(t *testing.T) {
	h := newHarness(t)

	h.tb.ProcessUpdate(textUpdate(1, 1, "привет"))

	assert.Equal(t, []string{"я тут)"}, h.api.sentTexts())
	assert.Equal(t, 1, h.chat.calls())
}

func TestFreeTextWithoutAccess(t *testing.T) {
	h := newHarness(t)
	h.chat.outcome = &chat.Outcome{Kind: chat.OutcomeNoAccess}

	h.tb.ProcessUpdate(textUpdate(1, 1, "привет"))

	texts := h.api.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "бесплатные сообщения закончились")
}

func TestProfilePhraseSkipsModel(t *testing.T) {
	h := newHarness(t)

	h.tb.ProcessUpdate(textUpdate(1, 1, "зови меня Ася"))

	assert.Equal(t, []string{"готово: буду звать тебя Ася 💛"}, h.api.sentTexts())
	assert.Zero(t, h.chat.calls())
}

func TestReplyErrorGoesThroughErrorHandler(t *testing.T) {
	h := newHarness(t)
	h.chat.err = apperrors.NewDatabaseError(errors.New("db down"))

	h.tb.ProcessUpdate(textUpdate(1, 1, "привет"))

	texts := h.api.sentTexts()
	require.Len(t, texts, 1)
	assert.NotEmpty(t, texts[0])
}

func TestTimezoneFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.tb.ProcessUpdate(textUpdate(1, 5, "/tz"))
	current, err := h.fsm.Current(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingTimezone, current)
	assert.Contains(t, h.api.sentTexts()[0], "не задан")

	h.tb.ProcessUpdate(textUpdate(2, 5, "Mars/Base"))
	current, err = h.fsm.Current(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingTimezone, current)

	h.reminders.On("RescheduleUser", mock.Anything, int64(5), "UTC+3").Return(nil).Once()
	h.tb.ProcessUpdate(textUpdate(3, 5, "utc+3"))

	current, err = h.fsm.Current(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, state.StateIdle, current)
	assert.Equal(t, "UTC+3", h.users.tz(5))

	texts := h.api.sentTexts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[1], "не узнала")
	assert.Equal(t, "окей, запомнила: UTC+3", texts[2])
	assert.Zero(t, h.chat.calls())
	h.reminders.AssertExpectations(t)
}

func TestTimezoneArgument(t *testing.T) {
	h := newHarness(t)
	h.reminders.On("RescheduleUser", mock.Anything, int64(5), "Europe/Madrid").Return(nil).Once()

	h.tb.ProcessUpdate(textUpdate(1, 5, "/tz Europe/Madrid"))

	assert.Equal(t, []string{"окей, запомнила: Europe/Madrid"}, h.api.sentTexts())
	h.reminders.AssertExpectations(t)
}

func TestCancelClearsPrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.fsm.Await(ctx, 5, state.StateAwaitingReminderTime))

	h.tb.ProcessUpdate(textUpdate(1, 5, "/cancel"))
	h.tb.ProcessUpdate(textUpdate(2, 5, "/cancel"))

	current, err := h.fsm.Current(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, state.StateIdle, current)
	assert.Equal(t, []string{"окей, отменила 🌿", "нечего отменять 🌿"}, h.api.sentTexts())
}

func TestCustomReminderFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entries := []scheduler.Entry{{Reminder: domain.Reminder{ID: 8, UserID: 4, Type: domain.ReminderCheckin, TimeLocal: "08:30", Active: true}}}
	h.reminders.On("Add", mock.Anything, int64(4), "UTC", domain.ReminderCheckin, "08:30").
		Return(&entries[0].Reminder, nil).Once()
	h.reminders.On("Entries", mock.Anything, int64(4)).Return(entries, nil)

	h.tb.ProcessUpdate(callbackUpdate(1, 4, "rem|add|custom"))
	current, err := h.fsm.Current(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingReminderTime, current)

	h.tb.ProcessUpdate(textUpdate(2, 4, "25:00"))
	h.tb.ProcessUpdate(textUpdate(3, 4, "8:30"))

	current, err = h.fsm.Current(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, state.StateIdle, current)

	texts := h.api.sentTexts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "HH:MM")
	assert.Contains(t, texts[1], "не похоже на время")
	assert.Equal(t, "добавила ⏰", texts[2])
	h.reminders.AssertExpectations(t)
}

func TestReminderToggleCallback(t *testing.T) {
	h := newHarness(t)
	r := domain.Reminder{ID: 4, UserID: 3, Type: domain.ReminderMorning, TimeLocal: "09:00", Active: false}
	h.reminders.On("Toggle", mock.Anything, int64(3), "UTC", int64(4)).Return(&r, nil).Once()
	h.reminders.On("Entries", mock.Anything, int64(3)).Return([]scheduler.Entry{{Reminder: r}}, nil).Once()

	h.tb.ProcessUpdate(callbackUpdate(1, 3, "rem|toggle|4"))

	require.Len(t, h.api.byMethod("answerCallbackQuery"), 1)
	edits := h.api.byMethod("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Params["reply_markup"], "rem|toggle|4")
	h.reminders.AssertExpectations(t)
}

func TestReminderDeleteMissing(t *testing.T) {
	h := newHarness(t)
	h.reminders.On("Delete", mock.Anything, int64(3), int64(77)).Return(repository.ErrNotFound).Once()

	h.tb.ProcessUpdate(callbackUpdate(1, 3, "rem|del|77"))

	answers := h.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, "не нашла такое напоминание...", answers[0].Params["text"])
	assert.Empty(t, h.api.byMethod("editMessageReplyMarkup"))
}

func TestUnknownCallback(t *testing.T) {
	h := newHarness(t)

	h.tb.ProcessUpdate(callbackUpdate(1, 3, "buy_confirm"))

	answers := h.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, h.texts.T("common.unknown_callback"), answers[0].Params["text"])
}

func TestMoodCallback(t *testing.T) {
	h := newHarness(t)

	h.tb.ProcessUpdate(callbackUpdate(1, 3, "mood|грустно"))

	edits := h.api.byMethod("editMessageText")
	require.Len(t, edits, 1)
	assert.Equal(t, "ты выбрал(а): грустно", edits[0].Params["text"])
	assert.Equal(t, []string{"я рядом 💛"}, h.api.sentTexts())
}

func TestSubscribeOffersCardWhenEnabled(t *testing.T) {
	h := newHarness(t, func(_ *harness, d *Deps) {
		d.Handlers.Card = fakeCard{enabled: true, url: "https://pay.example.com/start"}
	})

	h.tb.ProcessUpdate(textUpdate(1, 3, "/subscribe"))
	h.tb.ProcessUpdate(callbackUpdate(2, 3, "pay_card:month"))

	sent := h.api.byMethod("sendMessage")
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Params["reply_markup"], "pay_stars:week")
	assert.Contains(t, sent[0].Params["reply_markup"], "pay_card:month")
	assert.Contains(t, sent[1].Params["reply_markup"], "https://pay.example.com/start")
}

func TestPayStarsSendsInvoice(t *testing.T) {
	h := newHarness(t)
	h.stars.On("Invoice", mock.Anything, int64(3), payment.PlanWeek).Return(&telebot.Invoice{
		Title:       "Неделя",
		Description: "7 дней",
		Payload:     "stars:week:abc",
		Currency:    payment.StarsCurrency,
		Prices:      []telebot.Price{{Label: "Неделя", Amount: 600}},
	}, nil).Once()

	h.tb.ProcessUpdate(callbackUpdate(1, 3, "pay_stars:week"))

	invoices := h.api.byMethod("sendInvoice")
	require.Len(t, invoices, 1)
	assert.Equal(t, "stars:week:abc", invoices[0].Params["payload"])
	h.stars.AssertExpectations(t)
}

func TestCheckoutRejected(t *testing.T) {
	h := newHarness(t)
	h.stars.On("PreCheckout", mock.Anything, int64(7), "stars:week:abc", "XTR", 600).Return(errors.New("amount mismatch")).Once()

	h.tb.ProcessUpdate(telebot.Update{
		ID: 1,
		PreCheckoutQuery: &telebot.PreCheckoutQuery{
			ID:       "pcq-1",
			Sender:   &telebot.User{ID: 7},
			Currency: "XTR",
			Total:    600,
			Payload:  "stars:week:abc",
		},
	})

	answers := h.api.byMethod("answerPreCheckoutQuery")
	require.Len(t, answers, 1)
	assert.Equal(t, "False", answers[0].Params["ok"])
	assert.Equal(t, h.texts.T("payment.precheckout_failed"), answers[0].Params["error_message"])
}

func TestSuccessfulPaymentThanksOnce(t *testing.T) {
	h := newHarness(t, func(h *harness, d *Deps) {
		d.Idempotency = idempotency.NewManager(idempotency.NewRedisStore(h.redis, testLogger()), testLogger())
	})
	until := time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC)
	h.stars.On("Complete", mock.Anything, int64(7), "stars:week:abc", "charge-1").
		Return(&payment.Activation{UserID: 7, Days: 7, Until: until}, nil).Once()

	update := telebot.Update{
		ID: 1,
		Message: &telebot.Message{
			ID:     9,
			Sender: &telebot.User{ID: 7},
			Chat:   &telebot.Chat{ID: 7, Type: telebot.ChatPrivate},
			Payment: &telebot.Payment{
				Currency:         "XTR",
				Total:            600,
				Payload:          "stars:week:abc",
				TelegramChargeID: "charge-1",
			},
		},
	}
	h.tb.ProcessUpdate(update)
	h.tb.ProcessUpdate(update)

	assert.Equal(t, []string{"Спасибо! Я рядом без ограничений до 5 марта 2025, 14:30 (UTC) 💛"}, h.api.sentTexts())
	h.stars.AssertExpectations(t)
}

func TestDuplicateMessageHandledOnce(t *testing.T) {
	h := newHarness(t, func(h *harness, d *Deps) {
		d.Idempotency = idempotency.NewManager(idempotency.NewRedisStore(h.redis, testLogger()), testLogger())
	})

	h.tb.ProcessUpdate(textUpdate(1, 1, "привет"))
	h.tb.ProcessUpdate(textUpdate(1, 1, "привет"))

	assert.Equal(t, 1, h.chat.calls())
}

func TestRateLimitDropsBurst(t *testing.T) {
	h := newHarness(t, func(h *harness, d *Deps) {
		rules := ratelimit.NewRules(config.RateLimitConfig{
			MessageLimit: 1, MessageWindow: time.Minute,
			GlobalLimit: 100, GlobalWindow: time.Minute,
		}, []int64{99})
		d.RateLimit = middleware.NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(testLogger()), rules, h.texts.T("common.rate_limited"), testLogger())
	})

	h.tb.ProcessUpdate(textUpdate(1, 1, "привет"))
	h.tb.ProcessUpdate(textUpdate(2, 1, "ты тут?"))
	h.tb.ProcessUpdate(textUpdate(3, 99, "a"))
	h.tb.ProcessUpdate(textUpdate(4, 99, "b"))

	assert.Equal(t, []string{"я тут)", "секунду... печатаю 🌿", "я тут)", "я тут)"}, h.api.sentTexts())
	assert.Equal(t, 3, h.chat.calls())
}

func TestDebugCommandsOnlyForDebugUsers(t *testing.T) {
	h := newHarness(t)
	next := testNow.Add(3 * time.Hour)
	h.reminders.On("Entries", mock.Anything, int64(99)).Return([]scheduler.Entry{
		{Reminder: domain.Reminder{ID: 1, UserID: 99, Type: domain.ReminderMorning, TimeLocal: "09:00", Active: true}, Scheduled: true, NextRun: next},
	}, nil).Once()
	h.reminders.On("Once", int64(99), testNow.Add(5*time.Minute), h.texts.T("debug.ping_text")).Return(nil).Once()

	h.tb.ProcessUpdate(textUpdate(1, 1, "/jobs"))
	h.tb.ProcessUpdate(textUpdate(2, 1, "/pingme 5"))
	assert.Zero(t, h.api.count())

	h.tb.ProcessUpdate(textUpdate(3, 99, "/jobs"))
	h.tb.ProcessUpdate(textUpdate(4, 99, "/pingme 5"))

	texts := h.api.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "09:00 (morning, вкл) → 2025-03-01 15:00 (UTC)")
	assert.Equal(t, "окей, напишу через 5 мин.", texts[1])
	h.reminders.AssertExpectations(t)
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/start", "/start", true},
		{"/tz Europe/Moscow", "/tz", true},
		{"/Status@alina_bot", "/status", true},
		{"/pingme\n5", "/pingme", true},
		{"/", "", false},
		{"привет", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := commandName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotifier(t *testing.T) {
	h := newHarness(t)
	kb := keyboard.NewBuilder(h.texts)
	plans := payment.PlansFromConfig(config.SubscriptionConfig{
		StarsDayAmount: 200, StarsWeekAmount: 600, StarsMonthAmount: 1200,
		DayDays: 1, WeekDays: 7, MonthDays: 30,
	})
	n := NewNotifier(h.tb, h.texts, kb, plans, testLogger())
	ctx := context.Background()

	require.NoError(t, n.SendText(ctx, 11, "привет"))
	require.NoError(t, n.SendRenewalNudge(ctx, 11, testNow.Add(12*time.Hour)))
	require.NoError(t, n.NotifyPaid(ctx, &payment.Activation{UserID: 11, Until: testNow, Duplicate: true}))
	require.NoError(t, n.NotifyPaid(ctx, &payment.Activation{UserID: 11, Until: testNow}))

	sent := h.api.byMethod("sendMessage")
	require.Len(t, sent, 3)
	assert.Equal(t, "11", sent[0].Params["chat_id"])
	assert.Contains(t, sent[1].Params["reply_markup"], "pay_stars:day")
	assert.Contains(t, sent[2].Params["text"], "1 марта 2025, 12:00 (UTC)")
}
