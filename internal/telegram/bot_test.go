package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-telegram-bot/internal/commands"
	"market-telegram-bot/internal/database"
	"market-telegram-bot/internal/types"
)

type apiCall struct {
	Method  string
	Values  map[string]string
	HasFile bool
}

// fakeAPI answers Bot API calls and records them.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	fail   map[string]bool
	admins map[string]bool // user_id -> administrator
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseMultipartForm(1 << 20)

	call := apiCall{Method: method, Values: map[string]string{}}
	for k := range r.Form {
		call.Values[k] = r.Form.Get(k)
	}
	if r.MultipartForm != nil {
		call.HasFile = len(r.MultipartForm.File) > 0
	}

	f.mu.Lock()
	if method != "getMe" && method != "getChatMember" {
		f.calls = append(f.calls, call)
	}
	fail := f.fail[method]
	admin := f.admins[call.Values["user_id"]]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case method == "getChatMember":
		status := "member"
		if admin {
			status = "administrator"
		}
		fmt.Fprintf(w, `{"ok":true,"result":{"user":{"id":%s,"is_bot":false,"first_name":"u"},"status":%q}}`,
			call.Values["user_id"], status)
	case method == "getMe":
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Market","username":"market_bot"}}`))
	case fail:
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	default:
		w.Write([]byte(`{"ok":true,"result":{"message_id":100,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}
}

func (f *fakeAPI) setFail(method string, fail bool) {
	f.mu.Lock()
	f.fail[method] = fail
	f.mu.Unlock()
}

func (f *fakeAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type stubPrices map[string]float64

func (s stubPrices) GetPrice(_ context.Context, symbol string, _ types.AssetType) (float64, bool) {
	if symbol == "BOOM" {
		panic("provider exploded")
	}
	p, ok := s[symbol]
	return p, ok
}

func (s stubPrices) GetPriceWithRetry(ctx context.Context, symbol string, assetType types.AssetType, _ int, _ time.Duration) (float64, bool) {
	return s.GetPrice(ctx, symbol, assetType)
}

type stubHistory struct{}

func (stubHistory) History(context.Context, string, int) ([]types.PricePoint, error) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return []types.PricePoint{
		{Time: start, Price: 100},
		{Time: start.AddDate(0, 0, 1), Price: 104},
		{Time: start.AddDate(0, 0, 2), Price: 102},
	}, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *commands.Handler, *database.Store) {
	t.Helper()
	api := &fakeAPI{fail: map[string]bool{}, admins: map[string]bool{"7": true}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store, err := database.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := commands.NewHandler(commands.Config{
		Prices:       stubPrices{"AAPL": 151.25, "MSFT": 400},
		Store:        store,
		StockHistory: stubHistory{},
	})
	bot, err := NewBot(BotConfig{
		Token:       "123:abc",
		APIEndpoint: srv.URL + "/bot%s/%s",
		HTTPClient:  srv.Client(),
	}, handler, store, nil)
	require.NoError(t, err)
	return bot, api, handler, store
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 5,
		From:      &tgbotapi.User{ID: 7},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func groupCommand(userID int64, text string) tgbotapi.Update {
	u := command(-100, text)
	u.Message.From = &tgbotapi.User{ID: userID}
	u.Message.Chat = &tgbotapi.Chat{ID: -100, Type: "supergroup", Title: "Traders"}
	return u
}

func TestNotifySendsPlainText(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	err := bot.Notify(context.Background(), 42, "🔔 Alert triggered!\nAsset: AAPL (stock)\nCurrent price: $151.25")
	require.NoError(t, err)

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendMessage", calls[0].Method)
	assert.Equal(t, "42", calls[0].Values["chat_id"])
	assert.Contains(t, calls[0].Values["text"], "151.25")
	assert.Empty(t, calls[0].Values["parse_mode"])
}

func TestNotifyReportsRejectedMessage(t *testing.T) {
	bot, api, _, _ := newTestBot(t)
	api.setFail("sendMessage", true)

	err := bot.Notify(context.Background(), 42, "hello")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api.setFail("sendMessage", false)
	assert.Error(t, bot.Notify(ctx, 42, "hello"))
	assert.Len(t, api.recorded(), 1)
}

func TestHandleUpdateReplies(t *testing.T) {
	bot, api, _, _ := newTestBot(t)
	ctx := context.Background()

	bot.HandleUpdate(ctx, command(42, "/price stock AAPL"))
	bot.HandleUpdate(ctx, command(42, "/set_alert stock AAPL 150 above"))
	bot.HandleUpdate(ctx, command(42, "/alerts"))
	bot.HandleUpdate(ctx, command(42, "/nope"))

	calls := api.recorded()
	require.Len(t, calls, 4)
	for _, c := range calls {
		assert.Equal(t, "sendMessage", c.Method)
		assert.Equal(t, "MarkdownV2", c.Values["parse_mode"])
		assert.Equal(t, "5", c.Values["reply_to_message_id"])
	}
	assert.Contains(t, calls[0].Values["text"], `$151\.25`)
	assert.Contains(t, calls[1].Values["text"], `Alert set \#1`)
	assert.Contains(t, calls[2].Values["text"], `\#1`)
	assert.Contains(t, calls[3].Values["text"], "Unknown command")
}

func TestHandleUpdateIgnoresPlainText(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 42},
		Text: "hello",
	}})
	bot.HandleUpdate(context.Background(), tgbotapi.Update{})
	assert.Empty(t, api.recorded())
}

func TestHandleUpdateRecoversFromPanic(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	assert.NotPanics(t, func() {
		bot.HandleUpdate(context.Background(), command(42, "/price stock BOOM"))
	})
	assert.Empty(t, api.recorded())
}

func TestChartIsSentAsPhoto(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), command(42, "/chart stock AAPL"))

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "sendPhoto", calls[0].Method)
	assert.True(t, calls[0].HasFile)
	assert.Contains(t, calls[0].Values["caption"], "AAPL")
}

func TestPortfolioNavigation(t *testing.T) {
	bot, api, handler, _ := newTestBot(t)
	ctx := context.Background()
	for _, s := range []string{"AAPL", "AMZN", "GOOG", "MSFT", "TSLA"} {
		handler.AddAsset(ctx, 7, "stock "+s+" 1 100")
	}
	handler.AddAsset(ctx, 7, "crypto BTC 1 100 Crypto")

	bot.HandleUpdate(ctx, command(42, "/portfolio"))
	calls := api.recorded()
	require.Len(t, calls, 1)
	markup := calls[0].Values["reply_markup"]
	assert.Contains(t, markup, "portfolio|Main|2")
	assert.Contains(t, markup, "portfolio|Crypto|1")

	bot.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: 7},
		Data: "portfolio|Main|2",
		Message: &tgbotapi.Message{
			MessageID: 100,
			Chat:      &tgbotapi.Chat{ID: 42},
		},
	}})

	calls = api.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "editMessageText", calls[1].Method)
	assert.Equal(t, "100", calls[1].Values["message_id"])
	assert.Contains(t, calls[1].Values["text"], "TSLA")
	assert.Contains(t, calls[1].Values["reply_markup"], "portfolio|Main|1")
	assert.Equal(t, "answerCallbackQuery", calls[2].Method)
	assert.Equal(t, "cb1", calls[2].Values["callback_query_id"])
}

func TestUnknownCallbackIsAnswered(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	bot.HandleCallbackQuery(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb2",
		Data:    "bogus",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
	})

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "answerCallbackQuery", calls[0].Method)
	assert.Contains(t, calls[0].Values["text"], "Unknown action")
}

func TestParsePortfolioData(t *testing.T) {
	sub, page, ok := parsePortfolioData("Long term|3")
	assert.True(t, ok)
	assert.Equal(t, "Long term", sub)
	assert.Equal(t, 3, page)

	_, _, ok = parsePortfolioData("Main")
	assert.False(t, ok)
	_, _, ok = parsePortfolioData("Main|x")
	assert.False(t, ok)
}

func TestPortfolioKeyboardIsNilWithoutNavigation(t *testing.T) {
	assert.Nil(t, portfolioKeyboard(commands.PortfolioView{SubAccount: "Main", Page: 1, Pages: 1, SubAccounts: []string{"Main"}}))
}

func TestMenuCallbackSendsReply(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	bot.HandleCallbackQuery(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb3",
		From:    &tgbotapi.User{ID: 7},
		Data:    "menu|alerts",
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 42}},
	})

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "sendMessage", calls[0].Method)
	assert.Contains(t, calls[0].Values["text"], "no active alerts")
	assert.Equal(t, "answerCallbackQuery", calls[1].Method)
}

func TestGroupIsOpenToEveryoneByDefault(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), groupCommand(8, "/price stock AAPL"))

	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Values["text"], `$151\.25`)
}

func TestRestrictedGroupRejectsNonAdmins(t *testing.T) {
	bot, api, _, store := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, store.SetAllowAll(ctx, -100, false))

	bot.HandleUpdate(ctx, groupCommand(8, "/price stock AAPL"))
	bot.HandleUpdate(ctx, groupCommand(7, "/price stock AAPL"))
	bot.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb4",
		From:    &tgbotapi.User{ID: 8},
		Data:    "menu|market",
		Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: -100, Type: "supergroup"}},
	}})

	calls := api.recorded()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Values["text"], "not allowed")
	assert.NotContains(t, calls[0].Values["text"], "151")
	assert.Contains(t, calls[1].Values["text"], `$151\.25`, "administrators keep access")
	assert.Equal(t, "answerCallbackQuery", calls[2].Method)
	assert.Contains(t, calls[2].Values["text"], "not allowed")
}

func TestPrivateChatIgnoresGroupSettings(t *testing.T) {
	bot, api, _, store := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, store.SetAllowAll(ctx, 42, false))

	bot.HandleUpdate(ctx, command(42, "/price stock AAPL"))
	bot.HandleUpdate(ctx, command(42, "/settings"))

	calls := api.recorded()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Values["text"], `$151\.25`)
	assert.Contains(t, calls[1].Values["text"], "group chats")
}

func TestSettingsToggle(t *testing.T) {
	bot, api, _, store := newTestBot(t)
	ctx := context.Background()
	group := &tgbotapi.Chat{ID: -100, Type: "group", Title: "Traders"}

	bot.HandleUpdate(ctx, groupCommand(7, "/settings"))
	calls := api.recorded()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Values["text"], "All users")
	assert.Contains(t, calls[0].Values["reply_markup"], "settings|admins")

	bot.HandleCallbackQuery(ctx, &tgbotapi.CallbackQuery{
		ID: "cb5", From: &tgbotapi.User{ID: 7}, Data: "settings|admins",
		Message: &tgbotapi.Message{MessageID: 100, Chat: group},
	})
	settings, err := store.GetChatSettings(ctx, -100)
	require.NoError(t, err)
	assert.False(t, settings.AllowAllUsers)

	calls = api.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "editMessageText", calls[1].Method)
	assert.Contains(t, calls[1].Values["text"], "Only administrators")
	assert.Equal(t, "Settings updated.", calls[2].Values["text"])

	// settings are open to all again, but only administrators may change them
	require.NoError(t, store.SetAllowAll(ctx, -100, true))
	bot.HandleCallbackQuery(ctx, &tgbotapi.CallbackQuery{
		ID: "cb6", From: &tgbotapi.User{ID: 8}, Data: "settings|admins",
		Message: &tgbotapi.Message{MessageID: 100, Chat: group},
	})
	settings, err = store.GetChatSettings(ctx, -100)
	require.NoError(t, err)
	assert.True(t, settings.AllowAllUsers)

	calls = api.recorded()
	require.Len(t, calls, 4)
	assert.Equal(t, "answerCallbackQuery", calls[3].Method)
	assert.Contains(t, calls[3].Values["text"], "Only administrators")

	bot.HandleUpdate(ctx, groupCommand(8, "/settings"))
	calls = api.recorded()
	require.Len(t, calls, 5)
	assert.Contains(t, calls[4].Values["text"], "Only administrators can change")
	assert.Empty(t, calls[4].Values["reply_markup"])
}
