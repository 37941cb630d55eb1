package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/core/database"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/core/telegram/teletest"
	"github.com/m3rciful/shopbot/internal/service"
	"github.com/m3rciful/shopbot/internal/storage"
	"github.com/m3rciful/shopbot/migrations"
)

type nameMap map[int64]string

func (m nameMap) DisplayName(_ context.Context, id int64) (string, error) {
	if n, ok := m[id]; ok {
		return n, nil
	}
	return "", errors.New("chat not found")
}

type fixture struct {
	db    *sqlx.DB
	store *storage.Store
	shop  *service.Shopping
	bot   *Bot
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "shop.db")}
	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.RunMigrations(db, cfg, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := storage.New(db)
	n := 0
	shop := service.New(store, service.Options{
		ShareMode: mode,
		NewToken: func() string {
			n++
			return fmt.Sprintf("tok%d", n)
		},
	})
	b, err := New(Options{
		Shopping: shop,
		Names:    nameMap{10: "Alice"},
		Username: func() string { return "shopbot" },
	})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	if err := b.Register(tg.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
	return &fixture{db: db, store: store, shop: shop, bot: b}
}

func itemNames(t *testing.T, f *fixture, owner int64) string {
	t.Helper()
	items, err := f.shop.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductName)
	}
	return strings.Join(out, ",")
}

func TestAddFlowFreeText(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	const user = int64(1)

	c := teletest.NewCommand(1, user, "/add", "")
	if err := f.bot.StartAdd(c); err != nil {
		t.Fatalf("start add: %v", err)
	}
	if got := c.Last().Text; got != textAddPromptNone {
		t.Fatalf("prompt = %q", got)
	}
	if got := fmt.Sprint(teletest.Buttons(c.Last().Markup)); got != "[[menu_main]]" {
		t.Fatalf("buttons = %s", got)
	}
	if st := f.bot.FSM().GetState(user); st != StateAwaitingProduct {
		t.Fatalf("state = %q", st)
	}

	c = teletest.NewMessage(2, user, "  bread ")
	if err := f.bot.FSM().ManagerHandler(c); err != nil {
		t.Fatalf("product text: %v", err)
	}
	if got := c.Last().Text; got != addedText("Bread") {
		t.Fatalf("reply = %q", got)
	}
	if got := fmt.Sprint(teletest.Buttons(c.Last().Markup)); got != "[[add_more menu_main]]" {
		t.Fatalf("buttons = %s", got)
	}
	if got := itemNames(t, f, user); got != "Bread" {
		t.Fatalf("list = %q", got)
	}
	entry, err := f.store.History.Get(context.Background(), user, "Bread")
	if err != nil || entry.Count != 1 {
		t.Fatalf("history = %+v, %v", entry, err)
	}
	if st := f.bot.FSM().GetState(user); st != state.StateIdle {
		t.Fatalf("state after add = %q", st)
	}

	c = teletest.NewCallback(3, user, cbMenu, "")
	if err := f.bot.Menu(c); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if out := c.Last(); out.Kind != "edit_or_send" || out.Text != textMenu {
		t.Fatalf("menu output = %+v", out)
	}
	if f.bot.FSM().InProgress(user) {
		t.Fatal("answering no must leave the user idle")
	}
}

func TestAddFlowEmptyTextStaysAwaiting(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	_ = f.bot.StartAdd(teletest.NewCommand(1, 1, "/add", ""))

	c := teletest.NewMessage(2, 1, "   ")
	if err := f.bot.FSM().ManagerHandler(c); err != nil {
		t.Fatalf("empty text: %v", err)
	}
	if got := c.Last().Text; got != textEmptyProduct {
		t.Fatalf("reply = %q", got)
	}
	if st := f.bot.FSM().GetState(1); st != StateAwaitingProduct {
		t.Fatalf("state = %q", st)
	}
	if got := itemNames(t, f, 1); got != "" {
		t.Fatalf("list = %q", got)
	}
}

func TestAddMorePicksSuggestion(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	ctx := context.Background()
	const user = int64(1)
	_, _ = f.shop.AddProduct(ctx, user, "milk")
	_, _ = f.shop.AddProduct(ctx, user, "milk")
	_, _ = f.shop.AddProduct(ctx, user, "eggs")
	_, _ = f.shop.Clear(ctx, user)
	_, _ = f.shop.AddProduct(ctx, user, "tea")

	c := teletest.NewCallback(1, user, cbAddMore, "")
	if err := f.bot.StartAdd(c); err != nil {
		t.Fatalf("add more: %v", err)
	}
	out := c.Last()
	if out.Text != textAddPrompt {
		t.Fatalf("prompt = %q", out.Text)
	}
	want := "[[add_pick|1|0] [add_pick|1|1] [menu_main]]"
	if got := fmt.Sprint(teletest.Buttons(out.Markup)); got != want {
		t.Fatalf("buttons = %s, want %s", got, want)
	}
	if txt := out.Markup.InlineKeyboard[0][0].Text; txt != "💡 Milk" {
		t.Fatalf("first suggestion = %q", txt)
	}

	c = teletest.NewCallback(2, user, cbPick, "1|0")
	if err := f.bot.PickSuggestion(c); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if got := c.Last().Text; got != addedText("Milk") {
		t.Fatalf("reply = %q", got)
	}
	if got := itemNames(t, f, user); got != "Tea,Milk" {
		t.Fatalf("list = %q", got)
	}
	entry, _ := f.store.History.Get(ctx, user, "Milk")
	if entry.Count != 3 {
		t.Fatalf("milk count = %d", entry.Count)
	}

	// The rendered keyboard is stale once the pick was made.
	c = teletest.NewCallback(3, user, cbPick, "1|1")
	if err := f.bot.PickSuggestion(c); err != nil {
		t.Fatalf("stale pick: %v", err)
	}
	if rs := c.Responses(); len(rs) != 1 || rs[0].Text != textPickExpired {
		t.Fatalf("responses = %+v", rs)
	}
	if got := itemNames(t, f, user); got != "Tea,Milk" {
		t.Fatalf("stale pick changed list: %q", got)
	}
}

func TestPickFromOlderKeyboardIsRefused(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	ctx := context.Background()
	const user = int64(1)
	_, _ = f.shop.AddProduct(ctx, user, "eggs")
	_, _ = f.shop.AddProduct(ctx, user, "tea")
	_, _ = f.shop.Clear(ctx, user)

	first := teletest.NewCommand(1, user, "/add", "")
	if err := f.bot.StartAdd(first); err != nil {
		t.Fatalf("first add: %v", err)
	}
	oldBtn := first.Last().Markup.InlineKeyboard[0][0]
	if oldBtn.Text != "💡 Eggs" {
		t.Fatalf("first keyboard starts with %q", oldBtn.Text)
	}

	if err := f.bot.FSM().ManagerHandler(teletest.NewMessage(2, user, "eggs")); err != nil {
		t.Fatalf("product text: %v", err)
	}
	second := teletest.NewCommand(3, user, "/add", "")
	if err := f.bot.StartAdd(second); err != nil {
		t.Fatalf("second add: %v", err)
	}
	if got := second.Last().Markup.InlineKeyboard[0][0].Text; got != "💡 Tea" {
		t.Fatalf("second keyboard starts with %q", got)
	}

	c := teletest.NewCallback(4, user, oldBtn.Unique, oldBtn.Data)
	if err := f.bot.PickSuggestion(c); err != nil {
		t.Fatalf("old pick: %v", err)
	}
	if rs := c.Responses(); len(rs) != 1 || rs[0].Text != textPickExpired {
		t.Fatalf("responses = %+v", rs)
	}
	if got := itemNames(t, f, user); got != "Eggs" {
		t.Fatalf("list = %q", got)
	}
	if st := f.bot.FSM().GetState(user); st != StateAwaitingProduct {
		t.Fatalf("state = %q", st)
	}

	// The current keyboard still works.
	newBtn := second.Last().Markup.InlineKeyboard[0][0]
	c = teletest.NewCallback(5, user, newBtn.Unique, newBtn.Data)
	if err := f.bot.PickSuggestion(c); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if got := itemNames(t, f, user); got != "Eggs,Tea" {
		t.Fatalf("list = %q", got)
	}
}

func TestCancelDiscardsPendingAdd(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	_ = f.bot.StartAdd(teletest.NewCommand(1, 1, "/add", ""))

	c := teletest.NewCommand(2, 1, "/cancel", "")
	if err := f.bot.Menu(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if out := c.Last(); out.Kind != "send" || out.Text != textMenu {
		t.Fatalf("output = %+v", out)
	}
	if f.bot.FSM().InProgress(1) {
		t.Fatal("cancel must return to idle")
	}
	if _, ok := f.bot.FSM().GetTemp(1, tempSuggestions); ok {
		t.Fatal("suggestions kept after cancel")
	}
}

func TestSharedListCrossViewerDelete(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	ctx := context.Background()
	const owner, viewer = int64(10), int64(20)
	_, _ = f.shop.AddProduct(ctx, owner, "Milk")
	_, _ = f.shop.AddProduct(ctx, owner, "Bread")
	items, _ := f.shop.List(ctx, owner)

	c := teletest.NewCommand(1, owner, "/share", "")
	if err := f.bot.Share(c); err != nil {
		t.Fatalf("share: %v", err)
	}
	if got := c.Last().Text; !strings.Contains(got, `https://t.me/shopbot?start=share\_tok1`) {
		t.Fatalf("share text = %q", got)
	}
	if got := fmt.Sprint(teletest.Buttons(c.Last().Markup)); got != "[[share_rotate] [menu_main]]" {
		t.Fatalf("share buttons = %s", got)
	}

	c = teletest.NewCommand(2, viewer, "/start", "share_tok1")
	if err := f.bot.Start(c); err != nil {
		t.Fatalf("open link: %v", err)
	}
	out := c.Last()
	if !strings.Contains(out.Text, "Shared list of Alice (`10`)") {
		t.Fatalf("viewer header = %q", out.Text)
	}
	want := fmt.Sprintf("[[item_del|%d|10] [item_del|%d|10] [list_refresh|10]]", items[0].ID, items[1].ID)
	if got := fmt.Sprint(teletest.Buttons(out.Markup)); got != want {
		t.Fatalf("viewer buttons = %s, want %s", got, want)
	}
	if txt := out.Markup.InlineKeyboard[0][0].Text; txt != "1. Milk ❌" {
		t.Fatalf("item button = %q", txt)
	}

	c = teletest.NewCallback(3, viewer, cbDelete, fmt.Sprintf("%d|%d", items[0].ID, owner))
	if err := f.bot.DeleteItem(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rs := c.Responses(); len(rs) != 1 || rs[0].Text != textDeleted {
		t.Fatalf("responses = %+v", rs)
	}
	if got := itemNames(t, f, owner); got != "Bread" {
		t.Fatalf("owner list = %q", got)
	}

	c = teletest.NewCommand(4, owner, "/list", "")
	if err := f.bot.ShowList(c); err != nil {
		t.Fatalf("owner list: %v", err)
	}
	want = fmt.Sprintf("[[item_del|%d|10] [menu_main]]", items[1].ID)
	if got := fmt.Sprint(teletest.Buttons(c.Last().Markup)); got != want {
		t.Fatalf("owner buttons = %s, want %s", got, want)
	}
}

func TestDeleteWithoutGrantIsRefused(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	ctx := context.Background()
	_, _ = f.shop.AddProduct(ctx, 10, "Milk")
	items, _ := f.shop.List(ctx, 10)

	c := teletest.NewCallback(1, 30, cbDelete, fmt.Sprintf("%d|10", items[0].ID))
	if err := f.bot.DeleteItem(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rs := c.Responses(); len(rs) != 1 || rs[0].Text != textForbidden {
		t.Fatalf("responses = %+v", rs)
	}
	if got := itemNames(t, f, 10); got != "Milk" {
		t.Fatalf("list = %q", got)
	}
}

func TestRepeatedDeleteOnlyRefreshes(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	ctx := context.Background()
	_, _ = f.shop.AddProduct(ctx, 1, "Milk")
	items, _ := f.shop.List(ctx, 1)
	payload := fmt.Sprintf("%d|1", items[0].ID)

	_ = f.bot.DeleteItem(teletest.NewCallback(1, 1, cbDelete, payload))
	c := teletest.NewCallback(2, 1, cbDelete, payload)
	if err := f.bot.DeleteItem(c); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if len(c.Responses()) != 0 {
		t.Fatalf("repeat delete toasted: %+v", c.Responses())
	}
	if got := c.Last().Text; got != textListEmpty {
		t.Fatalf("list text = %q", got)
	}
}

func TestInvalidShareLink(t *testing.T) {
	t.Run("token mode warns only", func(t *testing.T) {
		f := newFixture(t, service.ShareModeToken)
		c := teletest.NewCommand(1, 5, "/start", "share_missing")
		if err := f.bot.Start(c); err != nil {
			t.Fatalf("start: %v", err)
		}
		outs := c.Outputs()
		if len(outs) != 1 || outs[0].Text != textInvalidLink {
			t.Fatalf("outputs = %+v", outs)
		}
	})
	t.Run("owner id mode falls back to the menu", func(t *testing.T) {
		f := newFixture(t, service.ShareModeOwnerID)
		c := teletest.NewCommand(1, 5, "/start", "share_abc").WithSender("Bob", "", "bob")
		if err := f.bot.Start(c); err != nil {
			t.Fatalf("start: %v", err)
		}
		outs := c.Outputs()
		if len(outs) != 2 || outs[0].Text != textInvalidLink || outs[1].Text != greetingText("Bob") {
			t.Fatalf("outputs = %+v", outs)
		}
	})
}

func TestOwnerIDLinkShowsList(t *testing.T) {
	f := newFixture(t, service.ShareModeOwnerID)
	_, _ = f.shop.AddProduct(context.Background(), 77, "Soap")

	c := teletest.NewCommand(1, 5, "/start", "share_77")
	if err := f.bot.Start(c); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := c.Last().Text; !strings.Contains(got, "Shared list of user 77") {
		t.Fatalf("header = %q", got)
	}
}

func TestRotateShare(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	_ = f.bot.Share(teletest.NewCommand(1, 10, "/share", ""))

	c := teletest.NewCallback(2, 10, cbShareRotate, "")
	if err := f.bot.RotateShare(c); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !strings.Contains(c.Last().Text, `share\_tok2`) {
		t.Fatalf("rotated text = %q", c.Last().Text)
	}
	if rs := c.Responses(); len(rs) != 1 || rs[0].Text != textRotated {
		t.Fatalf("responses = %+v", rs)
	}

	c = teletest.NewCommand(3, 20, "/start", "share_tok1")
	_ = f.bot.Start(c)
	if got := c.Last().Text; got != textInvalidLink {
		t.Fatalf("old link = %q", got)
	}
}

func TestClearList(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	_, _ = f.shop.AddProduct(context.Background(), 1, "Milk")

	c := teletest.NewCallback(1, 1, cbClear, "")
	if err := f.bot.ClearList(c); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := c.Last().Text; !strings.HasPrefix(got, textCleared) {
		t.Fatalf("text = %q", got)
	}
	if got := itemNames(t, f, 1); got != "" {
		t.Fatalf("list = %q", got)
	}
}

func TestStorageFailureSendsGenericMessage(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	_ = f.db.Close()

	c := teletest.NewCommand(1, 1, "/list", "")
	err := f.bot.guard(f.bot.ShowList)(c)
	if err == nil {
		t.Fatal("expected storage error")
	}
	if got := c.Last().Text; got != textFailure {
		t.Fatalf("reply = %q", got)
	}
}

func TestRegisterBindsEverything(t *testing.T) {
	f := newFixture(t, service.ShareModeToken)
	reg := tg.NewRegistry()
	b, _ := New(Options{Shopping: f.shop})
	if err := b.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := len(reg.ListCommands(true)); got != 6 {
		t.Fatalf("commands = %d", got)
	}
	want := "[add_more add_pick item_del list_refresh menu_add menu_clear menu_list menu_main menu_share share_rotate]"
	if got := fmt.Sprint(reg.ListCallbacks()); got != want {
		t.Fatalf("callbacks = %s", got)
	}
	if key, _, ok := reg.LookupCommand("new"); !ok || key != "/add" {
		t.Fatalf("alias lookup = %q, %v", key, ok)
	}
	if reg.TextFallback() == nil {
		t.Fatal("text fallback not set")
	}
}
