package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/internal/metrics"
	"github.com/m3rciful/shopbot/internal/models"
	"github.com/m3rciful/shopbot/internal/storage"
	"github.com/m3rciful/shopbot/migrations"
)

func newTestStore(t *testing.T) *storage.Store {
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
	return storage.New(db)
}

func sequenceTokens(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func names(items []models.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductName)
	}
	return out
}

func TestNormalizeProduct(t *testing.T) {
	cases := map[string]string{
		"  milk ":    "Milk",
		"Bread":      "Bread",
		"яблоки":     "Яблоки",
		"   ":        "",
		"2 packs":    "2 packs",
		"éclair au":  "Éclair au",
		"\tbUTTER\n": "BUTTER",
	}
	for in, want := range cases {
		if got := NormalizeProduct(in); got != want {
			t.Errorf("NormalizeProduct(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddKeepsOrderAndRecordsHistory(t *testing.T) {
	store := newTestStore(t)
	m := metrics.New()
	svc := New(store, Options{Metrics: m})
	ctx := context.Background()

	if _, err := svc.AddProduct(ctx, 1, "milk"); err != nil {
		t.Fatalf("add milk: %v", err)
	}
	if _, err := svc.AddProduct(ctx, 1, "eggs"); err != nil {
		t.Fatalf("add eggs: %v", err)
	}
	items, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := names(items); fmt.Sprint(got) != "[Milk Eggs]" {
		t.Fatalf("list = %v", got)
	}

	if err := svc.AddSuggestion(ctx, 1, "Milk"); err != nil {
		t.Fatalf("add suggestion: %v", err)
	}
	entry, err := store.History.Get(ctx, 1, "Milk")
	if err != nil || entry.Count != 2 {
		t.Fatalf("history = %+v, %v", entry, err)
	}
	if got := testutil.ToFloat64(m.ItemsAdded.WithLabelValues(SourceText)); got != 2 {
		t.Fatalf("items added (text) = %v", got)
	}
}

func TestAddRejectsBlankText(t *testing.T) {
	svc := New(newTestStore(t), Options{})
	if _, err := svc.AddProduct(context.Background(), 1, "  \n "); !errors.Is(err, ErrEmptyProduct) {
		t.Fatalf("err = %v, want ErrEmptyProduct", err)
	}
	if items, _ := svc.List(context.Background(), 1); len(items) != 0 {
		t.Fatalf("blank text stored: %+v", items)
	}
}

func TestDeleteThenListNeverShowsItem(t *testing.T) {
	svc := New(newTestStore(t), Options{})
	ctx := context.Background()
	_, _ = svc.AddProduct(ctx, 1, "Milk")
	_, _ = svc.AddProduct(ctx, 1, "Eggs")
	items, _ := svc.List(ctx, 1)

	if ok, err := svc.Delete(ctx, 1, 1, items[0].ID); err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if ok, err := svc.Delete(ctx, 1, 1, items[0].ID); err != nil || ok {
		t.Fatalf("repeat delete = %v, %v", ok, err)
	}
	left, _ := svc.List(ctx, 1)
	for _, it := range left {
		if it.ID == items[0].ID {
			t.Fatal("deleted item still listed")
		}
	}
}

func TestClearKeepsHistoryCounts(t *testing.T) {
	store := newTestStore(t)
	svc := New(store, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = svc.AddProduct(ctx, 1, "milk")
	}

	if n, err := svc.Clear(ctx, 1); err != nil || n != 3 {
		t.Fatalf("clear = %d, %v", n, err)
	}
	if items, _ := svc.List(ctx, 1); len(items) != 0 {
		t.Fatalf("items after clear: %+v", items)
	}
	entry, err := store.History.Get(ctx, 1, "Milk")
	if err != nil || entry.Count != 3 {
		t.Fatalf("history after clear = %+v, %v", entry, err)
	}
}

func TestSuggestionsRankAndExcludeCurrentItems(t *testing.T) {
	svc := New(newTestStore(t), Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = svc.AddProduct(ctx, 1, "milk")
	}
	_, _ = svc.AddProduct(ctx, 1, "bread")
	_, _ = svc.Clear(ctx, 1)

	got, err := svc.Suggestions(ctx, 1)
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if fmt.Sprint(got) != "[Milk Bread]" {
		t.Fatalf("suggestions = %v", got)
	}

	_, _ = svc.AddProduct(ctx, 1, "milk")
	got, _ = svc.Suggestions(ctx, 1)
	if fmt.Sprint(got) != "[Bread]" {
		t.Fatalf("suggestions with Milk listed = %v", got)
	}

	fresh, err := svc.Suggestions(ctx, 2)
	if err != nil || len(fresh) != 0 {
		t.Fatalf("new user suggestions = %v, %v", fresh, err)
	}
}

func TestShareTokenRotation(t *testing.T) {
	store := newTestStore(t)
	svc := New(store, Options{NewToken: sequenceTokens("tok")})
	ctx := context.Background()

	old, err := svc.ShareRef(ctx, 1)
	if err != nil {
		t.Fatalf("share ref: %v", err)
	}
	if again, _ := svc.ShareRef(ctx, 1); again != old {
		t.Fatalf("share ref changed without rotation: %q -> %q", old, again)
	}
	if _, err := svc.OpenShare(ctx, 2, SharePrefix+old); err != nil {
		t.Fatalf("open: %v", err)
	}

	fresh, err := svc.RotateShare(ctx, 1)
	if err != nil || fresh == old {
		t.Fatalf("rotate = %q, %v", fresh, err)
	}
	if _, err := store.Tokens.Resolve(ctx, old); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("old token resolves: %v", err)
	}
	if owner, err := store.Tokens.Resolve(ctx, fresh); err != nil || owner != 1 {
		t.Fatalf("resolve new = %d, %v", owner, err)
	}
	if _, err := svc.OpenShare(ctx, 3, SharePrefix+old); !errors.Is(err, ErrInvalidShareRef) {
		t.Fatalf("open with old token err = %v", err)
	}
	if svc.CanAccess(2, 1) {
		t.Fatal("rotation must revoke grants from the old link")
	}
}

func TestShareIssuedCountsCreatedTokensOnly(t *testing.T) {
	m := metrics.New()
	svc := New(newTestStore(t), Options{Metrics: m, NewToken: sequenceTokens("tok")})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.ShareRef(ctx, 1); err != nil {
			t.Fatalf("share ref: %v", err)
		}
	}
	if got := testutil.ToFloat64(m.Shares.WithLabelValues("issued")); got != 1 {
		t.Fatalf("issued = %v, want 1", got)
	}

	if _, err := svc.RotateShare(ctx, 1); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := svc.ShareRef(ctx, 1); err != nil {
		t.Fatalf("share ref: %v", err)
	}
	if got := testutil.ToFloat64(m.Shares.WithLabelValues("issued")); got != 1 {
		t.Fatalf("issued after rotate = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Shares.WithLabelValues("rotated")); got != 1 {
		t.Fatalf("rotated = %v, want 1", got)
	}
}

func TestSharedListCrossViewerDelete(t *testing.T) {
	svc := New(newTestStore(t), Options{})
	ctx := context.Background()
	const owner, viewer = int64(10), int64(20)

	_, _ = svc.AddProduct(ctx, owner, "Milk")
	_, _ = svc.AddProduct(ctx, owner, "Bread")
	items, _ := svc.List(ctx, owner)

	if _, err := svc.Delete(ctx, viewer, owner, items[0].ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete without grant err = %v", err)
	}

	ref, _ := svc.ShareRef(ctx, owner)
	got, err := svc.OpenShare(ctx, viewer, SharePrefix+ref)
	if err != nil || got != owner {
		t.Fatalf("open = %d, %v", got, err)
	}
	seen, err := svc.ViewList(ctx, viewer, owner)
	if err != nil || fmt.Sprint(names(seen)) != "[Milk Bread]" {
		t.Fatalf("viewer sees %v, %v", names(seen), err)
	}
	if ok, err := svc.Delete(ctx, viewer, owner, items[0].ID); err != nil || !ok {
		t.Fatalf("viewer delete = %v, %v", ok, err)
	}

	left, _ := svc.List(ctx, owner)
	if fmt.Sprint(names(left)) != "[Bread]" {
		t.Fatalf("owner list = %v", names(left))
	}
}

func TestOpenShareOwnerIDMode(t *testing.T) {
	svc := New(newTestStore(t), Options{ShareMode: "OWNER_ID"})
	ctx := context.Background()
	if svc.ShareMode() != ShareModeOwnerID {
		t.Fatalf("mode = %q", svc.ShareMode())
	}

	ref, _ := svc.ShareRef(ctx, 42)
	if ref != "42" {
		t.Fatalf("ref = %q", ref)
	}
	if owner, err := svc.OpenShare(ctx, 7, "share_42"); err != nil || owner != 42 {
		t.Fatalf("open = %d, %v", owner, err)
	}
	for _, bad := range []string{"share_abc", "share_", "share_-5", "other_42", ""} {
		if _, err := svc.OpenShare(ctx, 7, bad); !errors.Is(err, ErrInvalidShareRef) {
			t.Errorf("OpenShare(%q) err = %v", bad, err)
		}
	}
	if _, err := svc.RotateShare(ctx, 42); !errors.Is(err, ErrRotateUnsupported) {
		t.Fatalf("rotate err = %v", err)
	}
}

func TestNewShareTokenShape(t *testing.T) {
	a, b := NewShareToken(), NewShareToken()
	if len(a) != 32 || a == b {
		t.Fatalf("tokens %q %q", a, b)
	}
	for _, r := range a {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("token %q is not hex", a)
		}
	}
}

func TestSerializedAddsUnderConcurrency(t *testing.T) {
	store := newTestStore(t)
	svc := New(store, Options{Serialize: true})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddProduct(ctx, 1, "milk"); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	items, _ := svc.List(ctx, 1)
	entry, _ := store.History.Get(ctx, 1, "Milk")
	if len(items) != 10 || entry.Count != 10 {
		t.Fatalf("items=%d count=%d, want 10/10", len(items), entry.Count)
	}
	if svc.locks.size() != 0 {
		t.Fatalf("owner locks leaked: %d", svc.locks.size())
	}
}
