package board_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/board"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/nutrition"
	"github.com/starford/nutriboard/internal/testutil"
)

func dayWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-12 * time.Hour), now.Add(12 * time.Hour)
}

func oatsItem(qty float64) models.MealItem {
	return models.MealItem{Food: testutil.Oats(), Quantity: qty, Unit: models.UnitGram}
}

func TestLoadResolvesProfiles(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Backend.SeedMeal("ALMOCO", time.Now().UTC(),
		testutil.ItemRecord{AlimentoID: testutil.Oats().ID, Quantidade: 50, Unidade: "GRAMA"})

	b := board.New(env.Client, nil)
	start, end := dayWindow()
	if err := b.Load(context.Background(), start, end); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m, ok := b.Meal(models.MealLunch)
	if !ok {
		t.Fatal("expected lunch slot to be populated")
	}
	if len(m.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(m.Items))
	}
	// The list endpoint only carries the food's id and name; macros must
	// come from the catalog lookup.
	if m.Items[0].Food.CaloriesPer100 != 389 {
		t.Errorf("nutrient profile not resolved: kcal/100 = %v", m.Items[0].Food.CaloriesPer100)
	}

	sub := b.Subtotal(models.MealLunch)
	if got := nutrition.DisplayCalories(sub); got != 195 {
		t.Errorf("50g of oats should display 195 kcal, got %d", got)
	}
}

func TestLoadAbsentSlotsStayAbsent(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Backend.SeedMeal("JANTAR", time.Now().UTC(),
		testutil.ItemRecord{AlimentoID: testutil.Banana().ID, Quantidade: 100, Unidade: "UNIDADE"})

	b := board.New(env.Client, nil)
	start, end := dayWindow()
	if err := b.Load(context.Background(), start, end); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, ok := b.Meal(models.MealBreakfast); ok {
		t.Error("breakfast slot should be absent, not empty")
	}
	if got := len(b.Meals()); got != 1 {
		t.Errorf("expected exactly 1 present meal, got %d", got)
	}
	if sub := b.Subtotal(models.MealBreakfast); sub != (nutrition.Facts{}) {
		t.Errorf("absent slot subtotal should be zero, got %+v", sub)
	}
}

func TestLoadDuplicateSlotLatestWins(t *testing.T) {
	env := testutil.NewEnv(t)
	now := time.Now().UTC()
	env.Backend.SeedMeal("ALMOCO", now.Add(-2*time.Hour),
		testutil.ItemRecord{AlimentoID: testutil.Oats().ID, Quantidade: 30, Unidade: "GRAMA"})
	latest := env.Backend.SeedMeal("ALMOCO", now.Add(-1*time.Hour),
		testutil.ItemRecord{AlimentoID: testutil.Oats().ID, Quantidade: 70, Unidade: "GRAMA"})

	b := board.New(env.Client, nil)
	start, end := dayWindow()
	if err := b.Load(context.Background(), start, end); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m, ok := b.Meal(models.MealLunch)
	if !ok {
		t.Fatal("expected lunch slot to be populated")
	}
	if m.RemoteID != latest {
		t.Errorf("expected latest record %s to win, got %s", latest, m.RemoteID)
	}
	if m.Items[0].Quantity != 70 {
		t.Errorf("expected the 70g record, got %vg", m.Items[0].Quantity)
	}
}

func TestLoadReplacesPreviousState(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)
	start, end := dayWindow()

	if _, err := b.AddItem(context.Background(), models.MealSnack, oatsItem(40)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := b.Load(context.Background(), start, end); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	// The snack meal persisted, so a reload brings it back; loading is
	// idempotent rather than additive.
	if err := b.Load(context.Background(), start, end); err != nil {
		t.Fatalf("second reload failed: %v", err)
	}
	m, ok := b.Meal(models.MealSnack)
	if !ok {
		t.Fatal("expected snack slot after reload")
	}
	if len(m.Items) != 1 {
		t.Errorf("reload duplicated items: got %d", len(m.Items))
	}
}

func TestAddItemCreatesThenExtends(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	created, err := b.AddItem(context.Background(), models.MealBreakfast, oatsItem(50))
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if !created.Persisted() {
		t.Fatal("created meal must carry the backend id")
	}
	if env.Backend.MealCount() != 1 {
		t.Fatalf("expected 1 backend record, got %d", env.Backend.MealCount())
	}

	extended, err := b.AddItem(context.Background(), models.MealBreakfast,
		models.MealItem{Food: testutil.Banana(), Quantity: 1, Unit: models.UnitPiece})
	if err != nil {
		t.Fatalf("second AddItem failed: %v", err)
	}
	if extended.RemoteID != created.RemoteID {
		t.Error("extending a slot must update the same backend record")
	}
	if len(extended.Items) != 2 {
		t.Fatalf("expected 2 items after extend, got %d", len(extended.Items))
	}

	rec, ok := env.Backend.Meal(created.RemoteID)
	if !ok {
		t.Fatal("backend record vanished")
	}
	if len(rec.Itens) != 2 {
		t.Errorf("backend should hold the full replaced list, got %d items", len(rec.Itens))
	}
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(0)); !errors.Is(err, apperr.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if env.Backend.MealCount() != 0 {
		t.Error("invalid item must not reach the backend")
	}
}

func TestAddItemFailureLeavesSlotUntouched(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealDinner, oatsItem(50)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	env.Backend.WriteStatus = 500
	_, err := b.AddItem(context.Background(), models.MealDinner, oatsItem(30))
	if err == nil {
		t.Fatal("expected the induced failure to surface")
	}
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Errorf("expected APIError with status 500, got %v", err)
	}

	m, ok := b.Meal(models.MealDinner)
	if !ok {
		t.Fatal("slot vanished after failed add")
	}
	if len(m.Items) != 1 {
		t.Errorf("failed add leaked into the slot: %d items", len(m.Items))
	}
	if b.Dirty(models.MealDinner) {
		t.Error("slot should match its baseline after a failed add")
	}
}

func TestUpdateQuantityClampsToStep(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(100)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := b.AddItem(context.Background(), models.MealLunch,
		models.MealItem{Food: testutil.Banana(), Quantity: 2, Unit: models.UnitPiece}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	// Grams clamp at 10, unit counts clamp at 1.
	if err := b.UpdateQuantity(models.MealLunch, 0, 3); err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}
	if err := b.UpdateQuantity(models.MealLunch, 1, 0); err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}

	m, _ := b.Meal(models.MealLunch)
	if m.Items[0].Quantity != 10 {
		t.Errorf("gram quantity should clamp to 10, got %v", m.Items[0].Quantity)
	}
	if m.Items[1].Quantity != 1 {
		t.Errorf("piece quantity should clamp to 1, got %v", m.Items[1].Quantity)
	}

	if !b.Dirty(models.MealLunch) {
		t.Error("local quantity edit must mark the slot dirty")
	}
	if env.Backend.MealCount() != 1 {
		t.Error("UpdateQuantity must not issue a request")
	}

	if err := b.UpdateQuantity(models.MealLunch, 5, 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for bad index, got %v", err)
	}
	if err := b.UpdateQuantity(models.MealSupper, 0, 10); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for absent slot, got %v", err)
	}
}

func TestSaveMealPushesFullReplace(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	created, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(100))
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := b.UpdateQuantity(models.MealLunch, 0, 150); err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}

	saved, err := b.SaveMeal(context.Background(), models.MealLunch)
	if err != nil {
		t.Fatalf("SaveMeal failed: %v", err)
	}
	if saved.Items[0].Quantity != 150 {
		t.Errorf("saved quantity = %v, want 150", saved.Items[0].Quantity)
	}
	if b.Dirty(models.MealLunch) {
		t.Error("slot should be clean after save")
	}

	rec, _ := env.Backend.Meal(created.RemoteID)
	if rec.Itens[0].Quantidade != 150 {
		t.Errorf("backend quantity = %v, want 150", rec.Itens[0].Quantidade)
	}
}

func TestSaveMealFailureKeepsLocalEdits(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(100)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := b.UpdateQuantity(models.MealLunch, 0, 150); err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}

	env.Backend.WriteStatus = 503
	if _, err := b.SaveMeal(context.Background(), models.MealLunch); err == nil {
		t.Fatal("expected the induced failure to surface")
	}

	// The edit is still there for a retry, and the slot is still dirty.
	m, _ := b.Meal(models.MealLunch)
	if m.Items[0].Quantity != 150 {
		t.Errorf("failed save must keep the local edit, got %v", m.Items[0].Quantity)
	}
	if !b.Dirty(models.MealLunch) {
		t.Error("slot must stay dirty after a failed save")
	}
}

func TestRemoveItemAndLastItemGuard(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	created, err := b.AddItem(context.Background(), models.MealDinner, oatsItem(50))
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := b.AddItem(context.Background(), models.MealDinner,
		models.MealItem{Food: testutil.ChickenBreast(), Quantity: 120, Unit: models.UnitGram}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	last, err := b.IsLastItem(models.MealDinner, 0)
	if err != nil || last {
		t.Errorf("IsLastItem with 2 items = (%v, %v), want (false, nil)", last, err)
	}

	if err := b.RemoveItem(context.Background(), models.MealDinner, 0); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	rec, _ := env.Backend.Meal(created.RemoteID)
	if len(rec.Itens) != 1 {
		t.Fatalf("backend should hold 1 item after removal, got %d", len(rec.Itens))
	}

	last, err = b.IsLastItem(models.MealDinner, 0)
	if err != nil || !last {
		t.Errorf("IsLastItem with 1 item = (%v, %v), want (true, nil)", last, err)
	}

	// The final item never leaves through RemoveItem.
	if err := b.RemoveItem(context.Background(), models.MealDinner, 0); !errors.Is(err, apperr.ErrLastItem) {
		t.Errorf("expected ErrLastItem, got %v", err)
	}
	if _, ok := b.Meal(models.MealDinner); !ok {
		t.Error("refused removal must not clear the slot")
	}
}

func TestRemoveItemFailureRollsBack(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealDinner, oatsItem(50)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := b.AddItem(context.Background(), models.MealDinner,
		models.MealItem{Food: testutil.ChickenBreast(), Quantity: 120, Unit: models.UnitGram}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	env.Backend.WriteStatus = 500
	if err := b.RemoveItem(context.Background(), models.MealDinner, 0); err == nil {
		t.Fatal("expected the induced failure to surface")
	}

	m, _ := b.Meal(models.MealDinner)
	if len(m.Items) != 2 {
		t.Errorf("failed removal must roll the slot back, got %d items", len(m.Items))
	}
}

func TestRemoveMeal(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealSupper, oatsItem(40)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := b.RemoveMeal(context.Background(), models.MealSupper); err != nil {
		t.Fatalf("RemoveMeal failed: %v", err)
	}
	if _, ok := b.Meal(models.MealSupper); ok {
		t.Error("slot should be absent after RemoveMeal")
	}
	if env.Backend.MealCount() != 0 {
		t.Error("backend record should be deleted")
	}

	if err := b.RemoveMeal(context.Background(), models.MealSupper); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for absent slot, got %v", err)
	}
}

func TestCancelEditRestoresBaseline(t *testing.T) {
	env := testutil.NewEnv(t)
	b := board.New(env.Client, nil)

	if _, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(100)); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := b.UpdateQuantity(models.MealLunch, 0, 250); err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}
	if !b.Dirty(models.MealLunch) {
		t.Fatal("slot should be dirty before cancel")
	}

	b.CancelEdit(models.MealLunch)

	m, _ := b.Meal(models.MealLunch)
	if m.Items[0].Quantity != 100 {
		t.Errorf("cancel should restore the confirmed quantity, got %v", m.Items[0].Quantity)
	}
	if b.Dirty(models.MealLunch) {
		t.Error("slot should be clean after cancel")
	}
}

// blockingRemote parks the first create until released, so a second
// mutation can be issued against the same slot while one is in flight.
type blockingRemote struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRemote) MealsBetween(context.Context, time.Time, time.Time) ([]models.Meal, error) {
	return nil, nil
}

func (r *blockingRemote) CreateMeal(_ context.Context, m *models.Meal) (*models.Meal, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	out := m.Clone()
	out.RemoteID = uuid.New()
	return out, nil
}

func (r *blockingRemote) UpdateMeal(_ context.Context, m *models.Meal) (*models.Meal, error) {
	return m.Clone(), nil
}

func (r *blockingRemote) DeleteMeal(context.Context, uuid.UUID) error { return nil }

func TestSlotBusyDuringInflightMutation(t *testing.T) {
	remote := &blockingRemote{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	b := board.New(remote, nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(50))
		done <- err
	}()

	<-remote.started
	if _, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(30)); !errors.Is(err, apperr.ErrSlotBusy) {
		t.Errorf("expected ErrSlotBusy while a request is in flight, got %v", err)
	}
	// A different slot is unaffected by lunch's in-flight request; it
	// would block on the same remote, so only check the busy flag path.
	if _, err := b.SaveMeal(context.Background(), models.MealLunch); !errors.Is(err, apperr.ErrSlotBusy) {
		t.Errorf("expected ErrSlotBusy from SaveMeal, got %v", err)
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatalf("first AddItem failed: %v", err)
	}

	// The guard clears once the request completes.
	if _, err := b.AddItem(context.Background(), models.MealLunch, oatsItem(30)); err != nil {
		t.Errorf("AddItem after release failed: %v", err)
	}
}
