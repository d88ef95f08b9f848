package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/client"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/session"
	"github.com/starford/nutriboard/internal/testutil"
)

func TestLogin(t *testing.T) {
	env := testutil.NewEnv(t)

	// Login is the one unauthenticated call.
	anon := client.New(env.Server.URL, 5*time.Second, session.New())
	token, err := anon.Login(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != testutil.Token {
		t.Errorf("token = %q, want %q", token, testutil.Token)
	}
}

func TestSearchFoods(t *testing.T) {
	env := testutil.NewEnv(t)

	foods, err := env.Client.SearchFoods(context.Background(), "aveia", 20)
	if err != nil {
		t.Fatalf("SearchFoods failed: %v", err)
	}
	if len(foods) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(foods))
	}
	if foods[0].Name != testutil.Oats().Name || foods[0].CaloriesPer100 != 389 {
		t.Errorf("unexpected food mapping: %+v", foods[0])
	}

	if got := env.Backend.SearchQueries; len(got) != 1 || got[0] != "aveia" {
		t.Errorf("backend saw queries %v, want [aveia]", got)
	}

	none, err := env.Client.SearchFoods(context.Background(), "xyzzy", 20)
	if err != nil {
		t.Fatalf("SearchFoods failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no hits, got %d", len(none))
	}
}

func TestRequestsRequireSession(t *testing.T) {
	env := testutil.NewEnv(t)
	anon := client.New(env.Server.URL, 5*time.Second, session.New())

	// The client refuses before issuing the request.
	if _, err := anon.SearchFoods(context.Background(), "aveia", 20); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if len(env.Backend.SearchQueries) != 0 {
		t.Error("unauthenticated search must not reach the backend")
	}

	// A stale token is rejected server-side and maps to the same error.
	stale := session.New()
	stale.Populate(env.Backend.UserID, "expired-token")
	c := client.New(env.Server.URL, 5*time.Second, stale)
	if _, err := c.SearchFoods(context.Background(), "aveia", 20); !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated for stale token, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	env := testutil.NewEnv(t)

	if _, err := env.Client.Food(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown food, got %v", err)
	}

	env.Backend.WriteStatus = 500
	meal := &models.Meal{
		Type:     models.MealLunch,
		LoggedAt: time.Now().UTC(),
		Items:    []models.MealItem{{Food: testutil.Oats(), Quantity: 100, Unit: models.UnitGram}},
	}
	_, err := env.Client.CreateMeal(context.Background(), meal)
	var apiErr *apperr.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 500 || apiErr.Body == "" {
		t.Errorf("APIError = %+v, want status 500 with a body", apiErr)
	}
}

func TestUpdateMealRequiresRemoteID(t *testing.T) {
	env := testutil.NewEnv(t)

	meal := &models.Meal{
		Type:  models.MealLunch,
		Items: []models.MealItem{{Food: testutil.Oats(), Quantity: 100, Unit: models.UnitGram}},
	}
	if _, err := env.Client.UpdateMeal(context.Background(), meal); !errors.Is(err, apperr.ErrNotPersisted) {
		t.Errorf("expected ErrNotPersisted, got %v", err)
	}
}

func TestCreateThenListRoundTrip(t *testing.T) {
	env := testutil.NewEnv(t)

	logged := time.Now().UTC().Truncate(time.Second)
	meal := &models.Meal{
		Type:     models.MealPostWorkout,
		LoggedAt: logged,
		Items: []models.MealItem{
			{Food: testutil.ChickenBreast(), Quantity: 150, Unit: models.UnitGram},
			{Food: testutil.Banana(), Quantity: 1, Unit: models.UnitPiece},
		},
	}

	created, err := env.Client.CreateMeal(context.Background(), meal)
	if err != nil {
		t.Fatalf("CreateMeal failed: %v", err)
	}
	if !created.Persisted() {
		t.Fatal("created meal must carry the backend id")
	}

	meals, err := env.Client.MealsBetween(context.Background(), logged.Add(-time.Hour), logged.Add(time.Hour))
	if err != nil {
		t.Fatalf("MealsBetween failed: %v", err)
	}
	if len(meals) != 1 {
		t.Fatalf("expected 1 meal, got %d", len(meals))
	}
	got := meals[0]
	if got.Type != models.MealPostWorkout || len(got.Items) != 2 {
		t.Fatalf("round trip mangled the meal: %+v", got)
	}
	// Profiles are resolved through the catalog on the way back.
	if got.Items[0].Food.ProteinPer100 != 31 {
		t.Errorf("protein/100 = %v, want 31", got.Items[0].Food.ProteinPer100)
	}
	if got.Items[1].Unit != models.UnitPiece {
		t.Errorf("unit = %s, want %s", got.Items[1].Unit, models.UnitPiece)
	}

	// A window that excludes the meal returns nothing.
	empty, err := env.Client.MealsBetween(context.Background(), logged.Add(2*time.Hour), logged.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("MealsBetween failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no meals outside the window, got %d", len(empty))
	}
}

func TestDeleteMeal(t *testing.T) {
	env := testutil.NewEnv(t)
	id := env.Backend.SeedMeal("CEIA", time.Now().UTC(),
		testutil.ItemRecord{AlimentoID: testutil.Banana().ID, Quantidade: 1, Unidade: "UNIDADE"})

	if err := env.Client.DeleteMeal(context.Background(), id); err != nil {
		t.Fatalf("DeleteMeal failed: %v", err)
	}
	if env.Backend.MealCount() != 0 {
		t.Error("record should be gone after delete")
	}

	if err := env.Client.DeleteMeal(context.Background(), id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a second delete, got %v", err)
	}
}
