// Package testutil provides shared test fixtures, including an in-memory
// stand-in for the NutriTrack backend.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/client"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/session"
)

// Token is the bearer token the fake backend accepts.
const Token = "test-token"

// Oats returns a fixture catalog entry with a per-100g profile.
func Oats() models.FoodReference {
	return models.FoodReference{
		ID:             uuid.MustParse("0b5e8d6e-1111-4a61-9b2e-000000000001"),
		Name:           "Aveia em flocos",
		CaloriesPer100: 389,
		ProteinPer100:  16.9,
		CarbPer100:     66.3,
		FatPer100:      6.9,
	}
}

// ChickenBreast returns a fixture catalog entry.
func ChickenBreast() models.FoodReference {
	return models.FoodReference{
		ID:             uuid.MustParse("0b5e8d6e-1111-4a61-9b2e-000000000002"),
		Name:           "Peito de frango grelhado",
		CaloriesPer100: 165,
		ProteinPer100:  31,
		CarbPer100:     0,
		FatPer100:      3.6,
	}
}

// Banana returns a fixture catalog entry.
func Banana() models.FoodReference {
	return models.FoodReference{
		ID:             uuid.MustParse("0b5e8d6e-1111-4a61-9b2e-000000000003"),
		Name:           "Banana prata",
		CaloriesPer100: 89,
		ProteinPer100:  1.1,
		CarbPer100:     22.8,
		FatPer100:      0.3,
	}
}

// ItemRecord is one stored meal item, in wire shape.
type ItemRecord struct {
	AlimentoID uuid.UUID
	Quantidade float64
	Unidade    string
}

// MealRecord is one stored meal, in wire shape.
type MealRecord struct {
	ID       uuid.UUID
	Tipo     string
	DataHora time.Time
	Itens    []ItemRecord
}

// Backend is an in-memory NutriTrack server for tests. It speaks the same
// routes and JSON as the real backend and enforces bearer auth.
type Backend struct {
	UserID uuid.UUID

	mu    sync.Mutex
	foods map[uuid.UUID]models.FoodReference
	meals map[uuid.UUID]MealRecord

	// WriteStatus, when non-zero, makes every meal write respond with
	// that status instead of succeeding.
	WriteStatus int

	// SearchQueries records the nome parameter of every catalog search.
	SearchQueries []string
}

// NewBackend creates a backend pre-seeded with the fixture foods.
func NewBackend() *Backend {
	b := &Backend{
		UserID: uuid.New(),
		foods:  make(map[uuid.UUID]models.FoodReference),
		meals:  make(map[uuid.UUID]MealRecord),
	}
	for _, f := range []models.FoodReference{Oats(), ChickenBreast(), Banana()} {
		b.foods[f.ID] = f
	}
	return b
}

// AddFood registers an extra catalog entry.
func (b *Backend) AddFood(f models.FoodReference) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.foods[f.ID] = f
}

// SeedMeal stores a meal record directly, bypassing the HTTP surface, and
// returns its id.
func (b *Backend) SeedMeal(tipo string, at time.Time, items ...ItemRecord) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	b.meals[id] = MealRecord{ID: id, Tipo: tipo, DataHora: at, Itens: items}
	return id
}

// MealCount reports how many meal records the backend holds.
func (b *Backend) MealCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.meals)
}

// Meal returns the stored record for id.
func (b *Backend) Meal(id uuid.UUID) (MealRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.meals[id]
	return rec, ok
}

// Router builds the backend's HTTP surface.
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/v1/auth/login", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Email == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": Token})
	})

	r.Group(func(r chi.Router) {
		r.Use(b.requireAuth)

		r.Get("/api/v1/alimentos", b.handleSearch)
		r.Get("/api/v1/alimentos/{id}", b.handleFood)
		r.Get("/api/v1/refeicoes/usuario/{userID}", b.handleList)
		r.Post("/api/v1/refeicoes/{userID}", b.handleCreate)
		r.Put("/api/v1/refeicoes/{userID}/{id}", b.handleUpdate)
		r.Delete("/api/v1/refeicoes/{userID}/{id}", b.handleDelete)
	})

	return r
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+Token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (b *Backend) handleSearch(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("nome")

	b.mu.Lock()
	b.SearchQueries = append(b.SearchQueries, name)
	var content []map[string]any
	for _, f := range b.foods {
		if !strings.Contains(strings.ToLower(f.Name), strings.ToLower(name)) {
			continue
		}
		content = append(content, foodJSON(f))
	}
	b.mu.Unlock()

	if content == nil {
		content = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content":       content,
		"totalElements": len(content),
	})
}

func (b *Backend) handleFood(w http.ResponseWriter, req *http.Request) {
	id, err := uuid.Parse(chi.URLParam(req, "id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	f, ok := b.foods[id]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, foodJSON(f))
}

func (b *Backend) handleList(w http.ResponseWriter, req *http.Request) {
	start, err1 := time.Parse(time.RFC3339, req.URL.Query().Get("start"))
	end, err2 := time.Parse(time.RFC3339, req.URL.Query().Get("end"))
	if err1 != nil || err2 != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	var out []map[string]any
	for _, rec := range b.meals {
		if rec.DataHora.Before(start) || rec.DataHora.After(end) {
			continue
		}
		out = append(out, b.mealJSON(rec))
	}
	b.mu.Unlock()

	if out == nil {
		out = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreate(w http.ResponseWriter, req *http.Request) {
	if b.WriteStatus != 0 {
		writeJSON(w, b.WriteStatus, map[string]string{"message": "induced failure"})
		return
	}
	var body mealRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec := body.toRecord(uuid.New())

	b.mu.Lock()
	b.meals[rec.ID] = rec
	payload := b.mealJSON(rec)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, payload)
}

func (b *Backend) handleUpdate(w http.ResponseWriter, req *http.Request) {
	if b.WriteStatus != 0 {
		writeJSON(w, b.WriteStatus, map[string]string{"message": "induced failure"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(req, "id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body mealRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	if _, ok := b.meals[id]; !ok {
		b.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rec := body.toRecord(id)
	b.meals[id] = rec
	payload := b.mealJSON(rec)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) handleDelete(w http.ResponseWriter, req *http.Request) {
	if b.WriteStatus != 0 {
		writeJSON(w, b.WriteStatus, map[string]string{"message": "induced failure"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(req, "id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	_, ok := b.meals[id]
	delete(b.meals, id)
	b.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mealRequest struct {
	Tipo     string    `json:"tipo"`
	DataHora time.Time `json:"dataHora"`
	Itens    []struct {
		AlimentoID uuid.UUID `json:"alimentoId"`
		Quantidade float64   `json:"quantidade"`
		Unidade    string    `json:"unidade"`
	} `json:"itens"`
}

func (r mealRequest) toRecord(id uuid.UUID) MealRecord {
	rec := MealRecord{ID: id, Tipo: r.Tipo, DataHora: r.DataHora}
	for _, it := range r.Itens {
		rec.Itens = append(rec.Itens, ItemRecord{
			AlimentoID: it.AlimentoID,
			Quantidade: it.Quantidade,
			Unidade:    it.Unidade,
		})
	}
	return rec
}

// mealJSON renders a record the way the backend does: each item embeds
// only the food's id and name.
func (b *Backend) mealJSON(rec MealRecord) map[string]any {
	items := make([]map[string]any, 0, len(rec.Itens))
	for _, it := range rec.Itens {
		name := ""
		if f, ok := b.foods[it.AlimentoID]; ok {
			name = f.Name
		}
		items = append(items, map[string]any{
			"id":         uuid.New(),
			"alimento":   map[string]any{"id": it.AlimentoID, "nome": name},
			"quantidade": it.Quantidade,
			"unidade":    it.Unidade,
		})
	}
	return map[string]any{
		"id":       rec.ID,
		"tipo":     rec.Tipo,
		"dataHora": rec.DataHora.UTC().Format(time.RFC3339),
		"itens":    items,
	}
}

func foodJSON(f models.FoodReference) map[string]any {
	return map[string]any{
		"id":            f.ID,
		"nome":          f.Name,
		"calorias":      f.CaloriesPer100,
		"proteinasG":    f.ProteinPer100,
		"carboidratosG": f.CarbPer100,
		"gordurasG":     f.FatPer100,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Env bundles a running fake backend with a client authenticated against it.
type Env struct {
	Backend *Backend
	Server  *httptest.Server
	Session *session.Session
	Client  *client.Client
}

// NewEnv starts a fake backend and returns a client whose session is
// already populated. The server is torn down with the test.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	backend := NewBackend()
	srv := httptest.NewServer(backend.Router())
	t.Cleanup(srv.Close)

	sess := session.New()
	sess.Populate(backend.UserID, Token)

	return &Env{
		Backend: backend,
		Server:  srv,
		Session: sess,
		Client:  client.New(srv.URL, 5*time.Second, sess),
	}
}
