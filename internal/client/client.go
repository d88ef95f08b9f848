// Package client implements the REST client for the NutriTrack backend.
//
// Every call is a plain request/response fetch: no retries, no caching.
// Non-success statuses map onto the apperr taxonomy so callers can branch
// with errors.Is instead of inspecting HTTP details.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/session"
)

// foodResolveConcurrency bounds parallel catalog lookups during a board load.
const foodResolveConcurrency = 4

// Client talks to one NutriTrack deployment on behalf of one session.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Session
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration, sess *session.Session) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		session: sess,
	}
}

// Login exchanges credentials for a bearer token. It does not touch the
// session; the caller decides when to populate it.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, loginRequest{Email: email, Password: password}, &resp, false)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SearchFoods queries the catalog by name, returning up to size references.
func (c *Client) SearchFoods(ctx context.Context, name string, size int) ([]models.FoodReference, error) {
	q := url.Values{}
	q.Set("nome", name)
	q.Set("page", "0")
	q.Set("size", strconv.Itoa(size))

	var page foodPageDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/alimentos", q, nil, &page, true); err != nil {
		return nil, err
	}
	foods := make([]models.FoodReference, len(page.Content))
	for i, d := range page.Content {
		foods[i] = foodFromDTO(d)
	}
	return foods, nil
}

// Food fetches a single catalog entry by id.
func (c *Client) Food(ctx context.Context, id uuid.UUID) (models.FoodReference, error) {
	var d foodDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/alimentos/"+id.String(), nil, nil, &d, true); err != nil {
		return models.FoodReference{}, err
	}
	return foodFromDTO(d), nil
}

// MealsBetween returns the session user's meals in [start, end]. Meal
// responses embed only the food id and name, so the nutrient profiles are
// resolved through the catalog before the meals are returned.
func (c *Client) MealsBetween(ctx context.Context, start, end time.Time) ([]models.Meal, error) {
	userID, err := c.requireUser()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var records []mealResponseDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/refeicoes/usuario/"+userID.String(), q, nil, &records, true); err != nil {
		return nil, err
	}

	profiles, err := c.resolveProfiles(ctx, records)
	if err != nil {
		return nil, err
	}

	meals := make([]models.Meal, 0, len(records))
	for _, rec := range records {
		m, err := mealFromResponse(rec, profiles)
		if err != nil {
			return nil, err
		}
		meals = append(meals, *m)
	}
	return meals, nil
}

// CreateMeal persists a new meal and returns the backend's record.
func (c *Client) CreateMeal(ctx context.Context, m *models.Meal) (*models.Meal, error) {
	userID, err := c.requireUser()
	if err != nil {
		return nil, err
	}
	var resp mealResponseDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/refeicoes/"+userID.String(), nil, mealToRequest(m), &resp, true); err != nil {
		return nil, err
	}
	return mealFromResponse(resp, profilesFromMeal(m))
}

// UpdateMeal replaces the meal's full item list on the backend. Partial
// item patches do not exist in this contract.
func (c *Client) UpdateMeal(ctx context.Context, m *models.Meal) (*models.Meal, error) {
	userID, err := c.requireUser()
	if err != nil {
		return nil, err
	}
	if !m.Persisted() {
		return nil, apperr.ErrNotPersisted
	}
	var resp mealResponseDTO
	path := "/api/v1/refeicoes/" + userID.String() + "/" + m.RemoteID.String()
	if err := c.do(ctx, http.MethodPut, path, nil, mealToRequest(m), &resp, true); err != nil {
		return nil, err
	}
	return mealFromResponse(resp, profilesFromMeal(m))
}

// DeleteMeal removes a persisted meal. Success is the backend's empty-body
// no-content response.
func (c *Client) DeleteMeal(ctx context.Context, id uuid.UUID) error {
	userID, err := c.requireUser()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/refeicoes/"+userID.String()+"/"+id.String(), nil, nil, nil, true)
}

func (c *Client) requireUser() (uuid.UUID, error) {
	if !c.session.Authenticated() {
		return uuid.Nil, apperr.ErrNotAuthenticated
	}
	return c.session.UserID(), nil
}

// resolveProfiles fetches the catalog profile for every distinct food id
// referenced by the given meal records.
func (c *Client) resolveProfiles(ctx context.Context, records []mealResponseDTO) (map[uuid.UUID]models.FoodReference, error) {
	distinct := map[uuid.UUID]struct{}{}
	for _, rec := range records {
		for _, it := range rec.Itens {
			distinct[it.Alimento.ID] = struct{}{}
		}
	}
	ids := make([]uuid.UUID, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	profiles := make(map[uuid.UUID]models.FoodReference, len(ids))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(foodResolveConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			food, err := c.Food(gCtx, id)
			if err != nil {
				return fmt.Errorf("resolve food %s: %w", id, err)
			}
			mu.Lock()
			profiles[id] = food
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func profilesFromMeal(m *models.Meal) map[uuid.UUID]models.FoodReference {
	profiles := make(map[uuid.UUID]models.FoodReference, len(m.Items))
	for _, it := range m.Items {
		profiles[it.Food.ID] = it.Food
	}
	return profiles
}

func mealFromResponse(rec mealResponseDTO, profiles map[uuid.UUID]models.FoodReference) (*models.Meal, error) {
	mealType, err := models.ParseMealType(rec.Tipo)
	if err != nil {
		return nil, err
	}
	m := &models.Meal{
		Type:     mealType,
		RemoteID: rec.ID,
		LoggedAt: rec.DataHora,
		Items:    make([]models.MealItem, len(rec.Itens)),
	}
	for i, it := range rec.Itens {
		unit, err := models.ParseMeasureUnit(it.Unidade)
		if err != nil {
			return nil, err
		}
		food, ok := profiles[it.Alimento.ID]
		if !ok {
			food = models.FoodReference{ID: it.Alimento.ID, Name: it.Alimento.Nome}
		}
		m.Items[i] = models.MealItem{Food: food, Quantity: it.Quantidade, Unit: unit}
	}
	return m, nil
}

// do issues one request and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, authed bool) error {
	if authed && !c.session.Authenticated() {
		return apperr.ErrNotAuthenticated
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.session.Token())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.ErrNotAuthenticated
	case http.StatusNotFound:
		return apperr.ErrNotFound
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &apperr.APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
}
