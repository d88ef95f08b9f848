package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/models"
)

// Wire DTOs. Field names follow the backend's JSON serialization.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type foodDTO struct {
	ID            uuid.UUID `json:"id"`
	Nome          string    `json:"nome"`
	Calorias      float64   `json:"calorias"`
	ProteinasG    float64   `json:"proteinasG"`
	CarboidratosG float64   `json:"carboidratosG"`
	GordurasG     float64   `json:"gordurasG"`
}

type foodPageDTO struct {
	Content       []foodDTO `json:"content"`
	TotalElements int64     `json:"totalElements"`
}

// foodSummaryDTO is the trimmed food shape embedded in meal responses.
// It omits the nutrient profile, which the client resolves separately.
type foodSummaryDTO struct {
	ID   uuid.UUID `json:"id"`
	Nome string    `json:"nome"`
}

type mealItemRequestDTO struct {
	AlimentoID uuid.UUID `json:"alimentoId"`
	Quantidade float64   `json:"quantidade"`
	Unidade    string    `json:"unidade"`
}

type mealRequestDTO struct {
	Tipo     string               `json:"tipo"`
	DataHora time.Time            `json:"dataHora"`
	Itens    []mealItemRequestDTO `json:"itens"`
}

type mealItemResponseDTO struct {
	ID         uuid.UUID      `json:"id"`
	Alimento   foodSummaryDTO `json:"alimento"`
	Quantidade float64        `json:"quantidade"`
	Unidade    string         `json:"unidade"`
}

type mealResponseDTO struct {
	ID       uuid.UUID             `json:"id"`
	Tipo     string                `json:"tipo"`
	DataHora time.Time             `json:"dataHora"`
	Itens    []mealItemResponseDTO `json:"itens"`
}

func foodFromDTO(d foodDTO) models.FoodReference {
	return models.FoodReference{
		ID:             d.ID,
		Name:           d.Nome,
		CaloriesPer100: d.Calorias,
		ProteinPer100:  d.ProteinasG,
		CarbPer100:     d.CarboidratosG,
		FatPer100:      d.GordurasG,
	}
}

func mealToRequest(m *models.Meal) mealRequestDTO {
	items := make([]mealItemRequestDTO, len(m.Items))
	for i, it := range m.Items {
		items[i] = mealItemRequestDTO{
			AlimentoID: it.Food.ID,
			Quantidade: it.Quantity,
			Unidade:    string(it.Unit),
		}
	}
	return mealRequestDTO{
		Tipo:     string(m.Type),
		DataHora: m.LoggedAt,
		Itens:    items,
	}
}
