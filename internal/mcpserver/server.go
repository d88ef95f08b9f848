// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes Nutriboard tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nutriboard/internal/board"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/nutrition"
)

// Catalog is the food lookup surface the tools use. Tool calls are
// discrete, so lookups go straight to the backend without debouncing.
type Catalog interface {
	SearchFoods(ctx context.Context, name string, size int) ([]models.FoodReference, error)
	Food(ctx context.Context, id uuid.UUID) (models.FoodReference, error)
}

// Server wraps the MCP server with Nutriboard tools.
type Server struct {
	mcp     *server.MCPServer
	board   *board.Board
	catalog Catalog
}

// New creates a new MCP server with all Nutriboard tools registered.
func New(b *board.Board, catalog Catalog) *Server {
	s := &Server{board: b, catalog: catalog}

	s.mcp = server.NewMCPServer(
		"Nutriboard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_foods",
		mcp.WithDescription("Search the food catalog by name. Returns foods with their nutrient profile per 100 base units."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Food name to search for")),
	), s.searchFoods)

	s.mcp.AddTool(mcp.NewTool("get_board",
		mcp.WithDescription("Return today's meal board: every meal slot with its items and macro subtotals."),
	), s.getBoard)

	s.mcp.AddTool(mcp.NewTool("log_food",
		mcp.WithDescription("Log a food into a meal slot on today's board and persist it. "+
			"Meal slots: CAFE_MANHA, ALMOCO, JANTAR, LANCHE, CEIA, POS_TREINO, OUTRO (English aliases like 'breakfast' work too). "+
			"Units: GRAMA, MILILITRO, UNIDADE, FATIA, XICARA, COLHER_SOPA, PEDACO."),
		mcp.WithString("food_id", mcp.Required(), mcp.Description("Catalog id of the food (UUID, from search_foods)")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("Quantity in the chosen unit; nutrient math scales by quantity/100")),
		mcp.WithString("unit", mcp.Description("Measurement unit, defaults to GRAMA")),
		mcp.WithString("meal", mcp.Required(), mcp.Description("Target meal slot")),
	), s.logFood)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchFoods(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	foods, err := s.catalog.SearchFoods(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(foods, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type boardSlotView struct {
	Slot     models.MealType `json:"slot"`
	Items    []boardItemView `json:"items"`
	Calories int             `json:"calories"`
	ProteinG float64         `json:"protein_g"`
	CarbG    float64         `json:"carb_g"`
	FatG     float64         `json:"fat_g"`
}

type boardItemView struct {
	Food     string             `json:"food"`
	Quantity float64            `json:"quantity"`
	Unit     models.MeasureUnit `json:"unit"`
	Calories int                `json:"calories"`
}

func (s *Server) getBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var view []boardSlotView
	for _, m := range s.board.Meals() {
		slot := boardSlotView{Slot: m.Type}
		for _, it := range m.Items {
			facts, err := nutrition.ItemFacts(it)
			if err != nil {
				continue
			}
			slot.Items = append(slot.Items, boardItemView{
				Food:     it.Food.Name,
				Quantity: it.Quantity,
				Unit:     it.Unit,
				Calories: nutrition.DisplayCalories(facts),
			})
		}
		total := nutrition.MealFacts(m)
		slot.Calories = nutrition.DisplayCalories(total)
		slot.ProteinG = nutrition.DisplayGrams(total.ProteinG)
		slot.CarbG = nutrition.DisplayGrams(total.CarbG)
		slot.FatG = nutrition.DisplayGrams(total.FatG)
		view = append(view, slot)
	}
	if len(view) == 0 {
		return mcp.NewToolResultText("the board is empty"), nil
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) logFood(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawID, err := req.RequireString("food_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	quantity, err := req.RequireFloat("quantity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawMeal, err := req.RequireString("meal")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid food id: %v", err)), nil
	}
	slot, err := models.ParseMealType(rawMeal)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	unit := models.UnitGram
	if raw := req.GetString("unit", ""); raw != "" {
		unit, err = models.ParseMeasureUnit(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	food, err := s.catalog.Food(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meal, err := s.board.AddItem(ctx, slot, models.MealItem{Food: food, Quantity: quantity, Unit: unit})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	total := nutrition.MealFacts(meal)
	return mcp.NewToolResultText(fmt.Sprintf("logged %s (%g %s) into %s; slot subtotal is now %d kcal",
		food.Name, quantity, unit.Label(), slot, nutrition.DisplayCalories(total))), nil
}
