// Package importer watches a drop directory for JSON meal files and logs
// them through the meal board.
//
// A file describes one meal for today:
//
//	{
//	  "tipo": "ALMOCO",
//	  "itens": [
//	    {"alimentoId": "…uuid…", "quantidade": 150, "unidade": "GRAMA"}
//	  ]
//	}
//
// Successfully imported files are renamed with an ".imported" suffix,
// files that fail validation with ".rejected". Files that fail for
// transient reasons (backend unreachable) are left in place and retried
// on the next sweep.
package importer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/models"
)

// sweepDebounce batches bursts of file events into one directory sweep.
const sweepDebounce = 200 * time.Millisecond

// Board is the commit surface the importer logs through.
type Board interface {
	AddItem(ctx context.Context, slot models.MealType, item models.MealItem) (*models.Meal, error)
}

// FoodResolver resolves a catalog id to its full reference profile.
type FoodResolver interface {
	Food(ctx context.Context, id uuid.UUID) (models.FoodReference, error)
}

type mealFile struct {
	Tipo  string `json:"tipo"`
	Itens []struct {
		AlimentoID string  `json:"alimentoId"`
		Quantidade float64 `json:"quantidade"`
		Unidade    string  `json:"unidade"`
	} `json:"itens"`
}

func (f mealFile) validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Tipo, validation.Required),
		validation.Field(&f.Itens, validation.Required, validation.Length(1, 0)),
	)
}

// Importer drives imports for one drop directory.
type Importer struct {
	board  Board
	foods  FoodResolver
	dir    string
	logger *slog.Logger
}

// New creates an importer for dir.
func New(board Board, foods FoodResolver, dir string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{board: board, foods: foods, dir: dir, logger: logger}
}

// Sweep processes every pending .json file in the drop directory once.
// It returns the number of files imported successfully.
func (imp *Importer) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(imp.dir)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(imp.dir, entry.Name())
		if err := imp.processFile(ctx, path); err != nil {
			imp.logger.Warn("importer: file failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		imported++
	}
	return imported, nil
}

// Watch starts an fsnotify watcher on the drop directory and sweeps it
// until ctx is cancelled. Event bursts are debounced into one sweep.
func (imp *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(imp.dir); err != nil {
		return err
	}

	imp.logger.Info("importer: watching", slog.String("dir", imp.dir))

	// Pick up anything dropped before the watcher started.
	if _, err := imp.Sweep(ctx); err != nil {
		imp.logger.Warn("importer: initial sweep failed", slog.String("error", err.Error()))
	}

	var sweepTimer *time.Timer
	var sweepCh <-chan time.Time

	scheduleSweep := func() {
		if sweepTimer == nil {
			sweepTimer = time.NewTimer(sweepDebounce)
			sweepCh = sweepTimer.C
		} else {
			sweepTimer.Reset(sweepDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if sweepTimer != nil {
				sweepTimer.Stop()
			}
			imp.logger.Info("importer: stopped")
			return nil

		case <-sweepCh:
			if _, err := imp.Sweep(ctx); err != nil {
				imp.logger.Warn("importer: sweep failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleSweep()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			imp.logger.Error("importer: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func (imp *Importer) processFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var mf mealFile
	if err := json.Unmarshal(data, &mf); err != nil {
		imp.reject(path)
		return err
	}
	if err := mf.validate(); err != nil {
		imp.reject(path)
		return err
	}
	slot, err := models.ParseMealType(mf.Tipo)
	if err != nil {
		imp.reject(path)
		return err
	}

	for _, raw := range mf.Itens {
		id, err := uuid.Parse(raw.AlimentoID)
		if err != nil {
			imp.reject(path)
			return err
		}
		unit, err := models.ParseMeasureUnit(raw.Unidade)
		if err != nil {
			imp.reject(path)
			return err
		}
		if raw.Quantidade <= 0 {
			imp.reject(path)
			return apperr.ErrInvalidQuantity
		}
		food, err := imp.foods.Food(ctx, id)
		if err != nil {
			// Transient or backend-side failure: leave the file for retry.
			return err
		}
		item := models.MealItem{Food: food, Quantity: raw.Quantidade, Unit: unit}
		if _, err := imp.board.AddItem(ctx, slot, item); err != nil {
			return err
		}
	}

	if err := os.Rename(path, path+".imported"); err != nil {
		return err
	}
	imp.logger.Info("importer: imported",
		slog.String("path", path),
		slog.String("slot", string(slot)),
		slog.Int("items", len(mf.Itens)))
	return nil
}

func (imp *Importer) reject(path string) {
	if err := os.Rename(path, path+".rejected"); err != nil {
		imp.logger.Warn("importer: rename rejected file failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
