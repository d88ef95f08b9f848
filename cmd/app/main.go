package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/google/uuid"

	"github.com/starford/nutriboard/internal"
	"github.com/starford/nutriboard/internal/apperr"
	"github.com/starford/nutriboard/internal/mcpserver"
	"github.com/starford/nutriboard/internal/models"
	"github.com/starford/nutriboard/internal/nutrition"
	"github.com/starford/nutriboard/internal/search"
	"github.com/starford/nutriboard/internal/staging"
	pkgconfig "github.com/starford/nutriboard/pkg/config"
)

func buildApp(cmd *cli.Command) (*internal.App, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfPresent(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return internal.NewApp(internal.WithConfig(cfg))
}

// dayRange returns the start and end of the tracked day. date is
// YYYY-MM-DD or empty for today.
func dayRange(date string) (time.Time, time.Time, error) {
	day := time.Now()
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
		day = parsed
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)
	end := start.Add(24*time.Hour - time.Second)
	return start, end, nil
}

func printBoard(app *internal.App) {
	meals := app.Board.Meals()
	if len(meals) == 0 {
		fmt.Println("the board is empty")
		return
	}
	for _, m := range meals {
		total := nutrition.MealFacts(m)
		fmt.Printf("%s — %d kcal (P %.1fg / C %.1fg / F %.1fg)\n",
			m.Type.Label(),
			nutrition.DisplayCalories(total),
			nutrition.DisplayGrams(total.ProteinG),
			nutrition.DisplayGrams(total.CarbG),
			nutrition.DisplayGrams(total.FatG))
		for i, it := range m.Items {
			facts, err := nutrition.ItemFacts(it)
			if err != nil {
				continue
			}
			fmt.Printf("  [%d] %s — %g %s, %d kcal\n",
				i, it.Food.Name, it.Quantity, it.Unit.Label(), nutrition.DisplayCalories(facts))
		}
	}
}

func printFoods(foods []models.FoodReference) {
	if len(foods) == 0 {
		fmt.Println("no foods found")
		return
	}
	for _, f := range foods {
		fmt.Printf("%s  %s — %g kcal / 100 (P %g / C %g / F %g)\n",
			f.ID, f.Name, f.CaloriesPer100, f.ProteinPer100, f.CarbPer100, f.FatPer100)
	}
}

// resolveFood accepts either a catalog UUID or a name; a name resolves to
// the first search hit.
func resolveFood(ctx context.Context, app *internal.App, ref string) (models.FoodReference, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return app.Client.Food(ctx, id)
	}
	foods, err := app.Client.SearchFoods(ctx, ref, app.Config.Search.PageSize)
	if err != nil {
		return models.FoodReference{}, err
	}
	if len(foods) == 0 {
		return models.FoodReference{}, fmt.Errorf("no food matches %q", ref)
	}
	return foods[0], nil
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	token, err := app.Client.Login(ctx, cmd.String("email"), cmd.String("password"))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "export NUTRIBOARD_TOKEN with this value (and NUTRIBOARD_USER_ID with your user id)")
	return nil
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if !cmd.Bool("interactive") {
		query := cmd.Args().First()
		if query == "" {
			return fmt.Errorf("usage: search <query> (or --interactive)")
		}
		foods, err := app.Client.SearchFoods(ctx, query, app.Config.Search.PageSize)
		if err != nil {
			return err
		}
		printFoods(foods)
		return nil
	}

	// Interactive mode: each input line goes through the debounced
	// searcher, so rapid edits collapse into one backend call.
	searcher := search.NewSearcher(app.Client, app.Config.Search.Debounce(), app.Config.Search.PageSize,
		func(query string, foods []models.FoodReference, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "search %q failed: %v\n", query, err)
				return
			}
			fmt.Printf("results for %q:\n", query)
			printFoods(foods)
		})
	defer searcher.Close()

	fmt.Fprintln(os.Stderr, "type to search (min 3 characters), Ctrl-D to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		searcher.Query(scanner.Text())
	}
	// Give the last debounced query a chance to land before closing.
	time.Sleep(app.Config.Search.Debounce() + time.Second)
	return scanner.Err()
}

func boardAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	start, end, err := dayRange(cmd.String("date"))
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}
	printBoard(app)
	return nil
}

func addAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	start, end, err := dayRange("")
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}

	food, err := resolveFood(ctx, app, cmd.String("food"))
	if err != nil {
		return err
	}

	sel := staging.NewSelection(app.Board)
	if last, ok, err := app.History.LastSlot(); err == nil && ok {
		sel.SetLastUsed(last)
	}

	var preset *models.MealType
	if raw := cmd.String("meal"); raw != "" {
		slot, err := models.ParseMealType(raw)
		if err != nil {
			return err
		}
		preset = &slot
	}
	sel.OpenFor(food, preset)

	if raw := cmd.String("unit"); raw != "" {
		unit, err := models.ParseMeasureUnit(raw)
		if err != nil {
			return err
		}
		if err := sel.ChangeUnit(unit); err != nil {
			return err
		}
	}
	if cmd.IsSet("qty") {
		if err := sel.ChangeQuantity(cmd.Float("qty")); err != nil {
			return err
		}
	}

	preview, err := sel.Preview()
	if err != nil {
		return err
	}
	_, unit, qty, target := sel.Staged()

	meal, err := sel.Commit(ctx)
	if err != nil {
		return err
	}
	if err := app.History.RecordSelection(food, unit, target); err != nil {
		app.Logger.Warn("record history failed", slog.String("error", err.Error()))
	}

	total := nutrition.MealFacts(meal)
	fmt.Printf("added %s (%g %s, %d kcal) to %s — slot now %d kcal\n",
		food.Name, qty, unit.Label(), nutrition.DisplayCalories(preview),
		target.Label(), nutrition.DisplayCalories(total))
	return nil
}

func qtyAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	slot, err := models.ParseMealType(cmd.String("meal"))
	if err != nil {
		return err
	}
	start, end, err := dayRange("")
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}
	if err := app.Board.UpdateQuantity(slot, int(cmd.Int("index")), cmd.Float("qty")); err != nil {
		return err
	}
	meal, err := app.Board.SaveMeal(ctx, slot)
	if err != nil {
		return err
	}
	fmt.Printf("%s saved — %d kcal\n", slot.Label(), nutrition.DisplayCalories(nutrition.MealFacts(meal)))
	return nil
}

func removeAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	slot, err := models.ParseMealType(cmd.String("meal"))
	if err != nil {
		return err
	}
	start, end, err := dayRange("")
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}

	idx := int(cmd.Int("index"))
	err = app.Board.RemoveItem(ctx, slot, idx)
	if errors.Is(err, apperr.ErrLastItem) {
		if !cmd.Bool("yes") {
			return fmt.Errorf("this is the meal's last item; pass --yes to delete the whole %s", slot.Label())
		}
		if err := app.Board.RemoveMeal(ctx, slot); err != nil {
			return err
		}
		fmt.Printf("%s deleted\n", slot.Label())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("item %d removed from %s\n", idx, slot.Label())
	return nil
}

func clearAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	slot, err := models.ParseMealType(cmd.String("meal"))
	if err != nil {
		return err
	}
	if !cmd.Bool("yes") {
		return fmt.Errorf("pass --yes to confirm deleting the whole %s", slot.Label())
	}
	start, end, err := dayRange("")
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}
	if err := app.Board.RemoveMeal(ctx, slot); err != nil {
		return err
	}
	fmt.Printf("%s deleted\n", slot.Label())
	return nil
}

func recentAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	entries, err := app.History.RecentFoods(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no recent foods")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s — last in %s (%s), %d uses\n",
			e.Food.ID, e.Food.Name, e.Slot.Label(), e.Unit.Label(), e.Uses)
	}
	return nil
}

func importAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	start, end, err := dayRange("")
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}
	if cmd.Bool("watch") {
		return app.RunImportWatch(ctx)
	}
	return app.RunImportOnce(ctx)
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	start, end, err := dayRange("")
	if err != nil {
		return err
	}
	if err := app.Board.Load(ctx, start, end); err != nil {
		return err
	}
	return mcpserver.New(app.Board, app.Client).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("NUTRIBOARD_CONFIG"),
	}

	cmd := &cli.Command{
		Name:  "nutriboard",
		Usage: "Meal-board client for the NutriTrack nutrition API",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Exchange credentials for a bearer token",
				Action: loginAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, Usage: "Account email"},
					&cli.StringFlag{Name: "password", Required: true, Usage: "Account password"},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the food catalog",
				ArgsUsage: "<query>",
				Action:    searchAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Read queries from stdin with debounce"},
				},
			},
			{
				Name:   "board",
				Usage:  "Show the meal board for a day",
				Action: boardAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "Day to show (YYYY-MM-DD), defaults to today"},
				},
			},
			{
				Name:   "add",
				Usage:  "Add a food to a meal slot on today's board",
				Action: addAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "food", Required: true, Usage: "Food name or catalog UUID"},
					&cli.FloatFlag{Name: "qty", Usage: "Quantity (defaults to 100)"},
					&cli.StringFlag{Name: "unit", Usage: "Measurement unit (defaults to grams)"},
					&cli.StringFlag{Name: "meal", Usage: "Target meal slot (defaults to the last-used slot)"},
				},
			},
			{
				Name:   "qty",
				Usage:  "Change an item's quantity and save the meal",
				Action: qtyAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "meal", Required: true, Usage: "Meal slot"},
					&cli.IntFlag{Name: "index", Required: true, Usage: "Item index (see board)"},
					&cli.FloatFlag{Name: "qty", Required: true, Usage: "New quantity"},
				},
			},
			{
				Name:   "remove",
				Usage:  "Remove an item from a meal",
				Action: removeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "meal", Required: true, Usage: "Meal slot"},
					&cli.IntFlag{Name: "index", Required: true, Usage: "Item index (see board)"},
					&cli.BoolFlag{Name: "yes", Usage: "Confirm deleting the whole meal when removing its last item"},
				},
			},
			{
				Name:   "clear",
				Usage:  "Delete a whole meal",
				Action: clearAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "meal", Required: true, Usage: "Meal slot"},
					&cli.BoolFlag{Name: "yes", Usage: "Confirm deletion"},
				},
			},
			{
				Name:   "recent",
				Usage:  "List recently logged foods",
				Action: recentAction,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "Max entries"},
				},
			},
			{
				Name:   "import",
				Usage:  "Import meal files from the drop directory",
				Action: importAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Usage: "Keep watching the directory for new files"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve Nutriboard tools over MCP stdio",
				Action: mcpAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
