package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/readstack/readstack/internal/config"
	"github.com/readstack/readstack/internal/domain"
	"github.com/readstack/readstack/internal/repository"
	"github.com/spf13/cobra"
)

func ModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage registered models",
		Long:  "Register and list generation and embedding models",
	}

	cmd.AddCommand(ModelsAddCmd())
	cmd.AddCommand(ModelsListCmd())

	return cmd
}

func ModelsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a model",
		Long:  "Register a model by name, e.g. 'gpt-4o-mini' or 'text-embedding-3-small'",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelsAdd,
	}

	cmd.Flags().String("provider", "openai", "Model provider")
	cmd.Flags().String("type", "language", "Model type (language or embedding)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runModelsAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	provider, _ := cmd.Flags().GetString("provider")
	modelType, _ := cmd.Flags().GetString("type")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	modelRepo := repository.NewModelRepository(pool)

	model := domain.NewModel(uuid.NewString(), name, provider, domain.ModelType(modelType), time.Now().UTC())
	if err := domain.ValidateModel(model); err != nil {
		return err
	}

	if err := modelRepo.Create(ctx, model); err != nil {
		return fmt.Errorf("failed to register model: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":       model.ID,
			"name":     model.Name,
			"provider": model.Provider,
			"type":     string(model.Type),
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Model registered: %s (%s, %s) id=%s\n", model.Name, model.Provider, model.Type, model.ID)
	}

	return nil
}

func ModelsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE:  runModelsList,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runModelsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	modelRepo := repository.NewModelRepository(pool)
	models, err := modelRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	if outputFormat == "json" {
		out := make([]map[string]interface{}, 0, len(models))
		for _, m := range models {
			out = append(out, map[string]interface{}{
				"id":       m.ID,
				"name":     m.Name,
				"provider": m.Provider,
				"type":     string(m.Type),
			})
		}
		jsonBytes, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(models) == 0 {
		fmt.Println("No models registered")
		return nil
	}
	for _, m := range models {
		fmt.Printf("%s  %-10s %-10s %s\n", m.ID, m.Provider, m.Type, m.Name)
	}
	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
