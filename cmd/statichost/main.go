package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/splax/statichost/internal/config"
	"github.com/splax/statichost/internal/domain"
	"github.com/splax/statichost/internal/repository"
	"github.com/splax/statichost/internal/repository/jsonfile"
	"github.com/splax/statichost/internal/service/deploy"
	"github.com/splax/statichost/internal/service/ingress"
	"github.com/splax/statichost/internal/stage"
	"github.com/splax/statichost/pkg/logger"
	"github.com/splax/statichost/pkg/pages"
)

const defaultPageAPI = "http://localhost:11004"

func main() {
	cmd := &cli.Command{
		Name:  "statichost",
		Usage: "Deploy built static sites behind a shared nginx proxy.",
		Commands: []*cli.Command{
			{
				Name:      "deploy",
				Usage:     "Stage a built site, configure a vhost, and reload the proxy",
				ArgsUsage: "<source_dir> [base_dir]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port-start", Value: config.DefaultPortStart, Usage: "First port to probe"},
					&cli.IntFlag{Name: "port-attempts", Value: config.DefaultPortAttempts, Usage: "Number of ports to probe"},
					&cli.StringFlag{Name: "container", Value: config.DefaultContainer, Usage: "Proxy container name"},
				},
				Action: runDeploy,
			},
			{
				Name:      "cleanup",
				Usage:     "Tear down a deployment by id, or 'list'/'all'",
				ArgsUsage: "<id|list|all> [base_dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "container", Value: config.DefaultContainer, Usage: "Proxy container name"},
				},
				Action: runCleanup,
			},
			{
				Name:      "list",
				Usage:     "List active deployments",
				ArgsUsage: "[base_dir]",
				Action:    runList,
			},
			{
				Name:  "page",
				Usage: "Manage pages on the remote deploy API",
				Commands: []*cli.Command{
					{
						Name:      "deploy",
						Usage:     "Deploy an HTML file as a hosted page",
						ArgsUsage: "<html_file>",
						Flags:     pageFlags(),
						Action:    runPageDeploy,
					},
					{
						Name:      "update",
						Usage:     "Replace the content of a hosted page",
						ArgsUsage: "<page_id> <html_file>",
						Flags:     pageFlags(),
						Action:    runPageUpdate,
					},
					{
						Name:      "delete",
						Usage:     "Delete a hosted page",
						ArgsUsage: "<page_id>",
						Flags:     pageFlags(),
						Action:    runPageDelete,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "api", Value: defaultPageAPI, Usage: "Deploy API base URL"},
	}
}

// buildService wires the lifecycle service for the given config. The caller
// must invoke the returned closer.
func buildService(cfg config.Config, log *slog.Logger) (*deploy.Service, func(), error) {
	store, err := jsonfile.New(cfg.RecordDir())
	if err != nil {
		return nil, nil, err
	}
	stager, err := stage.New(cfg.HTMLRoot())
	if err != nil {
		return nil, nil, err
	}
	reloader, err := ingress.NewReloader(cfg.Container, cfg.ComposeFile(), log)
	if err != nil {
		return nil, nil, err
	}
	svc := deploy.New(cfg, store, stager, reloader, log)
	return svc, func() { reloader.Close() }, nil
}

func runDeploy(ctx context.Context, cmd *cli.Command) error {
	sourceDir := cmd.Args().First()
	if sourceDir == "" {
		return errors.New("usage: statichost deploy <source_dir> [base_dir]")
	}
	cfg := config.Default(cmd.Args().Get(1))
	cfg.PortStart = int(cmd.Int("port-start"))
	cfg.PortAttempts = int(cmd.Int("port-attempts"))
	cfg.Container = cmd.String("container")

	log := logger.New("statichost", slog.LevelInfo)
	svc, closer, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer closer()

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	record, err := svc.Deploy(opCtx, sourceDir)
	if err != nil {
		return err
	}
	fmt.Printf("deployed: %s\n", record.ProjectID)
	fmt.Printf("port: %d\n", record.Port)
	fmt.Printf("url: %s\n", record.URL)
	fmt.Printf("html dir: %s\n", record.HTMLDir)
	fmt.Printf("conf file: %s\n", record.ConfFile)
	return nil
}

func runCleanup(ctx context.Context, cmd *cli.Command) error {
	target := cmd.Args().First()
	if target == "" {
		return errors.New("usage: statichost cleanup <id|list|all> [base_dir]")
	}
	cfg := config.Default(cmd.Args().Get(1))
	cfg.Container = cmd.String("container")

	if target == "list" {
		return printDeployments(ctx, cfg)
	}

	log := logger.New("statichost", slog.LevelInfo)
	svc, closer, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer closer()

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if target == "all" {
		results, err := svc.CleanupAll(opCtx)
		if err != nil {
			return err
		}
		failed := 0
		for _, result := range results {
			if result.Err != nil {
				failed++
				fmt.Printf("cleanup failed: %s: %v\n", result.ProjectID, result.Err)
				continue
			}
			fmt.Printf("cleaned up: %s\n", result.ProjectID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cleanups failed", failed, len(results))
		}
		return nil
	}

	if err := svc.Cleanup(opCtx, target); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no deployment with id %s", target)
		}
		return err
	}
	fmt.Printf("cleaned up: %s\n", target)
	return nil
}

func runList(ctx context.Context, cmd *cli.Command) error {
	return printDeployments(ctx, config.Default(cmd.Args().First()))
}

// printDeployments reads records directly; listing needs no proxy access.
func printDeployments(ctx context.Context, cfg config.Config) error {
	store, err := jsonfile.New(cfg.RecordDir())
	if err != nil {
		return err
	}
	records, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no deployments found")
		return nil
	}
	for _, record := range records {
		printRecord(record)
	}
	return nil
}

func printRecord(record domain.Deployment) {
	fmt.Printf("%s\t%s\t%s\t%s\n", record.ProjectID, record.DeployedAt, record.URL, record.HTMLDir)
}

func runPageDeploy(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("usage: statichost page deploy <html_file>")
	}
	html, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	client, err := pages.New(cmd.String("api"))
	if err != nil {
		return err
	}
	url, err := client.Deploy(ctx, string(html))
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func runPageUpdate(ctx context.Context, cmd *cli.Command) error {
	pageID := cmd.Args().Get(0)
	file := cmd.Args().Get(1)
	if pageID == "" || file == "" {
		return errors.New("usage: statichost page update <page_id> <html_file>")
	}
	html, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	client, err := pages.New(cmd.String("api"))
	if err != nil {
		return err
	}
	url, err := client.Update(ctx, pageID, string(html))
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func runPageDelete(ctx context.Context, cmd *cli.Command) error {
	pageID := cmd.Args().First()
	if pageID == "" {
		return errors.New("usage: statichost page delete <page_id>")
	}
	client, err := pages.New(cmd.String("api"))
	if err != nil {
		return err
	}
	detail, err := client.Delete(ctx, pageID)
	if err != nil {
		return err
	}
	fmt.Println(detail)
	return nil
}
