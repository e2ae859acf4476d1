package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/leadflow-service/internal/client"
	"github.com/user/leadflow-service/internal/entity"
)

var rootCmd = &cobra.Command{
	Use:   "leadflow",
	Short: "LeadFlow CLI",
	Long: `LeadFlow submits lead extraction tasks and follows them until they finish.
Tasks move pending -> running -> enriching -> completed, or end in failed.
A completed task carries a csvUrl with the exported leads.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(submitCmd(), statusCmd(), watchCmd(), historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEADFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "API base URL")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Duration("interval", client.DefaultPollInterval, "status poll interval")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("interval", rootCmd.PersistentFlags().Lookup("interval"))
}

func newClient() *client.Client {
	return client.New(viper.GetString("server"))
}

func submitCmd() *cobra.Command {
	var (
		maxResults int
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "submit <query>",
		Short: "Submit a lead extraction task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			query := strings.Join(args, " ")
			if !watch {
				task, err := c.Submit(cmd.Context(), query, maxResults)
				if err != nil {
					return err
				}
				return printTasks(c, task)
			}

			p := client.NewPoller(c, client.NewLocalView(), viper.GetDuration("interval"))
			task, err := p.Submit(cmd.Context(), query, maxResults)
			if err != nil {
				return err
			}
			return follow(cmd.Context(), c, p, task.ID)
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 20, fmt.Sprintf("result tier, one of %v", entity.ResultTiers))
	cmd.Flags().BoolVar(&watch, "watch", false, "follow the task until it finishes")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>...",
		Short: "Show the current state of tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			tasks := make([]entity.ScrapeTask, 0, len(args))
			for _, id := range args {
				task, err := c.Status(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("task %s: %w", id, err)
				}
				tasks = append(tasks, task)
			}
			return printTasks(c, tasks...)
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a task until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			view := client.NewLocalView()
			task, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view.Put(task)

			p := client.NewPoller(c, view, viper.GetDuration("interval"))
			if task.IsTerminal() {
				return printTasks(c, task)
			}
			p.Track(task.ID)
			return follow(cmd.Context(), c, p, task.ID)
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List all tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			tasks, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			return printTasks(c, tasks...)
		},
	}
}

// follow prints every observed update of id until it is terminal.
func follow(ctx context.Context, c *client.Client, p *client.Poller, id string) error {
	jsonOut := viper.GetBool("json")
	if !jsonOut {
		if task, ok := p.View().Get(id); ok {
			printProgress(task)
		}
	}
	p.OnUpdate = func(task entity.ScrapeTask) {
		if jsonOut {
			_ = printJSON(task)
			return
		}
		printProgress(task)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.Run(ctx)

	task, err := p.Wait(ctx, id)
	if err != nil {
		return err
	}
	if jsonOut {
		return nil
	}
	return printTasks(c, task)
}

func printProgress(task entity.ScrapeTask) {
	fmt.Printf("%s  %-9s %3d%%  %d leads\n", task.ID, task.Status, task.Progress, task.ResultsCount)
}

func printTasks(c *client.Client, tasks ...entity.ScrapeTask) error {
	if viper.GetBool("json") {
		if len(tasks) == 1 {
			return printJSON(tasks[0])
		}
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Query", "Status", "Progress", "Leads", "Created", "Result"})
	for _, t := range tasks {
		result := c.DownloadURL(t)
		if t.Status == entity.TaskStatusFailed {
			result = t.Error
		}
		tw.AppendRow(table.Row{
			t.ID,
			t.Query,
			t.Status,
			fmt.Sprintf("%d%%", t.Progress),
			fmt.Sprintf("%d/%d", t.ResultsCount, t.MaxResults),
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
			result,
		})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
