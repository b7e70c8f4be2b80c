package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wanderplan/wanderplan"
	"github.com/wanderplan/wanderplan/core"
	"github.com/wanderplan/wanderplan/logging"
	"github.com/wanderplan/wanderplan/reasoning"
	"github.com/wanderplan/wanderplan/reasoning/anthropic"
	"github.com/wanderplan/wanderplan/reasoning/openai"
	"github.com/wanderplan/wanderplan/runner"
	"github.com/wanderplan/wanderplan/store"
	"github.com/wanderplan/wanderplan/store/sqlite"
	"github.com/wanderplan/wanderplan/travel"
)

var rootCmd = &cobra.Command{
	Use:   "wanderplan",
	Short: "WanderPlan travel-planning assistant",
	Long: `WanderPlan runs a tool-using travel assistant from the command line.
The assistant reasons over your request, calls travel tools (weather,
flights) as needed and produces a cited plan. Runs are persisted; inspect
them with 'wanderplan run show'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(streamCmd())
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WANDERPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("provider", "openai", "reasoning provider (openai or anthropic)")
	rootCmd.PersistentFlags().String("model", "", "model override for the provider")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path (empty = in-memory store)")
	rootCmd.PersistentFlags().String("session", "default", "session identifier")
	rootCmd.PersistentFlags().String("user", "local-user", "user identifier")
	rootCmd.PersistentFlags().Int("max-iterations", 10, "reasoning iteration bound per run")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	for _, name := range []string{"provider", "model", "db", "session", "user", "max-iterations", "log-level", "log-format", "json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [request]",
		Short: "Plan a trip in batch mode",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeStore, err := buildPlanner()
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := p.Plan(cmd.Context(), request(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				rec, recErr := p.GetRun(cmd.Context(), res.RunID)
				if recErr != nil {
					return recErr
				}
				return printJSON(rec)
			}
			fmt.Println(res.Answer)
			for _, c := range res.State.Citations {
				fmt.Printf("  [%s] %s\n", c.Source, c.Snippet)
			}
			return nil
		},
	}
}

func streamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream [request]",
		Short: "Plan a trip with live progress events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeStore, err := buildPlanner()
			if err != nil {
				return err
			}
			defer closeStore()

			ch, err := p.PlanStream(cmd.Context(), request(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			asJSON := viper.GetBool("json")
			for ev := range ch {
				if asJSON {
					if err := printJSON(ev); err != nil {
						return err
					}
					continue
				}
				printEvent(ev)
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	run := &cobra.Command{Use: "run", Short: "Inspect persisted runs"}
	run.AddCommand(&cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a persisted run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := buildStore()
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	})
	return run
}

func request(input string) runner.Request {
	return runner.Request{
		SessionID: viper.GetString("session"),
		UserID:    viper.GetString("user"),
		Input:     input,
	}
}

func buildPlanner() (*wanderplan.Planner, func(), error) {
	engine, err := buildEngine()
	if err != nil {
		return nil, nil, err
	}
	st, closeStore, err := buildStore()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(parseLevel(viper.GetString("log-level")), viper.GetString("log-format"))

	p, err := wanderplan.New(engine, func(o *wanderplan.Options) {
		o.Tools = travel.Tools()
		o.MaxIterations = viper.GetInt("max-iterations")
		o.Store = st
		o.Logger = logger
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return p, closeStore, nil
}

func buildEngine() (reasoning.Engine, error) {
	model := viper.GetString("model")
	switch provider := viper.GetString("provider"); provider {
	case "openai":
		return openai.New(func(o *openai.Options) {
			if model != "" {
				o.Model = model
			}
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if model != "" {
				o.Model = anthropicsdk.Model(model)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai or anthropic)", provider)
	}
}

func buildStore() (store.Store, func(), error) {
	path := viper.GetString("db")
	if path == "" {
		return store.NewInMemoryStore(), func() {}, nil
	}
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func parseLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "info":
		return logging.LevelInfo
	case "error":
		return logging.LevelError
	default:
		return logging.LevelWarn
	}
}

func printEvent(ev core.Event) {
	switch ev.Type {
	case core.EventNodeStarted:
		fmt.Printf("-> %s\n", ev.Node)
	case core.EventNodeFinished:
		fmt.Printf("<- %s (%s)\n", ev.Node, ev.Status)
	case core.EventToolCallStarted:
		fmt.Printf("   tool %s started\n", ev.Tool)
	case core.EventToolCallFinished:
		outcome := "ok"
		if ev.Result != nil && ev.Result.Failed() {
			outcome = "failed: " + ev.Result.Error
		}
		fmt.Printf("   tool %s %s\n", ev.Tool, outcome)
	case core.EventMessageDelta:
		fmt.Print(ev.Delta)
	case core.EventFinalResult:
		fmt.Printf("\n%s\n", ev.Output.Answer)
	case core.EventError:
		fmt.Printf("\nrun failed: %s\n", ev.Err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
