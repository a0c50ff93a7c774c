// Command chauffeur runs one agent task from the command line: it wires the
// configuration, the model client, the tool suite, the scheduler and the
// event bus into a Host, optionally decomposes the task into subtasks, and
// streams the answer to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/chauffeur-ai/chauffeur/agent"
	"github.com/chauffeur-ai/chauffeur/browser"
	"github.com/chauffeur-ai/chauffeur/config"
	"github.com/chauffeur-ai/chauffeur/hooks"
	"github.com/chauffeur-ai/chauffeur/model"
	"github.com/chauffeur-ai/chauffeur/plan"
	"github.com/chauffeur-ai/chauffeur/schedule"
	"github.com/chauffeur-ai/chauffeur/session"
	"github.com/chauffeur-ai/chauffeur/telemetry"
	"github.com/chauffeur-ai/chauffeur/tools"
	"github.com/chauffeur-ai/chauffeur/workspace"
)

func main() {
	var (
		configDir = flag.String("config", "", "configuration directory (default ~/.chauffeur)")
		profile   = flag.String("profile", "", "browser profile to drive (default from config)")
		sessionID = flag.String("session", "", "resume a persisted session")
		research  = flag.Bool("research", false, "run the task as a deep-research plan")
		launch    = flag.Bool("launch", false, "launch Chromium for the profile before running")
		headless  = flag.Bool("headless", false, "launch Chromium headless (with -launch)")
	)
	flag.Parse()

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	task := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if task == "" && *sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: chauffeur [flags] <task>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(ctx, *configDir, *profile, *sessionID, task, *research, *launch, *headless); err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir, profileName, sessionID, task string, research, launchBrowser, headless bool) error {
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	if configDir == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		configDir = dir
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	wsDir := cfg.Agent.Workspace
	if wsDir == "" {
		if wsDir, err = os.Getwd(); err != nil {
			return err
		}
	}
	ws, err := workspace.New(wsDir)
	if err != nil {
		return err
	}

	provider := cfg.Agent.Provider
	if provider == "" {
		provider = model.ProviderOpenAI
	}
	modelID := cfg.Agent.Model
	if modelID == "" {
		modelID = "gpt-4o"
	}
	pc := cfg.Agent.Providers[provider]
	client, err := model.NewClient(ctx, provider, model.ClientOptions{
		APIKey:     model.ResolveKey(provider, pc.APIKey),
		BaseURL:    pc.BaseURL,
		Region:     pc.Region,
		Deployment: pc.Deployment,
		Project:    pc.Project,
	})
	if err != nil {
		return err
	}
	client = model.WithTimeout(client, time.Duration(cfg.Agent.EffectiveTimeout())*time.Second)

	port := config.DefaultBrowserPort
	downloadDir := ""
	if profileName != "" || cfg.Default != nil {
		name, prof, err := cfg.ResolveProfile(profileName)
		if err != nil {
			return err
		}
		port = prof.Port
		downloadDir = prof.DownloadDir
		if launchBrowser {
			proc, err := browser.Launch(ctx, browser.LaunchOptions{
				Port:        port,
				DataDir:     cfg.ProfileDataDir(name),
				Headless:    headless,
				DownloadDir: downloadDir,
			})
			if err != nil {
				return err
			}
			defer proc.Kill()
		}
	}

	bus := hooks.NewBus()
	if _, err := bus.Register(consoleSubscriber{}); err != nil {
		return err
	}

	browserTool := tools.NewBrowserTool(tools.BrowserToolOptions{
		Port:        port,
		CDPURL:      cfg.Agent.CDPURL,
		DownloadDir: downloadDir,
		Workspace:   ws,
		Logger:      logger,
	})
	defer browserTool.Cleanup()

	sessions, err := session.NewStore(cfg.SessionsDir())
	if err != nil {
		return err
	}

	// the scheduler's runner needs the agent factory, which needs the tool
	// registry, which needs the cron tool, which needs the scheduler; the
	// factory variable breaks the cycle
	var newAgent func(systemPrompt string) (*agent.Agent, error)
	runner := func(ctx context.Context, job *schedule.Job, record func(string)) (string, error) {
		a, err := newAgent("")
		if err != nil {
			return "", err
		}
		record("task: " + job.Task)
		out, err := a.Chat(ctx, job.Task, nil)
		if err != nil {
			return "", err
		}
		record(out)
		return out, nil
	}
	scheduler := schedule.NewScheduler(schedule.NewStore(cfg.JobsPath()), bus, logger, ws.Root(), runner)

	toolset := []tools.Tool{
		browserTool,
		tools.NewFilesTool(ws),
		tools.NewPDFTool(ws, browserTool),
		tools.NewSpreadsheetTool(ws),
		tools.NewShellTool(ws, cfg.Agent.ShellEnabled, 0),
		tools.NewCronTool(scheduler),
	}
	registry, err := tools.NewRegistry(toolset...)
	if err != nil {
		return err
	}

	maxTokens := cfg.Agent.MainMaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMainMaxTokens
	}
	subTokens := cfg.Agent.SubagentMaxTokens
	if subTokens <= 0 {
		subTokens = config.DefaultSubMaxTokens
	}
	newAgent = func(systemPrompt string) (*agent.Agent, error) {
		tokens := maxTokens
		if systemPrompt != "" {
			tokens = subTokens
		}
		return agent.New(agent.Options{
			Client:        client,
			Tools:         registry,
			Bus:           bus,
			Log:           logger,
			Metrics:       metrics,
			Ws:            ws,
			Provider:      provider,
			Model:         modelID,
			MaxTokens:     tokens,
			MaxIterations: cfg.Agent.EffectiveMaxIterations(),
			SystemPrompt:  systemPrompt,
		})
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	chief, err := newAgent("")
	if err != nil {
		return err
	}
	host := &agent.Host{
		Config:    cfg,
		Bus:       bus,
		Log:       logger,
		Metrics:   metrics,
		Scheduler: scheduler,
		Sessions:  sessions,
	}
	host.SetCurrent(chief)
	defer host.SetCurrent(nil)

	if sessionID != "" {
		if err := chief.LoadSession(sessions, sessionID); err != nil {
			return err
		}
		if task == "" {
			fmt.Println(renderTranscript(sessions, sessionID))
			return nil
		}
	}

	out, err := answer(ctx, host, chief, newAgent, browserTool, ws, client, modelID, task, research, cfg.Agent.DecomposeEnabled)
	if err != nil {
		return err
	}
	fmt.Println(out)

	if _, err := chief.SaveSession(sessions); err != nil {
		logger.Warn(ctx, "session save", "err", err)
	}
	return nil
}

// answer picks the execution strategy: deep research, decomposed plan, or
// the direct tool-calling loop.
func answer(ctx context.Context, host *agent.Host, chief *agent.Agent, factory plan.AgentFactory, browserTool *tools.BrowserTool, ws *workspace.Workspace, client model.Client, modelID, task string, research, decompose bool) (string, error) {
	cleanup := func(context.Context) { browserTool.Cleanup() }

	if research {
		runner := plan.NewRunner(factory, ws, host.Bus, host.Log, chief, cleanup)
		subtasks := plan.ResearchPlan(ctx, client, modelID, task, 0, 0)
		result, err := runner.RunResearch(ctx, task, subtasks)
		if err != nil {
			return "", err
		}
		return result.Output, nil
	}

	if decompose {
		chief.SetPhase(agent.PhaseDecomposing)
		if subtasks, ok := plan.Decompose(ctx, client, modelID, task); ok {
			runner := plan.NewRunner(factory, ws, host.Bus, host.Log, chief, cleanup)
			result, err := runner.Run(ctx, task, subtasks)
			if err != nil {
				return "", err
			}
			if result.Output != "" {
				return fmt.Sprintf("%s\n\n(outputs in %s)", result.Output, result.RunDir), nil
			}
		}
	}

	return chief.Chat(ctx, task, func(chunk string) { fmt.Print(chunk) })
}

// renderTranscript prints a resumed session without running anything.
func renderTranscript(sessions *session.Store, id string) string {
	md, err := sessions.Export(id)
	if err != nil {
		return fmt.Sprintf("session %s: %v", id, err)
	}
	return md
}

// consoleSubscriber surfaces tool activity on stderr while the agent works.
type consoleSubscriber struct{}

func (consoleSubscriber) HandleEvent(_ context.Context, event hooks.Event) error {
	switch event.Type {
	case hooks.EventToolCall:
		fmt.Fprintf(os.Stderr, "[%s] %s\n", event.ToolCall.Tool, firstLine(event.ToolCall.Result))
	case hooks.EventContextWarning:
		fmt.Fprintf(os.Stderr, "[context] %.0f%% of %d tokens used\n",
			event.Usage.PercentUsed, event.Usage.ContextLimit)
	case hooks.EventCronRunStart:
		fmt.Fprintf(os.Stderr, "[cron] run %s started (%s)\n", event.Cron.RunID, event.Cron.JobName)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
