package actor

import (
	"context"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"

	"netagent/internal/agents/conductor/handler"
	"netagent/internal/config"
	"netagent/internal/llm"
	"netagent/internal/router"
	"netagent/internal/tools"
	"netagent/pkg/messages"
	"netagent/pkg/models"
)

type finishModel struct{}

func (finishModel) Complete(context.Context, string) (llm.Completion, error) {
	return llm.Completion{Text: "THOUGHT: done\nACTION: FINISH"}, nil
}

type panicModel struct{}

func (panicModel) Complete(context.Context, string) (llm.Completion, error) {
	panic("model exploded")
}

func conductorConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Model: "gpt-4o-mini"},
		Agents: map[string]config.AgentConfig{
			"network": {FullName: "network_agent", ShortNames: []string{"network"}, ToolPrefix: "network"},
		},
		Router: config.RouterConfig{
			DefaultAgent:        "network_agent",
			ConfidenceThreshold: 0.5,
			RulesEnabled:        true,
			KeywordRules: []config.KeywordRule{
				{Keywords: []string{"ping"}, TargetAgent: "network_agent", Priority: 2},
			},
		},
		React: config.ReactConfig{
			AdaptiveDepth: config.AdaptiveDepthConfig{Enabled: true, LowMax: 3, MediumMax: 6, HighMax: 10, DefaultMax: 10},
		},
		Answer: config.AnswerConfig{
			SkipAnalysis: config.SkipAnalysisConfig{Enabled: true, StepThreshold: 2},
		},
	}
}

func spawnConductor(model llm.Client) (*actor.RootContext, *actor.PID) {
	cfg := conductorConfig()
	registry := &tools.Static{Tools: []tools.Tool{{Name: "network.ping"}}}
	h := handler.New(cfg, model, llm.NewLedger(cfg.Tokens), router.New(cfg, registry), registry)

	root := actor.NewActorSystem().Root
	decider := func(reason interface{}) actor.Directive {
		return actor.RestartDirective
	}
	strategy := actor.NewOneForOneStrategy(3, 10000, decider)
	pid := root.Spawn(actor.PropsFromProducer(Producer(h), actor.WithSupervisor(strategy)))
	return root, pid
}

func requireEventsClose(t *testing.T, events chan models.Event) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events channel never closed")
	}
}

func TestEventsChannelClosesAfterCompletion(t *testing.T) {
	root, pid := spawnConductor(finishModel{})
	events := make(chan models.Event, 16)

	root.Send(pid, messages.NewRequest{RequestID: uuid.New(), Question: "ping x.com", Events: events})

	requireEventsClose(t, events)
}

func TestEventsChannelClosesWhenPipelinePanics(t *testing.T) {
	root, pid := spawnConductor(panicModel{})
	events := make(chan models.Event, 16)

	root.Send(pid, messages.NewRequest{RequestID: uuid.New(), Question: "ping x.com", Events: events})

	requireEventsClose(t, events)
}
