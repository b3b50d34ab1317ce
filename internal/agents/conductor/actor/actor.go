package actor

import (
	"context"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"netagent/internal/agents/conductor/handler"
	"netagent/pkg/logger"
	"netagent/pkg/messages"
	"netagent/pkg/models"
)

// Conductor is the per-request actor. It owns one request's pipeline from
// routing to final answer; concurrent requests get separate actors, so the
// pipeline itself stays single-threaded.
type Conductor struct {
	id      uuid.UUID
	handler *handler.Handler
	running bool
	result  *models.Result
}

// Producer builds the actor factory the API spawns from. All conductors
// share one handler; per-request state lives on the actor.
func Producer(h *handler.Handler) actor.Producer {
	return func() actor.Actor {
		return &Conductor{id: uuid.Nil, handler: h}
	}
}

func (agent *Conductor) Receive(ac actor.Context) {
	l := log.With().Fields(map[string]interface{}{logger.ActorIDField: ac.Self().GetId(), logger.AgentNameField: "conductor"}).Logger()
	switch msg := ac.Message().(type) {
	case *actor.Started:
		l.Debug().Msg("starting actor")
	case *actor.Stopping:
		l.Debug().Msg("stopping actor")
	case *actor.Stopped:
		l.Debug().Msg("stopped actor and its children")
	case *actor.Restarting:
		l.Debug().Msg("restarting actor")
	case messages.GetStatus:
		l.Debug().Msg("GetStatus received from user")
		ac.Respond(messages.Status{Running: agent.running, Result: agent.result})
	case messages.NewRequest:
		l.Debug().Str(logger.RequestIDField, msg.RequestID.String()).Msg("NewRequest received from user")
		agent.id = msg.RequestID
		agent.running = true

		var sink func(models.Event)
		if msg.Events != nil {
			// Deferred so a panic inside the pipeline still ends the
			// subscriber's stream instead of leaving it blocked.
			defer close(msg.Events)
			sink = func(e models.Event) { msg.Events <- e }
		}

		res := agent.handler.Handle(context.Background(), agent.id.String(), msg.Question, sink)
		agent.result = res
		agent.running = false

		if msg.Events == nil {
			ac.Respond(res)
		}
	default:
		l.Warn().Msgf("unknown message: %v", msg)
	}
}
