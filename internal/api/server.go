package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	conductor "netagent/internal/agents/conductor/actor"
	"netagent/internal/agents/conductor/handler"
	"netagent/internal/config"
	"netagent/pkg/logger"
	"netagent/pkg/messages"
	"netagent/pkg/models"
)

const requestTimeout = 10 * time.Minute

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatDelta   `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

type getStatus struct {
	Status messages.Status `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	ac     *actor.RootContext
	server *http.Server
	state  *requestsCache
}

// New builds the HTTP surface: an OpenAI-compatible chat completion
// endpoint (optionally streaming), a model listing, and per-request status.
func New(cfg *config.Config, ac *actor.RootContext, h *handler.Handler) *Server {
	r := chi.NewRouter()
	r.Use(logMiddleware())
	requests := newRequestsCache()

	spawn := func() (*actor.PID, uuid.UUID) {
		decider := func(reason interface{}) actor.Directive {
			log.Error().Msgf("handling failure for child. reason: %v", reason)
			return actor.RestartDirective
		}
		strategy := actor.NewOneForOneStrategy(3, 10000, decider)
		props := actor.PropsFromProducer(conductor.Producer(h), actor.WithSupervisor(strategy))
		pid := ac.Spawn(props)
		id := uuid.New()
		requests.add(id, pid)
		return pid, id
	}

	r.Post("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		req := chatRequest{}
		if err := unmarshalRequestBody(r, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "unable to parse body"})
			return
		}
		question := lastUserMessage(req.Messages)
		if question == "" {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "no user message in request"})
			return
		}
		model := req.Model
		if model == "" {
			model = cfg.LLM.Model
		}

		pid, id := spawn()
		log.Debug().Str(logger.RequestIDField, id.String()).Bool("stream", req.Stream).Msg("chat completion accepted")

		if req.Stream {
			streamCompletion(w, ac, pid, id, question, model)
			return
		}

		future := ac.RequestFuture(pid, messages.NewRequest{RequestID: id, Question: question}, requestTimeout)
		res, err := future.Result()
		if err != nil {
			requests.remove(id)
			w.WriteHeader(http.StatusInternalServerError)
			log.Error().Str(logger.RequestIDField, id.String()).Err(err).Msg("request failed")
			render.JSON(w, r, errorResponse{Error: "request failed"})
			return
		}
		result, ok := res.(*models.Result)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			log.Error().Str(logger.RequestIDField, id.String()).Msg("unknown response from actor")
			return
		}

		stop := "stop"
		render.JSON(w, r, chatResponse{
			ID:      "chatcmpl-" + id.String(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   model,
			Choices: []chatChoice{{
				Message:      &chatMessage{Role: "assistant", Content: result.Answer},
				FinishReason: &stop,
			}},
			Usage: &chatUsage{
				PromptTokens:     result.Metadata.Usage.InputTokens,
				CompletionTokens: result.Metadata.Usage.OutputTokens,
				TotalTokens:      result.Metadata.Usage.InputTokens + result.Metadata.Usage.OutputTokens,
			},
		})
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, modelList{
			Object: "list",
			Data:   []modelInfo{{ID: cfg.LLM.Model, Object: "model"}},
		})
	})

	r.Get("/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		idParam := chi.URLParam(r, "id")
		id, err := uuid.Parse(idParam)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "unable to parse id"})
			return
		}
		pid, ok := requests.get(id)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		future := ac.RequestFuture(pid, messages.GetStatus{}, time.Minute)
		res, err := future.Result()
		if err != nil {
			requests.remove(id)
			w.WriteHeader(http.StatusInternalServerError)
			log.Error().Str(logger.RequestIDField, idParam).Err(err).Msg("unable to get status from actor")
			return
		}
		if status, ok := res.(messages.Status); ok {
			render.JSON(w, r, getStatus{status})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		log.Error().Str(logger.RequestIDField, idParam).Msg("unknown status from actor")
	})

	return &Server{
		ac:    ac,
		state: requests,
		server: &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: r,
		},
	}
}

// streamCompletion relays progress events as chat.completion.chunk frames.
// One chunk per committed loop transition, in execution order, closed by a
// stop chunk and the [DONE] marker.
func streamCompletion(w http.ResponseWriter, ac *actor.RootContext, pid *actor.PID, id uuid.UUID, question, model string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan models.Event, 16)
	ac.Send(pid, messages.NewRequest{RequestID: id, Question: question, Events: events})

	chunkID := "chatcmpl-" + id.String()
	created := time.Now().Unix()

	writeChunk := func(delta chatDelta, finish *string) {
		chunk := chatResponse{
			ID:      chunkID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []chatChoice{{Delta: &delta, FinishReason: finish}},
		}
		raw, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	}

	writeChunk(chatDelta{Role: "assistant"}, nil)
	for e := range events {
		if text := renderEvent(e); text != "" {
			writeChunk(chatDelta{Content: text}, nil)
		}
	}

	stop := "stop"
	writeChunk(chatDelta{}, &stop)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func renderEvent(e models.Event) string {
	switch e.Kind {
	case models.EventThought:
		if e.Thought == "" {
			return ""
		}
		return fmt.Sprintf("🤔 %s\n\n", e.Thought)
	case models.EventToolCall:
		return fmt.Sprintf("🔧 Running %s...\n\n", e.Tool)
	case models.EventObservation:
		return ""
	case models.EventFinish:
		return e.Answer
	}
	return ""
}

func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("http server started")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

func logMiddleware() func(http.Handler) http.Handler {
	c := alice.New()
	c = c.Append(hlog.NewHandler(log.Logger))
	c = c.Append(hlog.RemoteAddrHandler("ip"))
	c = c.Append(hlog.UserAgentHandler("agent"))
	c = c.Append(hlog.RefererHandler("referer"))
	c = c.Append(hlog.RequestIDHandler("req_id", "Request-Id"))
	c = c.Append(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("verb", r.Method).
			Stringer("url", r.URL).
			Int("size", size).
			Int("status", status).
			Int64("duration", duration.Milliseconds()).
			Msg("REQ")
	}))

	return c.Then
}

func unmarshalRequestBody(req *http.Request, output interface{}) error {
	if req.Body == nil {
		return errors.New("invalid body in request")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if err = req.Body.Close(); err != nil {
		return err
	}
	if err = json.Unmarshal(body, &output); err != nil {
		return err
	}

	return nil
}
