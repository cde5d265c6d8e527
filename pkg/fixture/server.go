// Package fixture serves a scripted chat backend speaking the chat stream
// wire protocol. It performs no search or inference and exists for local
// development and tests.
package fixture

import (
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/chatevent"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/stream"
)

// Config is the fixture server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Script is replayed for every request. Defaults to DefaultScript().
	Script *Script

	// Delay between two events when the script sets none.
	Delay time.Duration

	Logger *slog.Logger
}

// ErrorResponse is the JSON body of a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the fixture backend.
type Server struct {
	config Config
	delay  time.Duration
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a fixture server. The script is validated up front.
func NewServer(config Config) (*Server, error) {
	if config.Script == nil {
		config.Script = DefaultScript()
	}
	if err := config.Script.Validate(); err != nil {
		return nil, err
	}

	delay, _ := config.Script.delay()
	if delay == 0 {
		delay = config.Delay
	}

	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	s := &Server{
		config: config,
		delay:  delay,
		logger: log,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get(stream.Path, s.handleChatStream)

	return s, nil
}

// App returns the underlying fiber app, e.g. for mounting with an adaptor.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting fixture backend",
		"listen", s.config.ListenAddr,
		"events", len(s.config.Script.Events),
		"delay", s.delay,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting fixture backend", "listen", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleChatStream(c *fiber.Ctx) error {
	message := c.Query("message")
	if message == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: "message is required"})
	}

	// A new thread is announced only when the client holds no checkpoint.
	var newCheckpoint string
	if c.Query("checkpoint_id") == "" {
		newCheckpoint = uuid.NewString()
	}

	events := s.config.Script.Turn(message, newCheckpoint)

	s.logger.Debug("serving chat stream",
		"message_len", len(message),
		"new_checkpoint", newCheckpoint != "",
		"events", len(events),
	)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe so every record reaches the socket as its own chunk.
	pr, pw := io.Pipe()
	go s.writeEvents(pw, events)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeEvents(pw *io.PipeWriter, events []chatevent.Payload) {
	defer pw.Close()

	for i := range events {
		if i > 0 && s.delay > 0 {
			time.Sleep(s.delay)
		}

		record, err := chatevent.Encode(&events[i])
		if err != nil {
			s.logger.Error("encoding event", "error", err)
			pw.CloseWithError(err)
			return
		}

		if _, err := io.WriteString(pw, record); err != nil {
			// Client went away.
			s.logger.Debug("stream aborted", "sent", i, "error", err)
			return
		}
	}
}
