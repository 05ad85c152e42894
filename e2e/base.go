package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nexchat/auth"
	"nexchat/client"
	"nexchat/domain/event"
	"nexchat/services"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const password = "E2e!passw0rd"

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("E2E_SERVER_URL is not set")
	}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Register creates a throwaway account and returns its session.
func (s *BaseSuite) Register(prefix string) services.Session {
	username := prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	body, err := json.Marshal(auth.RegisterRequest{Username: username, Password: password})
	s.Require().NoError(err)

	resp, err := http.Post(s.Config.ServerURL+"/register", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode, "registration of %s failed", username)

	var session services.Session
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&session))
	return session
}

// Connect opens a live channel and forwards every event on the returned
// channel until the test ends.
func (s *BaseSuite) Connect(session services.Session) (*client.Client, <-chan event.ServerEvent) {
	ctx, cancel := context.WithCancel(context.Background())
	s.T().Cleanup(cancel)

	c, err := client.Dial(ctx, logs.GetLoggerFromLevel(slog.LevelDebug), s.Config.ServerURL, session.Token, session.Identity)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })

	events := make(chan event.ServerEvent, 64)
	go func() {
		_ = c.Listen(ctx, func(evt event.ServerEvent) {
			select {
			case events <- evt:
			default:
			}
		})
	}()
	return c, events
}

// Await returns the first event accepted by match.
func (s *BaseSuite) Await(events <-chan event.ServerEvent, match func(event.ServerEvent) bool) event.ServerEvent {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case evt := <-events:
			if match(evt) {
				return evt
			}
		case <-timeout:
			s.FailNow("timed out waiting for event")
			return nil
		}
	}
}

// CheckHealth probes the gRPC health service of the server.
func (s *BaseSuite) CheckHealth() grpc_health_v1.HealthCheckResponse_ServingStatus {
	conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "nexchat"})
	s.Require().NoError(err)
	return resp.GetStatus()
}
