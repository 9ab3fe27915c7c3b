package e2e

import (
	"chat-notify/auth"
	"chat-notify/client"
	"chat-notify/domain"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

type BaseNotifySuite struct {
	suite.Suite
	Config Config
	signer *auth.Signer
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseNotifySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.URL == "" {
		s.T().Skip("NOTIFY_URL is not set")
	}
	s.signer, err = auth.LoadSigner(s.Config.SigningKey, s.Config.Issuer, s.Config.Audience)
	s.Require().NoError(err)
}

// Step prints a colorized header for a scenario step
func (s *BaseNotifySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// As returns an API client authenticated as userID
func (s *BaseNotifySuite) As(userID domain.UserID) *client.Client {
	token, err := s.signer.GenerateToken(auth.Claims{UserID: int64(userID)}, 10*time.Minute)
	s.Require().NoError(err)
	return client.New(s.Config.URL, token, nil)
}

// Inbox collects the events streamed to one user.
type Inbox struct {
	mu     sync.Mutex
	events []client.Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens the event stream of userID and returns once the server accepted it.
func (s *BaseNotifySuite) Subscribe(userID domain.UserID) *Inbox {
	ctx, cancel := context.WithCancel(context.Background())
	inbox := &Inbox{cancel: cancel, done: make(chan struct{})}
	opened := make(chan struct{})
	c := s.As(userID)

	go func() {
		defer close(inbox.done)
		_ = c.Stream(ctx, func() { close(opened) }, func(e client.Event) error {
			inbox.mu.Lock()
			defer inbox.mu.Unlock()
			s.T().Logf("user %d <- %s %s", userID, e.Name, e.Data)
			inbox.events = append(inbox.events, e)
			return nil
		})
	}()

	select {
	case <-opened:
	case <-inbox.done:
		s.FailNow("stream closed before opening", "user %d", userID)
	case <-time.After(5 * time.Second):
		s.FailNow("stream did not open", "user %d", userID)
	}
	return inbox
}

// Names lists the event labels received so far.
func (i *Inbox) Names() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	names := make([]string, 0, len(i.events))
	for _, e := range i.events {
		names = append(names, e.Name)
	}
	return names
}

func (i *Inbox) Close() {
	i.cancel()
	<-i.done
}
