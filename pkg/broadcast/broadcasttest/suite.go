// Package broadcasttest holds the conformance suite every broadcast.Channel
// implementation runs in its own tests.
package broadcasttest

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/elector"
	"leaderbus/pkg/models"
)

// Suite checks the delivery guarantees the elector relies on.
type Suite struct {
	suite.Suite

	// Open connects a new participant to topic.
	Open func(topic string) (broadcast.Channel, error)
	// Integration marks suites that need an external server.
	Integration bool
	// Latency is the expected delivery delay, used to size waits.
	Latency time.Duration

	topic  string
	opened []broadcast.Channel
}

func (s *Suite) SetupSuite() {
	if s.Integration && os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		s.T().Skip("Skipping integration tests (SKIP_INTEGRATION_TESTS=true)")
	}
	if s.Latency <= 0 {
		s.Latency = 50 * time.Millisecond
	}
}

func (s *Suite) SetupTest() {
	s.topic = "leaderbus-test-" + uuid.NewString()
	s.opened = nil
}

func (s *Suite) TearDownTest() {
	for _, ch := range s.opened {
		ch.Close()
	}
}

func (s *Suite) open() broadcast.Channel {
	ch, err := s.Open(s.topic)
	if err != nil {
		s.T().Skipf("Skipping: transport unavailable: %v", err)
	}
	s.opened = append(s.opened, ch)
	return ch
}

type inbox struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (in *inbox) add(m models.Message) {
	in.mu.Lock()
	in.msgs = append(in.msgs, m)
	in.mu.Unlock()
}

func (in *inbox) has(action models.Action, token string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, m := range in.msgs {
		if m.Action == action && m.Token == token {
			return true
		}
	}
	return false
}

func (in *inbox) len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.msgs)
}

func (s *Suite) TestPublishReachesEveryParticipant() {
	a, b := s.open(), s.open()
	var inA, inB inbox
	_, err := a.Subscribe(inA.add)
	s.Require().NoError(err)
	_, err = b.Subscribe(inB.add)
	s.Require().NoError(err)

	s.Require().NoError(a.Publish(context.Background(), models.NewMessage(models.ActionApply, "tok-a")))

	s.Eventually(func() bool { return inA.has(models.ActionApply, "tok-a") }, 20*s.Latency, time.Millisecond,
		"publisher must see its own message")
	s.Eventually(func() bool { return inB.has(models.ActionApply, "tok-a") }, 20*s.Latency, time.Millisecond)
}

func (s *Suite) TestUnsubscribeStopsDelivery() {
	a := s.open()
	var in inbox
	sub, err := a.Subscribe(in.add)
	s.Require().NoError(err)
	s.Require().NoError(sub.Unsubscribe())
	s.Require().NoError(sub.Unsubscribe())

	s.Require().NoError(a.Publish(context.Background(), models.NewMessage(models.ActionDepart, "x")))
	time.Sleep(2 * s.Latency)
	s.Equal(0, in.len())
}

func (s *Suite) TestClosedChannelRejectsPublish() {
	a := s.open()
	s.Require().NoError(a.Close())
	s.NoError(a.Close())

	err := a.Publish(context.Background(), models.NewMessage(models.ActionApply, "x"))
	s.True(errors.Is(err, broadcast.ErrClosed), "got %v", err)
}

func (s *Suite) TestElectsOneLeader() {
	window := 4 * s.Latency
	electors := make([]*elector.Elector, 0, 3)
	for _, tok := range []string{"a", "b", "c"} {
		e := elector.New(s.open(),
			elector.WithToken(tok),
			elector.WithLogger(zap.NewNop()),
			elector.WithResponseWindow(window),
			elector.WithFallbackInterval(5*window),
		)
		defer e.Close()
		electors = append(electors, e)
		e.RequestLeadership()
	}

	leaders := func() int {
		n := 0
		for _, e := range electors {
			if e.IsLeader() {
				n++
			}
		}
		return n
	}
	s.Eventually(func() bool { return leaders() == 1 }, 40*window, window/4)

	time.Sleep(10 * window)
	s.Equal(1, leaders(), "leadership must be stable once settled")
}
