package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
	"github.com/desertthunder/ems/internal/shared"
)

type fakeFeed struct {
	mu        sync.Mutex
	items     []models.Notification
	listeners []func([]models.Notification)
	markErr   error
	marked    []string
}

func (f *fakeFeed) Items() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.items...)
}

func (f *fakeFeed) UnreadCount() int { return models.CountUnread(f.Items()) }

func (f *fakeFeed) Sync(ctx context.Context) ([]models.Notification, error) { return f.Items(), nil }

func (f *fakeFeed) MarkRead(ctx context.Context, id string) error {
	f.mu.Lock()
	f.marked = append(f.marked, id)
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
		}
	}
	listeners := f.listeners
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
	return f.markErr
}

func (f *fakeFeed) MarkAllRead(ctx context.Context) error { return nil }

func (f *fakeFeed) Subscribe(fn func([]models.Notification)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

type fakeSession struct {
	identity *models.Identity
	subs     []func(session.Event)
	logouts  int
}

func (s *fakeSession) Current() *models.Identity { return s.identity }

func (s *fakeSession) Subscribe(fn func(session.Event)) func() {
	s.subs = append(s.subs, fn)
	return func() {}
}

func (s *fakeSession) Logout(ctx context.Context) {
	s.logouts++
	s.emit(session.Event{From: session.Authenticated, To: session.Anonymous})
}

func (s *fakeSession) emit(ev session.Event) {
	for _, fn := range s.subs {
		fn(ev)
	}
}

func newTestModel(t *testing.T) (*Model, *fakeFeed, *fakeSession) {
	t.Helper()

	feed := &fakeFeed{items: []models.Notification{
		{ID: "n1", Message: "Booking confirmed"},
		{ID: "n2", Message: "Welcome", Read: true},
	}}
	sess := &fakeSession{identity: &models.Identity{ID: "u1", Name: "Ada", Role: models.RoleUser}}
	m := NewModel(context.Background(), feed, sess)
	t.Cleanup(m.Close)
	return m, feed, sess
}

// drain runs cmd and feeds its message back into the model.
func drain(m *Model, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	if msg := cmd(); msg != nil {
		m.Update(msg)
	}
}

func TestModel(t *testing.T) {
	t.Run("Header Shows Identity And Badge", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		view := m.View()

		if !strings.Contains(view, "Ada (USER)") || !strings.Contains(view, "1 unread") {
			t.Errorf("unexpected header: %s", view)
		}
	})

	t.Run("Enter Marks Selected Read", func(t *testing.T) {
		m, feed, _ := newTestModel(t)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		drain(m, cmd)

		if len(feed.marked) != 1 || feed.marked[0] != "n1" {
			t.Fatalf("expected n1 marked, got %v", feed.marked)
		}
		drain(m, m.waitForEvent())
		if !strings.Contains(m.View(), "0 unread") {
			t.Error("expected badge to update from the feed")
		}
	})

	t.Run("Failed Mark Shows Warning", func(t *testing.T) {
		m, feed, _ := newTestModel(t)
		feed.markErr = errors.New("server down")

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		drain(m, cmd)

		if !strings.Contains(m.View(), "server down") {
			t.Error("expected the error in the footer")
		}
	})

	t.Run("Logout Switches View", func(t *testing.T) {
		m, _, sess := newTestModel(t)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
		drain(m, cmd)
		drain(m, m.waitForEvent())

		if sess.logouts != 1 || m.ViewState() != SignedOutView {
			t.Errorf("expected signed-out view after logout, got %v", m.ViewState())
		}
	})

	t.Run("Expiry Shows Cause", func(t *testing.T) {
		m, _, sess := newTestModel(t)
		sess.emit(session.Event{From: session.Authenticated, To: session.Anonymous, Cause: shared.ErrRefreshFailed})
		drain(m, m.waitForEvent())

		if !strings.Contains(m.View(), "could not be renewed") {
			t.Errorf("expected expiry message, got %s", m.View())
		}
	})

	t.Run("Quit", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}
