package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	SignedOutView
)

// Feed is the notification list the TUI shows.
type Feed interface {
	Items() []models.Notification
	UnreadCount() int
	Sync(ctx context.Context) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Subscribe(fn func([]models.Notification)) (unsubscribe func())
}

// Session is the session surface the TUI needs.
type Session interface {
	Current() *models.Identity
	Subscribe(fn func(session.Event)) (unsubscribe func())
	Logout(ctx context.Context)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	feed     Feed
	session  Session
	identity *models.Identity
	width    int
	height   int
	list     list.Model
	events   chan tea.Msg
	unsubs   []func()
	status   string
	err      error
	cause    error
	help     help.Model
	keys     keyMap
}

// NewModel creates a TUI model and subscribes it to feed and sess. Call [Model.Close] when done.
func NewModel(ctx context.Context, feed Feed, sess Session) *Model {
	m := &Model{
		ctx:      ctx,
		feed:     feed,
		session:  sess,
		identity: sess.Current(),
		events:   make(chan tea.Msg, 32),
		help:     help.New(),
		keys:     newKeyMap(),
	}
	if m.identity == nil {
		m.view = SignedOutView
	}

	m.list = list.New(toItems(feed.Items()), list.NewDefaultDelegate(), 0, 0)
	m.list.Title = "Notifications"
	m.list.SetShowHelp(false)

	m.unsubs = append(m.unsubs,
		feed.Subscribe(func([]models.Notification) { m.send(feedChangedMsg()) }),
		sess.Subscribe(func(ev session.Event) { m.send(sessionChangedMsg(ev)) }),
	)
	return m
}

// send drops the message when the buffer is full rather than block a subscriber.
func (m *Model) send(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

// Close removes the model's subscriptions.
func (m *Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

// ViewState returns the active view.
func (m *Model) ViewState() ViewState { return m.view }

// Init starts a sync and begins draining subscription events.
func (m *Model) Init() tea.Cmd {
	if m.view == SignedOutView {
		return m.waitForEvent()
	}
	return tea.Batch(m.sync(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if m.view == ListView {
			return m.handleListKeys(msg)
		}
		return m, nil

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgFeedChanged:
		cmd := m.list.SetItems(toItems(m.feed.Items()))
		return m, tea.Batch(cmd, m.waitForEvent())

	case MsgSessionChanged:
		ev := msg.data.(session.Event)
		switch ev.To {
		case session.Authenticated:
			m.identity = ev.Identity
			m.view = ListView
			m.cause = nil
		case session.Anonymous:
			m.identity = nil
			m.view = SignedOutView
			m.cause = ev.Cause
		}
		return m, m.waitForEvent()

	case MsgActionDone:
		done := msg.data.(struct {
			action string
			err    error
		})
		m.err = done.err
		if done.err == nil {
			m.status = done.action
		} else {
			m.status = ""
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.read):
		if item, ok := m.list.SelectedItem().(notificationItem); ok && !item.n.Read {
			return m, m.markRead(item.n.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.readAll):
		return m, m.markAllRead()
	case key.Matches(msg, m.keys.refresh):
		return m, m.sync()
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) sync() tea.Cmd {
	return func() tea.Msg {
		_, err := m.feed.Sync(m.ctx)
		return actionDoneMsg("refreshed", err)
	}
}

func (m *Model) markRead(id string) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg("marked read", m.feed.MarkRead(m.ctx, id))
	}
}

func (m *Model) markAllRead() tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg("marked all read", m.feed.MarkAllRead(m.ctx))
	}
}

func (m *Model) logout() tea.Cmd {
	return func() tea.Msg {
		m.session.Logout(m.ctx)
		return actionDoneMsg("signed out", nil)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SignedOutView:
		return m.renderSignedOut()
	default:
		return m.renderList()
	}
}

func (m *Model) header() string {
	who := ""
	if m.identity != nil {
		who = fmt.Sprintf("%s (%s)", m.identity.Name, m.identity.Role)
	}
	badge := styles.badge.Render(fmt.Sprintf("%d unread", m.feed.UnreadCount()))
	return fmt.Sprintf("%s  %s", styles.title.UnsetMarginBottom().Render(who), badge)
}

func (m *Model) footer() string {
	line := m.help.ShortHelpView(m.keys.ShortHelp())
	switch {
	case m.err != nil:
		line = styles.warn.Render(fmt.Sprintf("⚠ %v", m.err)) + "\n" + line
	case m.status != "":
		line = styles.ok.Render("✓ "+m.status) + "\n" + line
	}
	return line
}

func (m *Model) renderList() string {
	return fmt.Sprintf("%s\n\n%s\n\n%s", m.header(), m.list.View(), m.footer())
}

func (m *Model) renderSignedOut() string {
	title := styles.title.Render("Signed out")
	reason := "Run `ems auth login` to sign in again."
	if m.cause != nil {
		reason = fmt.Sprintf("Your session could not be renewed (%v).\n%s", m.cause, reason)
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.muted.Render(reason), m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}
