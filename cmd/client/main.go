package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/cloudzz-dev/cldztalk/internal/client/api"
	"github.com/cloudzz-dev/cldztalk/internal/client/channel"
	"github.com/cloudzz-dev/cldztalk/internal/client/config"
	"github.com/cloudzz-dev/cldztalk/internal/client/logging"
	"github.com/cloudzz-dev/cldztalk/internal/client/models"
	"github.com/cloudzz-dev/cldztalk/internal/client/session"
	"github.com/cloudzz-dev/cldztalk/internal/client/store"
)

// --- Styles ---

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	textColor      = lipgloss.Color("#F9FAFB")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	unreadStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View State ---

type viewState int

const (
	viewAuth viewState = iota
	viewChats
	viewChat
	viewNewChat
)

// --- Messages ---

type tickMsg time.Time

type authResultMsg struct {
	res *api.AuthResult
	err error
}

type rosterLoadedMsg struct {
	err error
}

type chatCreatedMsg struct {
	chat *models.Chat
	err  error
}

// --- Core handles ---

// core bundles the synchronization layer. The TUI only observes its stores
// and issues commands; all reconciliation happens underneath.
type core struct {
	cfg      *config.Config
	log      *zap.Logger
	api      *api.Client
	manager  *channel.Manager
	binding  *session.Binding
	roster   *store.Roster
	messages *store.Messages
	typing   *store.Typing
	router   *store.Router
}

func newCore(cfg *config.Config) *core {
	log := logging.New(cfg.LogFile, cfg.Debug)

	manager := channel.NewManager(cfg.SocketURL, log)
	binding := session.NewBinding(manager, log)
	client := api.New(cfg.APIBaseURL, func() string {
		return binding.Session().Token
	})

	c := &core{
		cfg:     cfg,
		log:     log,
		api:     client,
		manager: manager,
		binding: binding,
	}
	return c
}

// start wires the stores against an authenticated session.
func (c *core) start(s session.Session) {
	c.roster = store.NewRoster(c.api, s.UserID, c.log)
	c.messages = store.NewMessages(c.api, c.manager, s.UserID, c.cfg.HistoryPageSize, c.cfg.ReadSettleDelay, c.log)
	c.typing = store.NewTyping(c.manager, s.UserID, c.cfg.TypingTimeout, c.cfg.TypingDebounce, c.log)
	c.router = store.NewRouter(c.manager, c.roster, c.messages, c.typing, s.UserID, c.log)

	// Connect first: a new token detaches every channel listener, so the
	// router must attach after the binding has applied the session.
	c.binding.Update(s)
	c.router.Attach()
}

// stop tears the session down; safe when never started.
func (c *core) stop() {
	if c.router != nil {
		c.router.Detach()
	}
	if c.typing != nil {
		c.typing.Close()
	}
	if c.roster != nil {
		c.roster.Reset()
	}
	if c.messages != nil {
		c.messages.Clear()
	}
	c.binding.Close()
}

// --- Main Model ---

type model struct {
	core *core

	// Auth
	authAction    string // "login" or "register"
	usernameInput textinput.Model
	passwordInput textinput.Model
	authFocused   int
	authBusy      bool
	authError     string

	// Chats
	selectedChat int

	// Chat window
	messageInput textinput.Model
	chatViewport viewport.Model
	lastTyping   bool // whether the draft was non-empty on the last keystroke

	// New chat
	newChatInput   textinput.Model
	newChatIsGroup bool
	newChatUsers   []string
	newChatError   string

	// UI
	view   viewState
	width  int
	height int
}

func initialModel(c *core) model {
	usernameInput := textinput.New()
	usernameInput.Placeholder = "Username"
	usernameInput.Focus()
	usernameInput.CharLimit = 32
	usernameInput.Width = 30

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.CharLimit = 64
	passwordInput.Width = 30

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message..."
	messageInput.CharLimit = 1000
	messageInput.Width = 50

	newChatInput := textinput.New()
	newChatInput.Placeholder = "Enter user id to add..."
	newChatInput.CharLimit = 64
	newChatInput.Width = 30

	chatViewport := viewport.New(80, 20)

	return model{
		core:          c,
		authAction:    "login",
		usernameInput: usernameInput,
		passwordInput: passwordInput,
		messageInput:  messageInput,
		newChatInput:  newChatInput,
		chatViewport:  chatViewport,
		view:          viewAuth,
	}
}

// --- Commands ---

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) authenticate() tea.Cmd {
	username := m.usernameInput.Value()
	password := m.passwordInput.Value()
	action := m.authAction
	c := m.core
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		var res *api.AuthResult
		var err error
		if action == "register" {
			res, err = c.api.Register(ctx, username, password)
		} else {
			res, err = c.api.Login(ctx, username, password)
		}
		return authResultMsg{res: res, err: err}
	}
}

func resumeSession(c *core, token string) tea.Cmd {
	return func() tea.Msg {
		// The stored token looks fresh; confirm it with the auth service
		// before binding the channel to it.
		probe := api.New(c.cfg.APIBaseURL, func() string { return token })
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		res, err := probe.ValidateToken(ctx)
		return authResultMsg{res: res, err: err}
	}
}

func loadRoster(c *core) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := c.roster.LoadRoster(ctx)
		_ = c.roster.LoadContacts(ctx)
		return rosterLoadedMsg{err: err}
	}
}

func createChat(c *core, req api.CreateChatRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		chat, err := c.api.CreateChat(ctx, req)
		return chatCreatedMsg{chat: chat, err: err}
	}
}

// --- Init ---

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, tick()}
	if profile := session.Load(m.core.cfg.Profile); profile != nil && profile.Token != "" {
		if s := session.FromToken(profile.Token); s.Authenticated {
			cmds = append(cmds, resumeSession(m.core, profile.Token))
		}
	}
	return tea.Batch(cmds...)
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = msg.Width - 4
		m.chatViewport.Height = msg.Height - 9

	case tickMsg:
		if m.view == viewChat {
			m.refreshChatViewport()
		}
		cmds = append(cmds, tick())

	case authResultMsg:
		m.authBusy = false
		if msg.err != nil {
			m.authError = msg.err.Error()
			break
		}
		s := session.FromToken(msg.res.Token)
		if !s.Authenticated {
			// Token without readable claims still authenticates; identity
			// comes from the auth response instead.
			s = session.Session{Token: msg.res.Token, Authenticated: true}
		}
		if s.UserID == "" {
			s.UserID = msg.res.User.ID
		}
		if s.Username == "" {
			s.Username = msg.res.User.Username
		}
		m.core.start(s)
		_ = session.Save(m.core.cfg.Profile, &session.Profile{
			APIBaseURL: m.core.cfg.APIBaseURL,
			SocketURL:  m.core.cfg.SocketURL,
			Username:   s.Username,
			Token:      s.Token,
		})
		m.view = viewChats
		m.authError = ""
		cmds = append(cmds, loadRoster(m.core))

	case rosterLoadedMsg:
		if msg.err != nil {
			m.core.log.Warn("roster load failed", zap.Error(msg.err))
		}

	case chatCreatedMsg:
		if msg.err != nil {
			m.newChatError = msg.err.Error()
			break
		}
		if msg.chat != nil {
			m.core.roster.AddChat(*msg.chat)
		}
		m.newChatError = ""
		m.view = viewChats
	}

	// Update text inputs
	switch m.view {
	case viewAuth:
		if m.authFocused == 0 {
			m.usernameInput, _ = m.usernameInput.Update(msg)
		} else {
			m.passwordInput, _ = m.passwordInput.Update(msg)
		}
	case viewChat:
		before := m.messageInput.Value()
		m.messageInput, _ = m.messageInput.Update(msg)
		if _, isKey := msg.(tea.KeyMsg); isKey {
			m.signalTyping(before)
		}
		m.chatViewport, _ = m.chatViewport.Update(msg)
	case viewNewChat:
		m.newChatInput, _ = m.newChatInput.Update(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.core.stop()
		return m, tea.Quit, true

	case "q":
		if m.view == viewChats {
			m.core.stop()
			return m, tea.Quit, true
		}

	case "tab":
		if m.view == viewAuth {
			if m.authFocused == 0 {
				m.authFocused = 1
				m.usernameInput.Blur()
				m.passwordInput.Focus()
			} else {
				m.authFocused = 0
				m.passwordInput.Blur()
				m.usernameInput.Focus()
			}
			return m, nil, true
		}

	case "ctrl+r":
		if m.view == viewAuth {
			if m.authAction == "login" {
				m.authAction = "register"
			} else {
				m.authAction = "login"
			}
			return m, nil, true
		}

	case "ctrl+l":
		// Logout from anywhere past auth.
		if m.view != viewAuth {
			m.core.stop()
			session.Clear(m.core.cfg.Profile)
			m.view = viewAuth
			m.usernameInput.Focus()
			return m, nil, true
		}

	case "enter":
		switch m.view {
		case viewAuth:
			if m.usernameInput.Value() != "" && m.passwordInput.Value() != "" && !m.authBusy {
				m.authBusy = true
				m.authError = ""
				return m, m.authenticate(), true
			}

		case viewChats:
			chats := m.core.roster.Chats()
			if len(chats) > 0 && m.selectedChat < len(chats) {
				chat := chats[m.selectedChat]
				m.core.router.FocusChat(context.Background(), &chat)
				m.view = viewChat
				m.messageInput.Focus()
				m.refreshChatViewport()
				return m, nil, true
			}

		case viewChat:
			if content := strings.TrimSpace(m.messageInput.Value()); content != "" {
				chat := m.core.roster.Focused()
				if chat != nil {
					m.core.router.Send(chat.ID, content, models.MessageText, receiverFor(chat, m.core.binding.Session().UserID))
				}
				m.messageInput.SetValue("")
				m.lastTyping = false
				return m, nil, true
			}

		case viewNewChat:
			if v := strings.TrimSpace(m.newChatInput.Value()); v != "" {
				m.newChatInput.SetValue("")
				m.newChatUsers = append(m.newChatUsers, v)
				return m, nil, true
			}
		}

	case "up", "k":
		if m.view == viewChats && m.selectedChat > 0 {
			m.selectedChat--
			return m, nil, true
		}

	case "down", "j":
		if m.view == viewChats && m.selectedChat < len(m.core.roster.Chats())-1 {
			m.selectedChat++
			return m, nil, true
		}

	case "n":
		if m.view == viewChats {
			m.view = viewNewChat
			m.newChatInput.Focus()
			m.newChatUsers = nil
			m.newChatError = ""
			return m, nil, true
		}

	case "r":
		if m.view == viewChats && m.core.roster.Err() != nil {
			return m, loadRoster(m.core), true
		}

	case "ctrl+g":
		if m.view == viewNewChat {
			m.newChatIsGroup = !m.newChatIsGroup
			return m, nil, true
		}

	case "ctrl+s":
		if m.view == viewNewChat && len(m.newChatUsers) > 0 {
			var name string
			if m.newChatIsGroup {
				name = fmt.Sprintf("Group: %s", strings.Join(m.newChatUsers, ", "))
			}
			return m, createChat(m.core, api.CreateChatRequest{
				Name:    name,
				IsGroup: m.newChatIsGroup,
				Members: m.newChatUsers,
			}), true
		}

	case "esc":
		if m.view == viewChat {
			m.core.router.Blur()
			m.messageInput.SetValue("")
			m.messageInput.Blur()
			m.lastTyping = false
			m.view = viewChats
			return m, nil, true
		}
		if m.view == viewNewChat {
			m.view = viewChats
			return m, nil, true
		}
	}

	return m, nil, false
}

// signalTyping translates keystrokes into typing presence commands: typing on
// every edit with a non-empty draft, stop as soon as the draft empties. The
// inactivity stop is the tracker's debounce.
func (m *model) signalTyping(before string) {
	chat := m.core.roster.Focused()
	if chat == nil {
		return
	}
	now := m.messageInput.Value()
	if now == before {
		return
	}
	if now != "" {
		m.core.typing.NotifyTyping(chat.ID)
		m.lastTyping = true
	} else if m.lastTyping {
		m.core.typing.NotifyStopped(chat.ID)
		m.lastTyping = false
	}
}

func receiverFor(chat *models.Chat, localUserID string) string {
	if chat.IsGroup {
		return ""
	}
	for _, id := range chat.MemberIDs {
		if id != localUserID {
			return id
		}
	}
	return ""
}

func (m *model) refreshChatViewport() {
	if m.core.messages == nil {
		return
	}
	localID := m.core.binding.Session().UserID

	var content strings.Builder
	for _, msg := range m.core.messages.List() {
		timestamp := msg.CreatedAt.Local().Format("15:04")
		style := otherMessageStyle
		if msg.SenderID == localID {
			style = ownMessageStyle
		}
		sender := msg.SenderName
		if sender == "" {
			sender = msg.SenderID
		}
		body := msg.Content
		if msg.Type != models.MessageText && msg.FileName != "" {
			body = fmt.Sprintf("[%s] %s", msg.Type, msg.FileName)
		}
		read := ""
		if msg.SenderID == localID && msg.IsRead {
			read = mutedStyle.Render(" ✓✓")
		}
		content.WriteString(fmt.Sprintf("%s %s: %s%s\n",
			mutedStyle.Render(timestamp),
			style.Render(sender),
			body,
			read,
		))
	}
	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// --- View ---

func (m model) View() string {
	var body string
	switch m.view {
	case viewAuth:
		body = m.authView()
	case viewChats:
		body = m.chatsView()
	case viewChat:
		body = m.chatView()
	case viewNewChat:
		body = m.newChatView()
	}

	if m.view != viewAuth && m.core.manager != nil && !m.core.manager.IsConnected() {
		banner := errorStyle.Render(" ⟳ disconnected — reconnecting... ")
		body = banner + "\n" + body
	}
	return body
}

func (m model) authView() string {
	var s strings.Builder

	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render("CLDZTALK"))
	s.WriteString("\n\n")

	if m.authAction == "login" {
		s.WriteString(selectedStyle.Render("  → Login"))
		s.WriteString(mutedStyle.Render("   Register\n"))
	} else {
		s.WriteString(mutedStyle.Render("  Login   "))
		s.WriteString(selectedStyle.Render("→ Register\n"))
	}
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	s.WriteString("  Username:\n")
	s.WriteString("  " + m.usernameInput.View() + "\n\n")
	s.WriteString("  Password:\n")
	s.WriteString("  " + m.passwordInput.View() + "\n\n")

	if m.authBusy {
		s.WriteString(mutedStyle.Render("  Signing in...\n\n"))
	}
	if m.authError != "" {
		s.WriteString(errorStyle.Render("  " + m.authError + "\n\n"))
	}

	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to submit • Ctrl+C to quit\n"))

	return s.String()
}

func (m model) chatsView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("CLDZTALK - %s", m.core.binding.Session().Username)))
	s.WriteString("\n\n")

	chats := m.core.roster.Chats()
	if m.core.roster.Err() != nil {
		s.WriteString(errorStyle.Render("  Could not refresh conversations.\n"))
		s.WriteString(helpStyle.Render("  Press 'r' to retry.\n\n"))
	}

	if len(chats) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
		s.WriteString(mutedStyle.Render("  Press 'n' to start a new one.\n"))
	} else {
		for i, chat := range chats {
			name := chat.Name
			if name == "" {
				name = "DM " + chat.ID
			}

			prefix := "  "
			style := lipgloss.NewStyle()
			if i == m.selectedChat {
				prefix = "→ "
				style = selectedStyle
			}

			icon := "💬"
			if chat.IsGroup {
				icon = "👥"
			}
			online := ""
			if chat.IsOnline {
				online = selectedStyle.Render(" ●")
			}
			badge := ""
			if chat.UnreadCount > 0 {
				badge = " " + unreadStyle.Render(fmt.Sprintf("%d", chat.UnreadCount))
			}
			last := ""
			if chat.LastMessage != nil {
				preview := chat.LastMessage.Content
				if len(preview) > 32 {
					preview = preview[:32] + "…"
				}
				last = mutedStyle.Render("  " + preview)
			}

			s.WriteString(style.Render(fmt.Sprintf("%s%s %s", prefix, icon, name)))
			s.WriteString(online + badge + last + "\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • n for new • Ctrl+L logout • q to quit"))

	return s.String()
}

func (m model) chatView() string {
	var s strings.Builder

	chat := m.core.roster.Focused()
	name := "Conversation"
	status := ""
	if chat != nil {
		if chat.Name != "" {
			name = chat.Name
		}
		if chat.IsOnline {
			status = selectedStyle.Render("online")
		} else if !chat.LastSeenAt.IsZero() {
			status = mutedStyle.Render("last seen " + chat.LastSeenAt.Local().Format("15:04"))
		}
	}

	s.WriteString(titleStyle.Render(fmt.Sprintf("💬 %s", name)))
	if status != "" {
		s.WriteString("  " + status)
	}
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 10)))
	s.WriteString("\n")

	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")

	if chat != nil {
		if users := m.core.typing.Users(chat.ID); len(users) > 0 {
			names := make([]string, len(users))
			for i, u := range users {
				names[i] = u.Username
			}
			s.WriteString(mutedStyle.Render(fmt.Sprintf("  %s typing...", strings.Join(names, ", "))))
		}
	}
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", max(m.width-2, 10)))
	s.WriteString("\n")
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Enter to send • Esc to go back"))

	return s.String()
}

func (m model) newChatView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("New Conversation"))
	s.WriteString("\n\n")

	groupLabel := "Direct Message"
	if m.newChatIsGroup {
		groupLabel = "Group Chat"
	}
	s.WriteString(fmt.Sprintf("  Type: %s\n", selectedStyle.Render(groupLabel)))
	s.WriteString(helpStyle.Render("  (Ctrl+G to toggle)\n\n"))

	s.WriteString("  Add members:\n")
	s.WriteString("  " + m.newChatInput.View() + "\n\n")

	if contacts := m.core.roster.Contacts(); len(contacts) > 0 {
		s.WriteString(mutedStyle.Render("  Contacts:\n"))
		for _, c := range contacts {
			dot := " "
			if c.IsOnline {
				dot = selectedStyle.Render("●")
			}
			s.WriteString(fmt.Sprintf("    %s %s (%s)\n", dot, c.Username, c.ID))
		}
		s.WriteString("\n")
	}

	if len(m.newChatUsers) > 0 {
		s.WriteString("  Added:\n")
		for _, u := range m.newChatUsers {
			s.WriteString(fmt.Sprintf("    • %s\n", u))
		}
	}

	if m.newChatError != "" {
		s.WriteString(errorStyle.Render("\n  " + m.newChatError + "\n"))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  Enter to add member • Ctrl+S to create • Esc to cancel"))

	return s.String()
}

// --- Main ---

func main() {
	cfg := config.Load()

	// A stored profile overrides the compiled-in endpoints.
	if profile := session.Load(cfg.Profile); profile != nil {
		if profile.APIBaseURL != "" {
			cfg.APIBaseURL = profile.APIBaseURL
		}
		if profile.SocketURL != "" {
			cfg.SocketURL = profile.SocketURL
		}
	}

	c := newCore(cfg)
	defer c.log.Sync()

	p := tea.NewProgram(initialModel(c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
