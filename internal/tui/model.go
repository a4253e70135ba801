// Package tui drives a render page from the terminal with bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/trigger"
)

const logoutPrompt = "You are about to logout."

// Config wires the page to its collaborators.
type Config struct {
	Params        trigger.Params
	Presets       []string
	DefaultPreset string
	Submitter     trigger.Submitter
	Tokens        trigger.TokenProvider
	Tickers       trigger.TickerFactory
	Cookies       trigger.CookieJar
	Local         trigger.LocalStore
	Logger        *zap.Logger
}

type pageChangedMsg struct{}

type reloadMsg struct{ generation int }

type errorMsg struct {
	generation int
	detail     string
}

type logoutDoneMsg struct{ err error }

// Model is the bubbletea model over one trigger.Page. Reload replaces both page and trigger.
type Model struct {
	cfg    Config
	theme  theme
	ctx    context.Context
	cancel context.CancelFunc
	events chan tea.Msg

	generation int
	page       *trigger.Page
	trig       *trigger.Trigger
	stopRun    context.CancelFunc
	presetIdx  int

	errorDetail string
	showError   bool
	confirming  bool
	status      string
	quitting    bool
}

// New constructs a Model and its first trigger.
func New(ctx context.Context, cfg Config) *Model {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &Model{
		cfg:    cfg,
		theme:  defaultTheme(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan tea.Msg, 64),
	}
	m.presetIdx = indexOf(cfg.Presets, cfg.DefaultPreset)
	m.rebuild()
	return m
}

// Init starts listening for page events.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// Page returns the current page.
func (m *Model) Page() *trigger.Page {
	return m.page
}

// Trigger returns the current trigger.
func (m *Model) Trigger() *trigger.Trigger {
	return m.trig
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	done := m.ctx.Done()
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-done:
			return nil
		}
	}
}

// Update handles key presses and page events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case pageChangedMsg:
		return m, m.waitForEvent()
	case reloadMsg:
		if msg.generation == m.generation {
			m.rebuild()
		}
		return m, m.waitForEvent()
	case errorMsg:
		if msg.generation == m.generation {
			m.errorDetail = msg.detail
			m.showError = true
		}
		return m, m.waitForEvent()
	case logoutDoneMsg:
		if msg.err != nil {
			m.status = "Logout failed: " + msg.err.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m.quit()
	}
	if m.confirming {
		m.confirming = false
		if key == "y" || key == "Y" {
			return m, m.logout()
		}
		return m, nil
	}
	if m.showError {
		m.showError = false
		return m, nil
	}

	switch key {
	case "q":
		return m.quit()
	case "enter":
		m.trig.Activate()
	case "e":
		m.trig.ViewError()
	case "r":
		m.trig.Reload()
	case "o":
		m.confirming = true
		m.status = ""
	case "left", "h":
		m.cyclePreset(-1)
	case "right", "l", "tab":
		m.cyclePreset(1)
	}
	return m, nil
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.stopRun()
	m.cancel()
	return m, tea.Quit
}

// cyclePreset moves the preset selection while the render control is still enabled.
func (m *Model) cyclePreset(delta int) {
	n := len(m.cfg.Presets)
	if n == 0 || m.page.Disabled(trigger.ElementRender) {
		return
	}
	m.presetIdx = ((m.presetIdx+delta)%n + n) % n
	m.page.SetValue(trigger.ElementPreset, m.cfg.Presets[m.presetIdx])
}

func (m *Model) logout() tea.Cmd {
	lo := trigger.NewLogout(confirmed{}, m.cfg.Cookies, m.cfg.Local, &bridge{m: m, generation: m.generation})
	return func() tea.Msg {
		_, err := lo.Run()
		return logoutDoneMsg{err: err}
	}
}

// rebuild replaces the page and trigger, as a browser reload would.
func (m *Model) rebuild() {
	if m.stopRun != nil {
		m.stopRun()
	}
	m.generation++
	m.showError = false
	m.errorDetail = ""

	page := trigger.NewPage()
	if len(m.cfg.Presets) > 0 {
		page.SetValue(trigger.ElementPreset, m.cfg.Presets[m.presetIdx])
	}
	page.OnChange(m.notify)

	b := &bridge{m: m, generation: m.generation}
	trig := trigger.New(page, m.cfg.Submitter, m.cfg.Tokens, m.cfg.Tickers, b, b, m.cfg.Params,
		m.cfg.Logger.With(zap.Int("page", m.generation)))

	runCtx, stop := context.WithCancel(m.ctx)
	m.page, m.trig, m.stopRun = page, trig, stop
	go func() {
		if err := trig.Run(runCtx); err != nil && runCtx.Err() == nil {
			m.cfg.Logger.Debug("trigger loop ended", zap.Error(err))
		}
	}()
}

// notify coalesces page changes; View always reads the latest state.
func (m *Model) notify() {
	select {
	case m.events <- pageChangedMsg{}:
	default:
	}
}

func (m *Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	case <-m.ctx.Done():
	}
}

// View renders the page.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	t := m.theme
	var b strings.Builder

	b.WriteString(t.Header.Render("BlueMap render"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", t.Muted.Render("source:"), m.cfg.Params.Source)
	fmt.Fprintf(&b, "%s %s\n", t.Muted.Render("target:"), m.cfg.Params.Target)
	if preset := m.page.Value(trigger.ElementPreset); preset != "" {
		fmt.Fprintf(&b, "%s %s\n", t.Muted.Render("preset:"), t.Accent.Render("< "+preset+" >"))
	}
	b.WriteString("\n")

	render := m.page.Get(trigger.ElementRender)
	if render.Disabled {
		b.WriteString(t.Disabled.Render(render.Text))
	} else {
		b.WriteString(t.Button.Render(render.Text))
	}
	b.WriteString("\n")

	if timer := m.page.Get(trigger.ElementTimer); !timer.Hidden {
		b.WriteString(timer.Text + "\n")
	}
	if failed := m.page.Get(trigger.ElementFailed); !failed.Hidden {
		b.WriteString(t.Danger.Render(failed.Text) + "\n")
	}
	if success := m.page.Get(trigger.ElementSuccess); !success.Hidden {
		b.WriteString(t.Success.Render(success.Text) + "\n")
	}
	if reload := m.page.Get(trigger.ElementReload); !reload.Hidden {
		b.WriteString(t.Muted.Render(reload.Text) + "\n")
	}

	if m.showError {
		b.WriteString("\n" + t.Overlay.Render(m.errorDetail) + "\n")
	}
	if m.confirming {
		b.WriteString("\n" + logoutPrompt + " Continue? (y/n)\n")
	}
	if m.status != "" {
		b.WriteString("\n" + t.Danger.Render(m.status) + "\n")
	}

	b.WriteString("\n" + t.Muted.Render(m.help()))
	return t.Frame.Render(b.String()) + "\n"
}

func (m *Model) help() string {
	keys := []string{"enter render"}
	if len(m.cfg.Presets) > 1 {
		keys = append(keys, "←/→ preset")
	}
	if !m.page.Get(trigger.ElementViewError).Hidden {
		keys = append(keys, "e view error")
	}
	if !m.page.Get(trigger.ElementReload).Hidden {
		keys = append(keys, "r reload")
	}
	keys = append(keys, "o logout", "q quit")
	return strings.Join(keys, " • ")
}

// bridge forwards trigger callbacks into the bubbletea event stream, tagged by page generation.
type bridge struct {
	m          *Model
	generation int
}

func (b *bridge) Reload() {
	b.m.post(reloadMsg{generation: b.generation})
}

func (b *bridge) PresentError(detail string) {
	b.m.post(errorMsg{generation: b.generation, detail: detail})
}

// confirmed answers yes; the terminal prompt has already asked.
type confirmed struct{}

func (confirmed) Confirm(string) bool { return true }

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return 0
}
