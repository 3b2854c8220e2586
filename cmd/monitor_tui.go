// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/beacon/pkg/lights"
	"github.com/Thermoquad/beacon/pkg/link"
	"github.com/Thermoquad/beacon/pkg/message"
	"github.com/Thermoquad/beacon/pkg/router"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusCodeList = iota
	focusColorInput
	focusCount
)

// codeItem is one code book entry in the list
type codeItem struct {
	name string
	code message.IRCode
}

// Implement list.Item interface
func (c codeItem) Title() string       { return c.name }
func (c codeItem) Description() string { return c.code.String() }
func (c codeItem) FilterValue() string { return c.name }

// monitorDeps are the collaborators the monitor drives.
type monitorDeps struct {
	connInfo  string
	transport *link.Transport
	router    *router.Router
	book      *router.CodeBook
	actions   map[string]router.Action
	strip     lights.Strip
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	deps monitorDeps

	codeList   list.Model
	colorInput textinput.Model
	focused    int

	stats   link.Statistics
	state   link.State
	log     eventLog
	lastIR  string
	started time.Time

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type routerEventMsg router.Event

// commandResultMsg reports the outcome of a command started from the UI.
type commandResultMsg struct {
	text string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(deps monitorDeps) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "#FF8000"
	ti.CharLimit = 7
	ti.Width = 10

	items := make([]list.Item, 0, deps.book.Len())
	for _, e := range deps.book.Entries() {
		items = append(items, codeItem{name: e.Name, code: e.Code})
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	codeList := list.New(items, delegate, 30, 10)
	codeList.Title = "Codes"
	codeList.SetShowStatusBar(false)
	codeList.SetShowHelp(false)
	codeList.SetFilteringEnabled(false)

	return monitorModel{
		deps:       deps,
		codeList:   codeList,
		colorInput: ti,
		focused:    focusCodeList,
		log:        newEventLog(100),
		started:    time.Now(),
		width:      80,
		height:     24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.codeList.SetSize(m.listWidth(), m.panelHeight())
		return m, nil

	case monitorTickMsg:
		m.stats = m.deps.transport.Statistics()
		m.state = m.deps.transport.State()
		return m, monitorTickCmd()

	case routerEventMsg:
		m.processEvent(router.Event(msg))
		return m, nil

	case commandResultMsg:
		if msg.err != nil {
			m.log.add(time.Now(), msg.err.Error(), true)
		} else if msg.text != "" {
			m.log.add(time.Now(), msg.text, false)
		}
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m monitorModel) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focused {
	case focusCodeList:
		m.codeList, cmd = m.codeList.Update(msg)
	case focusColorInput:
		m.colorInput, cmd = m.colorInput.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "q":
		if m.focused != focusColorInput {
			m.quitting = true
			return m, tea.Quit
		}
	case "tab":
		return m.cycleFocus(1), nil
	case "shift+tab":
		return m.cycleFocus(-1), nil
	case "enter":
		return m.handleEnter()
	case "a":
		if m.focused == focusCodeList {
			return m, m.runSelectedAction()
		}
	}
	return m.updateFocused(msg)
}

func (m monitorModel) cycleFocus(delta int) monitorModel {
	m.focused = (m.focused + delta + focusCount) % focusCount
	if m.focused == focusColorInput {
		m.colorInput.Focus()
	} else {
		m.colorInput.Blur()
	}
	return m
}

// handleEnter starts the command for the focused widget. Router calls run
// in a tea.Cmd because they emit events back into the program.
func (m monitorModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focused {
	case focusCodeList:
		item, ok := m.codeList.SelectedItem().(codeItem)
		if !ok {
			return m, nil
		}
		r := m.deps.router
		return m, func() tea.Msg {
			r.SendByName(item.name)
			return nil
		}

	case focusColorInput:
		rgb, err := parseColor([]string{strings.TrimSpace(m.colorInput.Value())})
		if err != nil {
			m.log.add(time.Now(), err.Error(), true)
			return m, nil
		}
		m.colorInput.SetValue("")
		r, strip := m.deps.router, m.deps.strip
		return m, func() tea.Msg {
			for _, msg := range strip.Fill(rgb) {
				r.SendMessage(msg)
			}
			return commandResultMsg{text: fmt.Sprintf("Filled strip with %s", rgb)}
		}
	}
	return m, nil
}

func (m monitorModel) runSelectedAction() tea.Cmd {
	item, ok := m.codeList.SelectedItem().(codeItem)
	if !ok {
		return nil
	}
	action, ok := m.deps.actions[item.name]
	if !ok {
		name := item.name
		return func() tea.Msg {
			return commandResultMsg{err: fmt.Errorf("no action bound to %q", name)}
		}
	}
	r := m.deps.router
	return func() tea.Msg {
		if err := action(r, item.name); err != nil {
			return commandResultMsg{err: fmt.Errorf("action %q: %v", item.name, err)}
		}
		return commandResultMsg{text: fmt.Sprintf("Ran action %q", item.name)}
	}
}

func (m *monitorModel) processEvent(e router.Event) {
	now := time.Now()
	switch e.Type {
	case router.EventReceived:
		if rx, ok := e.Message.(message.IRReceived); ok {
			m.lastIR = rx.Code.String()
			if name, ok := m.deps.book.Name(rx.Code); ok {
				m.lastIR = name + "  " + m.lastIR
			}
		}
		m.log.add(now, "RX "+message.FormatMessage(e.Message), false)
		for _, v := range message.ValidateMessageFor(e.Message, m.deps.strip.LEDs) {
			m.log.add(now, v.Message, true)
		}
	case router.EventSent:
		// Strip fills produce a burst of COLOR messages; only the latch is logged.
		if c, ok := e.Message.(message.Color); ok && c.Settings&message.ColorShowAfter == 0 {
			return
		}
		m.log.add(now, "TX "+message.FormatMessage(e.Message), false)
	case router.EventActionError, router.EventUnknownName:
		m.log.add(now, e.String(), true)
	case router.EventReconnect:
		if e.OK {
			m.log.add(now, "Connected to "+e.Name, false)
		} else {
			m.log.add(now, "Connection to "+e.Name+" failed, retrying", true)
		}
	case router.EventAction, router.EventUnknownCode, router.EventNoAction:
		m.log.add(now, e.String(), false)
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) listWidth() int {
	return max(24, m.width/3)
}

func (m monitorModel) panelHeight() int {
	return max(6, m.height/3)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()
	var s strings.Builder

	// Header
	s.WriteString(st.title.Render("BEACON MONITOR"))
	s.WriteString(" ")
	connStatus := st.value.Render(m.deps.connInfo)
	if m.state != link.Connected {
		connStatus = st.warning.Render(strings.ToUpper(m.state.String()))
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | Up %s | Tab: focus  Enter: send  a: action  q: quit",
		connStatus, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Statistics
	s.WriteString(st.box.Width(m.width - 4).Render(renderStatistics(st, m.stats)))
	s.WriteString("\n")

	// Code list and controls side by side
	listStyle := st.box.Width(m.listWidth())
	inputStyle := st.box.Width(m.width - m.listWidth() - 8)
	if m.focused == focusCodeList {
		listStyle = st.focusedBox.Width(m.listWidth())
	} else {
		inputStyle = st.focusedBox.Width(m.width - m.listWidth() - 8)
	}

	var controls strings.Builder
	fmt.Fprintf(&controls, "%s %s\n\n", st.label.Render("Last IR:"), st.value.Render(orDash(m.lastIR)))
	fmt.Fprintf(&controls, "%s %d LEDs, limit %.2f\n\n", st.label.Render("Strip:"), m.deps.strip.LEDs, m.deps.strip.Limit)
	fmt.Fprintf(&controls, "%s %s", st.label.Render("Fill colour:"), m.colorInput.View())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		listStyle.Render(m.codeList.View()),
		" ",
		inputStyle.Render(controls.String()),
	))
	s.WriteString("\n")

	// Event log
	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := m.height - m.panelHeight() - 12
	s.WriteString(st.box.Width(m.width - 4).Render(renderEventLog(st, &m.log, logHeight)))

	return s.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
