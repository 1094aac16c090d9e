package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/gossipfd/gossip"
	"github.com/adamgarcia4/goLearning/gossipfd/logger"
	"github.com/adamgarcia4/goLearning/gossipfd/node"
)

var interactiveFlags = node.DefaultSimulationConfig()

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start interactive process manager",
	Long: `Start an interactive terminal UI for growing and breaking a gossip group.

The first process created is the introducer for every later one.

Keyboard shortcuts:
  C - Create a new process
  D - Delete a process (shows selection menu)
  S - Silence a process: it keeps running but sends and receives nothing
  X - Crash a process: its detector stops at the next tick
  Q - Quit

Examples:
  gossipfd interactive --base-port=50051 --tgossip=500ms`,
	Run: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	interactiveCmd.Flags().StringVar(&interactiveFlags.Host, "host", interactiveFlags.Host, "Host every process binds to")
	interactiveCmd.Flags().IntVar(&interactiveFlags.BasePort, "base-port", interactiveFlags.BasePort, "Port of the first process")
	bindGossipFlags(interactiveCmd, &interactiveFlags.Gossip)
}

// action is what the selection menu applies to the chosen process
type action string

const (
	actionDelete  action = "delete"
	actionSilence action = "silence"
	actionCrash   action = "crash"
)

type model struct {
	manager      *node.Manager
	statuses     []node.Status
	selectMode   action // empty when not selecting
	selected     int
	err          error
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // "create" or "<action>:<index>", replayed by Enter
	numericInput string // Buffer for multi-digit numeric input in select mode
}

func initialModel() model {
	// Interactive mode logs only to the buffer shown on screen
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false)
	logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	return model{
		manager:   node.NewManager(interactiveFlags, logger.L()),
		logBuffer: logBuffer,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), refreshNodes(m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func refreshNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		nodes := manager.GetNodes()
		statuses := make([]node.Status, len(nodes))
		for i, n := range nodes {
			statuses[i] = n.Status()
		}
		return nodesUpdatedMsg{statuses: statuses}
	}
}

type nodesUpdatedMsg struct {
	statuses []node.Status
}

type shutdownCompleteMsg struct {
	err error
}

// shutdownNodes stops all processes and sends a message when complete
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return shutdownCompleteMsg{err: manager.StopAll()}
	}
}

// apply runs act against the process at index
func (m model) apply(act action, index int) error {
	switch act {
	case actionDelete:
		return m.manager.DeleteNode(index)
	case actionSilence:
		return m.manager.SilenceNode(index)
	case actionCrash:
		return m.manager.CrashNode(index)
	}
	return fmt.Errorf("unknown action %q", act)
}

func (m model) create() (model, tea.Cmd) {
	if _, err := m.manager.CreateNode(); err != nil {
		m.err = err
	} else {
		m.err = nil
		m.lastCommand = "create"
	}
	return m, refreshNodes(m.manager)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, shutdownNodes(m.manager)
		}

		if m.selectMode != "" {
			return m.handleSelectMode(msg)
		}

		switch msg.String() {
		case "c", "C":
			return m.create()

		case "d", "D", "s", "S", "x", "X":
			if len(m.statuses) == 0 {
				m.err = fmt.Errorf("no processes running")
				return m, nil
			}
			m.selectMode = map[string]action{"d": actionDelete, "s": actionSilence, "x": actionCrash}[strings.ToLower(msg.String())]
			m.selected = 0
			m.numericInput = ""
			return m, nil

		case "enter":
			if m.lastCommand == "create" {
				return m.create()
			}
			if act, idx, ok := parseLastCommand(m.lastCommand); ok {
				if idx >= len(m.statuses) {
					m.err = fmt.Errorf("process %d no longer exists", idx+1)
					return m, nil
				}
				m.err = m.apply(act, idx)
				return m, refreshNodes(m.manager)
			}
			return m, nil

		case "up", "k":
			maxScroll := m.logBuffer.Len() - 15
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tick(), refreshNodes(m.manager))

	case nodesUpdatedMsg:
		m.statuses = msg.statuses
		return m, nil

	case shutdownCompleteMsg:
		if msg.err != nil {
			logger.Errorf("Error stopping processes during shutdown: %v", msg.err)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleSelectMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.selectMode = ""
		m.selected = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.statuses)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		index := m.selected
		if m.numericInput != "" {
			input := m.numericInput
			m.numericInput = ""
			num, err := strconv.Atoi(input)
			if err != nil || num < 1 || num > len(m.statuses) {
				m.err = fmt.Errorf("process %s does not exist (max: %d)", input, len(m.statuses))
				return m, nil
			}
			index = num - 1
		}

		act := m.selectMode
		if err := m.apply(act, index); err != nil {
			m.err = err
			return m, nil
		}
		m.lastCommand = fmt.Sprintf("%s:%d", act, index)
		m.selectMode = ""
		m.selected = 0
		m.err = nil
		return m, refreshNodes(m.manager)

	default:
		keyStr := msg.String()
		if len(keyStr) == 1 && keyStr >= "0" && keyStr <= "9" {
			m.numericInput += keyStr
			return m, nil
		}
		m.numericInput = ""
		return m, nil
	}
}

// parseLastCommand splits "<action>:<index>"
func parseLastCommand(cmd string) (action, int, bool) {
	act, idx, found := strings.Cut(cmd, ":")
	if !found {
		return "", 0, false
	}
	index, err := strconv.Atoi(idx)
	if err != nil {
		return "", 0, false
	}
	return action(act), index, true
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	if lastCommand == "create" {
		return "C"
	}
	if act, index, ok := parseLastCommand(lastCommand); ok {
		key := map[action]string{actionDelete: "D", actionSilence: "S", actionCrash: "X"}[act]
		return fmt.Sprintf("%s → %d", key, index+1)
	}
	return lastCommand
}

func stateColor(st node.Status) lipgloss.Color {
	switch {
	case st.Muted:
		return lipgloss.Color("214")
	case st.State == gossip.StateInGroup:
		return lipgloss.Color("42")
	case st.State == gossip.StateFailed || st.State == gossip.StateExited:
		return lipgloss.Color("196")
	default:
		return lipgloss.Color("244")
	}
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("Gossip Failure Detector"))
	s.WriteString("\n\n")

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if len(m.statuses) == 0 {
		s.WriteString("No processes running.\n\n")
	} else {
		s.WriteString("Processes:\n\n")
		for i, st := range m.statuses {
			marker := " "
			if st.Introducer {
				marker = "*"
			}
			state := st.State.String()
			if st.Muted {
				state = "SILENCED"
			}
			line := fmt.Sprintf("[%d] %s %-10s %-16s %-9s hb=%-5d members=%d failed=%d",
				i+1, marker, st.Name, st.EndPoint, state, st.Heartbeat, len(st.Members), len(st.Failed))

			style := lipgloss.NewStyle().PaddingLeft(2).Foreground(stateColor(st))
			if m.selectMode != "" && i == m.selected {
				style = style.Bold(true).Reverse(true)
			}
			s.WriteString(style.Render(line))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	// Logs, newest first
	const logCount = 15
	entries := m.logBuffer.GetRecent(logCount + m.logScroll)
	end := len(entries) - m.logScroll
	if end < 0 {
		end = 0
	}
	start := end - logCount
	if start < 0 {
		start = 0
	}

	var logLines []string
	if len(entries) == 0 {
		logLines = []string{"     | (no logs yet)"}
	}
	for i := end - 1; i >= start; i-- {
		lineNumber := len(entries) - 1 - i
		logLines = append(logLines, fmt.Sprintf("%4d | %s", lineNumber, logger.FormatLogEntry(entries[i])))
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4
	}
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logCount + 1).
		Width(boxWidth)
	s.WriteString(logStyle.Render("Logs:\n" + strings.Join(logLines, "\n")))
	s.WriteString("\n\n")

	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	if m.selectMode != "" {
		helpText := fmt.Sprintf("%s: use ↑/↓/j/k or type a process number (1-%d), Enter to confirm, Esc to cancel",
			strings.ToUpper(string(m.selectMode)), len(m.statuses))
		if m.numericInput != "" {
			helpText = fmt.Sprintf("%s: process %s, Enter to confirm, Esc to cancel", strings.ToUpper(string(m.selectMode)), m.numericInput)
		}
		s.WriteString(instructionsStyle.Render(helpText))
	} else {
		text := "C create | D delete | S silence | X crash"
		if m.lastCommand != "" {
			text += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
		}
		text += " | ↑/↓/j/k scroll logs | Q quit"
		s.WriteString(instructionsStyle.Render(text))
	}

	return s.String()
}

func runInteractive(cmd *cobra.Command, args []string) {
	if err := interactiveFlags.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		return
	}
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running interactive mode: %v\n", err)
	}
}
