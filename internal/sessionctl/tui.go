package sessionctl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"modeld/pkg/types"
)

// styles is a small, fixed palette in the spirit of the pack's
// jinterlante1206-AleutianLocal/pkg/ux.Styles table, scaled down to what
// this REPL actually renders (prompt, session-state banner, errors) —
// the teacher carries no lipgloss usage at all, so this layer is learned
// from the pack instead.
var styles = struct {
	title lipgloss.Style
	muted lipgloss.Style
	err   lipgloss.Style
	state lipgloss.Style
}{
	title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7")),
	muted: lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89")),
	err:   lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")),
	state: lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F")),
}

// ConfigureSession runs a Huh form collecting the SessionConfig fields an
// embedder would otherwise hand Engine::CreateSession directly, then
// creates the session against client before the REPL starts.
func ConfigureSession(ctx context.Context, client *Client) (sessionID string, err error) {
	cfg := types.SessionConfig{Sampler: types.SamplerParams{Type: types.SamplerGreedy}}
	var samplerType string = string(types.SamplerGreedy)
	var temperature string = "0"
	var maxOutputTokens string = "64"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Sampler").
				Options(
					huh.NewOption("greedy", string(types.SamplerGreedy)),
					huh.NewOption("top-k", string(types.SamplerTopK)),
					huh.NewOption("top-p", string(types.SamplerTopP)),
				).
				Value(&samplerType),
			huh.NewInput().Title("Temperature").Value(&temperature),
			huh.NewInput().Title("Max output tokens").Value(&maxOutputTokens),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}

	cfg.Sampler.Type = types.SamplerType(samplerType)
	if f, perr := strconv.ParseFloat(temperature, 64); perr == nil {
		cfg.Sampler.Temperature = f
	}
	if n, perr := strconv.Atoi(maxOutputTokens); perr == nil {
		cfg.MaxOutputTokens = n
	}

	resp, err := client.CreateSession(ctx, cfg)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// model is the Bubble Tea REPL: a scrollback viewport plus a command-line
// textinput, generalizing the shape of the teacher-adjacent pack file
// jinterlante1206-AleutianLocal/cmd/aleutian/chat_runner.go's single-line
// inputModel into a persistent session with a growing transcript instead
// of one-shot line reads.
type model struct {
	ctx       context.Context
	client    *Client
	sessionID string

	input    textinput.Model
	viewport viewport.Model
	lines    []string
	busy     bool

	stream chan streamEvent
}

// streamEvent carries either one Responses chunk or the terminal error of
// a streaming decode (err set, final true) down the same channel, so
// waitForChunk's single receive loop can tell a mid-stream chunk from
// stream completion without a second channel to race against.
type streamEvent struct {
	resp  types.Responses
	err   error
	final bool
}

// chunkMsg wraps one Responses chunk delivered during a streaming decode.
type chunkMsg types.Responses

// streamDoneMsg signals a streaming decode finished, carrying its terminal error (if any).
type streamDoneMsg struct{ err error }

// resultMsg wraps the outcome of a synchronous command (prefill/score/clone/cancel/info).
type resultMsg struct {
	text string
	err  error
}

// NewModel builds the REPL model bound to an already-created session.
func NewModel(ctx context.Context, client *Client, sessionID string) model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "prefill 1,2,3 | decode 16 | score 1,2,3 | clone <dest-id> | cancel | info | quit"
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 100

	vp := viewport.New(100, 20)

	m := model{
		ctx:       ctx,
		client:    client,
		sessionID: sessionID,
		input:     ti,
		viewport:  vp,
	}
	m.appendLine(styles.title.Render("sessionctl") + " — session " + styles.state.Render(sessionID))
	m.appendLine(styles.muted.Render("type a command, or 'quit' to exit"))
	return m
}

func (m *model) appendLine(s string) {
	m.lines = append(m.lines, s)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3
		m.input.Width = msg.Width - 2
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			m.appendLine(m.input.Prompt + line)
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			return m.dispatch(line)
		}

	case chunkMsg:
		r := types.Responses(msg)
		m.appendLine(renderChunk(r))
		return m, waitForChunk(m.stream)

	case streamDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLine(styles.err.Render("decode: " + msg.err.Error()))
		}
		return m, nil

	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLine(styles.err.Render(msg.err.Error()))
		} else {
			m.appendLine(msg.text)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	return m.viewport.View() + "\n" + m.input.View()
}

// dispatch parses one command line and returns the tea.Cmd that runs it.
func (m *model) dispatch(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "prefill":
		toks, err := parseTokens(strings.Join(args, ""))
		if err != nil {
			m.appendLine(styles.err.Render(err.Error()))
			return *m, nil
		}
		m.busy = true
		return *m, m.runPrefill(toks)

	case "decode":
		n := 16
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil {
				n = v
			}
		}
		m.busy = true
		m.stream = make(chan streamEvent, 8)
		stream := m.stream
		go func() {
			err := m.client.DecodeStream(m.ctx, m.sessionID, n, func(r types.Responses) { stream <- streamEvent{resp: r} })
			stream <- streamEvent{err: err, final: true}
			close(stream)
		}()
		return *m, waitForChunk(m.stream)

	case "score":
		toks, err := parseTokens(strings.Join(args, ""))
		if err != nil {
			m.appendLine(styles.err.Render(err.Error()))
			return *m, nil
		}
		m.busy = true
		return *m, m.runScore(toks)

	case "clone":
		if len(args) < 1 {
			m.appendLine(styles.err.Render("usage: clone <dest-session-id>"))
			return *m, nil
		}
		m.busy = true
		return *m, m.runClone(args[0])

	case "cancel":
		m.busy = true
		return *m, m.runCancel()

	case "info":
		m.busy = true
		return *m, m.runInfo()

	default:
		m.appendLine(styles.err.Render("unknown command: " + cmd))
		return *m, nil
	}
}

func waitForChunk(stream chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-stream
		if !ok {
			return streamDoneMsg{}
		}
		if ev.final {
			return streamDoneMsg{err: ev.err}
		}
		return chunkMsg(ev.resp)
	}
}

func (m *model) runPrefill(toks []int32) tea.Cmd {
	return func() tea.Msg {
		r, err := m.client.Prefill(m.ctx, m.sessionID, toks)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: renderChunk(r)}
	}
}

func (m *model) runScore(toks []int32) tea.Cmd {
	return func() tea.Msg {
		r, err := m.client.Score(m.ctx, m.sessionID, toks)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: renderChunk(r)}
	}
}

func (m *model) runClone(dest string) tea.Cmd {
	return func() tea.Msg {
		r, err := m.client.Clone(m.ctx, m.sessionID, dest)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: "cloned -> " + dest + ": " + renderChunk(r)}
	}
}

func (m *model) runCancel() tea.Cmd {
	return func() tea.Msg {
		if err := m.client.Cancel(m.ctx, m.sessionID); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: styles.muted.Render("cancel requested")}
	}
}

func (m *model) runInfo() tea.Cmd {
	return func() tea.Msg {
		info, err := m.client.GetSession(m.ctx, m.sessionID)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: fmt.Sprintf("state=%s last_task_ids=%v", styles.state.Render(info.State), info.LastTaskIDs)}
	}
}

func renderChunk(r types.Responses) string {
	return fmt.Sprintf("[%s] texts=%v scores=%v", styles.state.Render(string(r.State)), r.Texts, r.Scores)
}

func parseTokens(csv string) ([]int32, error) {
	parts := strings.Split(csv, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid token %q: %w", p, err)
		}
		out = append(out, int32(n))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tokens given")
	}
	return out, nil
}
