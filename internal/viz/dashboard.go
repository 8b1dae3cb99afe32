package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/hgn/internal/telemetry"
)

const historyCapacity = 2000

// ProgressMsg carries one logged iteration into the dashboard.
type ProgressMsg telemetry.Progress

// DoneMsg ends the session once training has returned.
type DoneMsg struct {
	Metrics map[string]float64
	Err     error
}

// Dashboard is a read-only view of a training run. It never touches the
// model; all state arrives as messages.
type Dashboard struct {
	title     string
	total     int
	cancel    func()
	iteration int
	recon     []float64
	kl        []float64
	driftMax  []float64
	lastDrift float64
	logScale  bool
	stopping  bool
	done      bool
	err       error
	metrics   map[string]float64
}

// NewDashboard shows progress towards total iterations. cancel is invoked
// when the user quits before training is done.
func NewDashboard(title string, total int, cancel func()) Dashboard {
	return Dashboard{
		title:  title,
		total:  total,
		cancel: cancel,
		recon:  make([]float64, 0, 64),
		kl:     make([]float64, 0, 64),
	}
}

func (d Dashboard) Init() tea.Cmd { return nil }

func appendCapped(values []float64, v float64) []float64 {
	values = append(values, v)
	if len(values) > historyCapacity {
		values = values[len(values)-historyCapacity:]
	}
	return values
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if d.done {
				return d, tea.Quit
			}
			if !d.stopping && d.cancel != nil {
				d.cancel()
			}
			d.stopping = true
		case "l":
			d.logScale = !d.logScale
		}
	case ProgressMsg:
		d.iteration = msg.Iteration
		d.recon = appendCapped(d.recon, msg.Reconstruction)
		d.kl = appendCapped(d.kl, msg.KL)
		if msg.Drift != nil {
			d.lastDrift = msg.Drift.Max
			d.driftMax = appendCapped(d.driftMax, msg.Drift.Max)
		}
	case DoneMsg:
		d.done = true
		d.err = msg.Err
		d.metrics = msg.Metrics
		return d, tea.Quit
	}
	return d, nil
}

func (d Dashboard) status() string {
	switch {
	case d.err != nil:
		return statusFailed.Render("FAILED: " + d.err.Error())
	case d.done:
		return statusDone.Render("DONE")
	case d.stopping:
		return statusFailed.Render("STOPPING")
	default:
		return statusRunning.Render("TRAINING")
	}
}

func (d Dashboard) chart() string {
	if len(d.recon) < 2 {
		return keyHint.Render("waiting for losses...")
	}
	series := d.recon
	caption := "reconstruction loss"
	if d.logScale {
		series = make([]float64, len(d.recon))
		for i, v := range d.recon {
			series[i] = math.Log10(math.Max(v, 1e-12))
		}
		caption = "log10 reconstruction loss"
	}
	return graphStyle.Render(asciigraph.Plot(series,
		asciigraph.Height(8),
		asciigraph.Width(50),
		asciigraph.Precision(4),
		asciigraph.Caption(caption),
	))
}

func (d Dashboard) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(strings.ToUpper(d.title)) + "  " + d.status() + "\n\n")

	progress := 0.0
	if d.total > 0 {
		progress = float64(d.iteration+1) / float64(d.total)
	}
	s.WriteString(ProgressBar(progress, 40) + fmt.Sprintf(" %d/%d\n\n", d.iteration+1, d.total))
	s.WriteString(d.chart() + "\n\n")

	if n := len(d.recon); n > 0 {
		s.WriteString(labelStyle.Render("Reconstruction") + valueStyle.Render(fmt.Sprintf("%.6f", d.recon[n-1])) + "\n")
		s.WriteString(labelStyle.Render("KL") + valueStyle.Render(fmt.Sprintf("%.6f", d.kl[n-1])) + "  " + Sparkline(d.kl, 30) + "\n")
	}
	if len(d.driftMax) > 0 {
		s.WriteString(labelStyle.Render("Energy drift") + valueStyle.Render(fmt.Sprintf("%.2e", d.lastDrift)) + "  " + Sparkline(d.driftMax, 30) + "\n")
	}

	if len(d.metrics) > 0 {
		keys := make([]string, 0, len(d.metrics))
		for k := range d.metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.WriteString("\n")
		for _, k := range keys {
			s.WriteString(labelStyle.Render(k) + valueStyle.Render(fmt.Sprintf("%.6g", d.metrics[k])) + "\n")
		}
	}

	s.WriteString("\n" + keyHint.Render("q: stop  l: log scale"))
	return lipgloss.NewStyle().Padding(1, 2).Render(panelStyle.Render(s.String()))
}

// Watch shows a dashboard while train runs on its own goroutine. train is
// handed a callback that forwards progress to the view; its metrics and
// error are shown once it returns. Quitting early calls cancel and waits
// for train to stop.
func Watch(title string, total int, cancel func(), train func(progress func(telemetry.Progress)) (map[string]float64, error)) error {
	p := tea.NewProgram(NewDashboard(title, total, cancel))

	done := make(chan error, 1)
	go func() {
		metrics, err := train(func(pr telemetry.Progress) { p.Send(ProgressMsg(pr)) })
		p.Send(DoneMsg{Metrics: metrics, Err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		if cancel != nil {
			cancel()
		}
		<-done
		return err
	}
	return <-done
}
