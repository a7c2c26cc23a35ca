package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/gdamore/tcell/v2"
)

const (
	uiRefreshInterval = 100 * time.Millisecond
	minLogHeight      = 4
)

// Controller is the part of the scheduler the UI drives.
type Controller interface {
	Start(probeCount int) error
	Stop()
	DrainEvents() []events.Event
	ListTargets() []config.Target
	PoolSize() int
}

// UI renders the target table, the run controls and a log pane.
type UI struct {
	ctl        Controller
	logs       *LogBuffer
	table      *table
	probeCount int
	running    bool
	status     string
	sortCol    column
	sortAsc    [numColumns]bool
	sorted     bool
}

// New returns a UI instance. logs may be nil.
func New(ctl Controller, logs *LogBuffer, probeCount int) *UI {
	if logs == nil {
		logs = NewLogBuffer(0)
	}
	u := &UI{
		ctl:        ctl,
		logs:       logs,
		table:      newTable(ctl.ListTargets()),
		probeCount: clampProbes(probeCount),
	}
	for i := range u.sortAsc {
		u.sortAsc[i] = true
	}
	return u
}

// Run blocks until the context is cancelled or the user quits. An active run
// is stopped on the way out.
func (u *UI) Run(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.HideCursor()
	defer screen.Fini()
	defer u.ctl.Stop()

	// Cancelled on every return path so pollEvents exits after a quit key.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventCh := make(chan tcell.Event, 1)
	go pollEvents(ctx, screen, eventCh)

	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()

	u.render(screen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if u.handleKey(ev.Key(), ev.Rune()) {
					return context.Canceled
				}
				u.render(screen)
			case *tcell.EventResize:
				screen.Sync()
				u.render(screen)
			}
		case <-ticker.C:
			u.poll()
			u.render(screen)
		}
	}
}

// pollEvents forwards screen events until the screen is finalized or ctx is
// done.
func pollEvents(ctx context.Context, screen eventSource, out chan<- tcell.Event) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

type eventSource interface {
	PollEvent() tcell.Event
}

// poll drains the scheduler's queue into the table.
func (u *UI) poll() {
	evs := u.ctl.DrainEvents()
	for _, ev := range evs {
		u.table.apply(ev)
		switch e := ev.(type) {
		case events.RunStarted:
			u.running = true
			u.status = fmt.Sprintf("checking %d targets", e.Targets)
		case events.RunCompleted:
			u.running = false
			if e.Cancelled {
				u.status = "stopped"
			} else {
				u.status = "all checks completed"
			}
		}
	}
	if len(evs) > 0 && u.sorted {
		u.table.sortBy(u.sortCol, u.sortAsc[u.sortCol])
	}
}

// handleKey applies one key press and reports whether the UI should exit.
func (u *UI) handleKey(key tcell.Key, r rune) bool {
	switch key {
	case tcell.KeyCtrlC:
		return true
	case tcell.KeyEnter:
		u.start()
		return false
	case tcell.KeyEscape:
		u.stop()
		return false
	}

	switch {
	case r == 'q':
		return true
	case r == 's':
		u.start()
	case r == 'x':
		u.stop()
	case r == '+' || r == '=':
		if !u.running {
			u.probeCount = clampProbes(u.probeCount + 1)
		}
	case r == '-':
		if !u.running {
			u.probeCount = clampProbes(u.probeCount - 1)
		}
	case r >= '1' && r <= '8':
		u.toggleSort(column(r - '1'))
	}
	return false
}

func (u *UI) start() {
	if err := u.ctl.Start(u.probeCount); err != nil {
		u.status = err.Error()
		return
	}
	u.running = true
	u.status = "starting"
}

func (u *UI) stop() {
	if !u.running {
		return
	}
	u.ctl.Stop()
	u.status = "stopping"
}

func (u *UI) toggleSort(col column) {
	if u.sorted && u.sortCol == col {
		u.sortAsc[col] = !u.sortAsc[col]
	}
	u.sortCol = col
	u.sorted = true
	u.table.sortBy(col, u.sortAsc[col])
}

func clampProbes(n int) int {
	if n < config.MinProbeCount {
		return config.MinProbeCount
	}
	if n > config.MaxProbeCount {
		return config.MaxProbeCount
	}
	return n
}

func (u *UI) render(screen tcell.Screen) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 5 {
		screen.Show()
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	header := fmt.Sprintf(" latcheck  %s  (q to quit)", now)
	drawText(screen, 0, 0, width, header, tcell.StyleDefault.Bold(true))
	drawText(screen, 0, 1, width, u.controlsLine(), tcell.StyleDefault.Foreground(tcell.ColorGray))

	tableHeight := len(u.table.rows) + 3
	if maxTable := height - 2 - minLogHeight; tableHeight > maxTable {
		tableHeight = maxInt(3, maxTable)
	}
	u.drawTable(screen, 0, 2, width, tableHeight)

	logY := 2 + tableHeight
	if logHeight := height - logY; logHeight >= 3 {
		u.drawLogPane(screen, 0, logY, width, logHeight)
	}

	screen.Show()
}

func (u *UI) controlsLine() string {
	action := "[s] Check All"
	if u.running {
		action = "[x] Stop"
	}
	line := fmt.Sprintf(" Probes: %d [+/-]  %s  [1-8] sort  Using %d workers", u.probeCount, action, u.ctl.PoolSize())
	if u.status != "" {
		line += "  | " + u.status
	}
	return line
}

func (u *UI) drawTable(screen tcell.Screen, x, y, width, height int) {
	drawBox(screen, x, y, width, height)
	widths := layoutColumns(width - 2)

	drawStyledText(screen, x+1, y+1, width-2, u.headerLine(widths))

	maxRows := height - 3
	for i := 0; i < len(u.table.rows) && i < maxRows; i++ {
		r := u.table.rows[i]
		drawStyledText(screen, x+1, y+2+i, width-2, formatRow(r, widths))
	}
}

func (u *UI) headerLine(widths [numColumns]int) []styledRune {
	parts := make([]styledText, 0, numColumns)
	for col := column(0); col < numColumns; col++ {
		title := fmt.Sprintf("%d:%s", col+1, columnTitles[col])
		if u.sorted && u.sortCol == col {
			if u.sortAsc[col] {
				title += " ^"
			} else {
				title += " v"
			}
		}
		parts = append(parts, styledText{text: padOrTrim(title, widths[col]) + " ", style: tcell.StyleDefault.Bold(true)})
	}
	return flattenStyledText(parts, sumWidths(widths))
}

func formatRow(r *row, widths [numColumns]int) []styledRune {
	style := lossStyle(r)
	parts := make([]styledText, 0, numColumns)
	for col := column(0); col < numColumns; col++ {
		st := tcell.StyleDefault
		if col == colLoss {
			st = style
		}
		parts = append(parts, styledText{text: padOrTrim(cell(r, col), widths[col]) + " ", style: st})
	}
	return flattenStyledText(parts, sumWidths(widths))
}

func (u *UI) drawLogPane(screen tcell.Screen, x, y, width, height int) {
	drawBox(screen, x, y, width, height)
	drawText(screen, x+2, y, width-4, " Log ", tcell.StyleDefault.Bold(true))
	lines := u.logs.Tail(height - 2)
	for i, line := range lines {
		drawText(screen, x+1, y+1+i, width-2, line, tcell.StyleDefault)
	}
}

func lossStyle(r *row) tcell.Style {
	s := r.stats
	switch {
	case s.Faulted():
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	case s.Attempted == 0:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	case s.LossPct == 0:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case s.LossPct < 100:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	}
}

func sumWidths(widths [numColumns]int) int {
	total := 0
	for _, w := range widths {
		total += w + 1
	}
	return total
}

func drawBox(screen tcell.Screen, x, y, width, height int) {
	if width < 2 || height < 2 {
		return
	}
	right := x + width - 1
	bottom := y + height - 1

	setCell(screen, x, y, '+', tcell.StyleDefault)
	setCell(screen, right, y, '+', tcell.StyleDefault)
	setCell(screen, x, bottom, '+', tcell.StyleDefault)
	setCell(screen, right, bottom, '+', tcell.StyleDefault)

	for col := x + 1; col < right; col++ {
		setCell(screen, col, y, '-', tcell.StyleDefault)
		setCell(screen, col, bottom, '-', tcell.StyleDefault)
	}
	for row := y + 1; row < bottom; row++ {
		setCell(screen, x, row, '|', tcell.StyleDefault)
		setCell(screen, right, row, '|', tcell.StyleDefault)
	}
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	drawStyledText(screen, x, y, width, []styledRune{{r: []rune(text), style: style}})
}

type styledText struct {
	text  string
	style tcell.Style
}

type styledRune struct {
	r     []rune
	style tcell.Style
}

func drawStyledText(screen tcell.Screen, x, y, width int, parts []styledRune) {
	if width <= 0 {
		return
	}
	col := x
	for _, part := range parts {
		for _, r := range part.r {
			if col >= x+width {
				return
			}
			setCell(screen, col, y, r, part.style)
			col++
		}
	}
	for col < x+width {
		setCell(screen, col, y, ' ', tcell.StyleDefault)
		col++
	}
}

func flattenStyledText(parts []styledText, width int) []styledRune {
	result := make([]styledRune, 0, len(parts))
	used := 0
	for _, part := range parts {
		runes := []rune(part.text)
		if used+len(runes) > width {
			runes = runes[:maxInt(0, width-used)]
		}
		result = append(result, styledRune{r: runes, style: part.style})
		used += len(runes)
		if used >= width {
			break
		}
	}
	return result
}

func setCell(screen tcell.Screen, x, y int, r rune, style tcell.Style) {
	screen.SetContent(x, y, r, nil, style)
}

func padOrTrim(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) > width {
		return string(runes[:width])
	}
	if len(runes) < width {
		return value + strings.Repeat(" ", width-len(runes))
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
