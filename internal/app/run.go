package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/dumpstats/internal/dump"
	"github.com/brensch/dumpstats/internal/orchestrator"
)

// Task is a run driven by the view. It reports through the Deps callbacks
// that Run fills in.
type Task func(ctx context.Context, deps orchestrator.Deps) (orchestrator.Summary, error)

// Run executes task on its own goroutine while the view renders in the
// terminal. It returns the task's result.
func Run(ctx context.Context, title string, deps orchestrator.Deps, task Task, opts ...tea.ProgramOption) (orchestrator.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewRunModel(title, cancel)
	p := tea.NewProgram(model, opts...)

	deps.Progress = func(pr orchestrator.Progress) { p.Send(NewProgress(pr)) }
	deps.DownloadProgress = func(written, total int64) { p.Send(NewDownload(written, total)) }
	deps.Started = func(h dump.Handle) { p.Send(NewResolved(h)) }

	start := time.Now()
	done := make(chan TaskFinishedMsg, 1)
	go func() {
		summary, err := task(ctx, deps)
		msg := NewTaskFinished(start, summary, err)
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		res := <-done
		return res.Summary, fmt.Errorf("progress view: %w", err)
	}
	res := <-done
	return res.Summary, res.Err
}
