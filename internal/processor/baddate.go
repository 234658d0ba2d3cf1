package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brensch/dumpstats/internal/entity"
)

const (
	julianListFile    = "date_list1.txt"
	gregorianListFile = "date_list2.txt"

	julianListHeader    = "Dates marked as Julian that are more precise than year\n----\n"
	gregorianListHeader = "Dates marked as gregorian, before 1584\n----\n"

	// precisionYear is the time precision for a whole year; higher is finer.
	precisionYear = 9
	// gregorianAdoption is the first full year of the Gregorian calendar.
	gregorianAdoption = 1584
)

// BadDate lists statement ids whose time values probably carry the wrong
// calendar model.
type BadDate struct {
	Base
	julian    *bufio.Writer
	gregorian *bufio.Writer
	closers   []io.Closer
}

// NewBadDate creates the calendar model processor.
func NewBadDate(opts ...Option) Processor {
	return &BadDate{Base: newBase("baddate", opts)}
}

// SetUp opens both lists and writes their headers.
func (b *BadDate) SetUp(ctx context.Context, env Env) error {
	if err := b.Base.SetUp(ctx, env); err != nil {
		return err
	}
	var err error
	if b.julian, err = b.openList(julianListFile, julianListHeader); err != nil {
		return errors.Join(err, b.closeAll())
	}
	if b.gregorian, err = b.openList(gregorianListFile, gregorianListHeader); err != nil {
		return errors.Join(err, b.closeAll())
	}
	return nil
}

func (b *BadDate) openList(name, header string) (*bufio.Writer, error) {
	f, err := os.Create(b.env.Path(name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	b.closers = append(b.closers, f)
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(header); err != nil {
		return nil, fmt.Errorf("write header to %s: %w", name, err)
	}
	return w, nil
}

// ProcessItem checks the main snak of every statement.
func (b *BadDate) ProcessItem(item *entity.Item) error {
	for _, g := range item.StatementGroups() {
		for _, s := range g.Statements {
			t, ok := s.MainSnak.Time()
			if !ok {
				continue
			}
			b.counters.Increment("time.values")

			if t.CalendarModel == entity.CalendarJulian && t.Precision > precisionYear {
				b.counters.Increment("julian.precise")
				if _, err := b.julian.WriteString(s.ID + "\n"); err != nil {
					return fmt.Errorf("write %s: %w", julianListFile, err)
				}
			}

			if t.CalendarModel == entity.CalendarGregorian {
				year, err := t.Year()
				if err != nil {
					b.counters.Increment("time.unparsable")
					continue
				}
				if year < gregorianAdoption {
					b.counters.Increment("gregorian.pre1584")
					if _, err := b.gregorian.WriteString(s.ID + "\n"); err != nil {
						return fmt.Errorf("write %s: %w", gregorianListFile, err)
					}
				}
			}
		}
	}
	return nil
}

// TearDown flushes and closes both lists, then writes the counters.
func (b *BadDate) TearDown(context.Context) error {
	var errs []error
	for _, w := range []*bufio.Writer{b.julian, b.gregorian} {
		if w != nil {
			errs = append(errs, w.Flush())
		}
	}
	errs = append(errs, b.closeAll(), b.emit("badDateMetrics"))
	return errors.Join(errs...)
}

// Abort closes both lists without writing counters.
func (b *BadDate) Abort(context.Context) error {
	return b.closeAll()
}

func (b *BadDate) closeAll() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}
