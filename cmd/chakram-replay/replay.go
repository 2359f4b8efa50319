package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/chakramx/chakram/internal/config"
	"github.com/chakramx/chakram/internal/controller"
	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/trace"
)

// Summary describes what a configuration did over a recorded session.
type Summary struct {
	Session  uuid.UUID
	Samples  int
	Duration time.Duration
	Presses  int
	Releases int
	// Recorded is the number of actions captured live, for comparison.
	Recorded    int
	Activations map[string]int
	Overruns    int64
}

// countingSink wraps the dry-run sink and counts what would have been injected.
type countingSink struct {
	*input.LogSink
	presses  int
	releases int
}

func (s *countingSink) Press(a input.Action) error {
	s.presses++
	return s.LogSink.Press(a)
}

func (s *countingSink) Release(a input.Action) error {
	s.releases++
	return s.LogSink.Release(a)
}

func (s *countingSink) Send(actions []input.KeyAction) error {
	for _, ka := range actions {
		if ka.Type == input.Press {
			s.presses++
		} else {
			s.releases++
		}
	}
	return s.LogSink.Send(actions)
}

// pickSession returns the session with the given id, or the newest one when
// id is empty.
func pickSession(ctx context.Context, store *trace.Store, id string) (trace.Session, error) {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return trace.Session{}, err
	}
	if len(sessions) == 0 {
		return trace.Session{}, trace.ErrSessionNotFound
	}
	if id == "" {
		return sessions[0], nil
	}

	want, err := uuid.Parse(id)
	if err != nil {
		return trace.Session{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	for _, s := range sessions {
		if s.ID == want {
			return s, nil
		}
	}
	return trace.Session{}, fmt.Errorf("%w: %s", trace.ErrSessionNotFound, id)
}

// sessionConfig returns the configuration to replay with: the file at path
// when given, otherwise the one stored with the session.
func sessionConfig(session trace.Session, path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Parse([]byte(session.Config))
	}
	if err != nil {
		return nil, err
	}
	cfg.Input.Sink = config.SinkLog
	cfg.Trace.Enabled = false
	cfg.Telemetry.Enabled = false
	return cfg, nil
}

// replay drives a fresh controller with every recorded sample of session,
// using the sample timestamps as the clock.
func replay(ctx context.Context, logger *slog.Logger, store *trace.Store, session trace.Session, cfg *config.Config) (Summary, error) {
	samples, err := store.Samples(ctx, session.ID)
	if err != nil {
		return Summary{}, err
	}

	src := trace.NewReplaySource(samples)
	sink := &countingSink{LogSink: input.NewLogSink(logger)}
	ctrl, err := controller.New(logger, cfg, controller.Options{
		Source: src,
		Sink:   sink,
		Sleep:  func(time.Duration) {},
	})
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Session:     session.ID,
		Samples:     src.Len(),
		Recorded:    session.Actions,
		Activations: make(map[string]int),
	}
	var first, last time.Time
	prev := ""
	for t, ok := src.Next(); ok; t, ok = src.Next() {
		if err := ctx.Err(); err != nil {
			ctrl.ReleaseAll()
			return sum, err
		}
		if first.IsZero() {
			first = t
		}
		last = t

		ctrl.Tick(t)
		snap := ctrl.Snapshot()
		if snap.State != prev && snap.Sector != "" && snap.State == "active("+string(snap.Sector)+")" {
			sum.Activations[string(snap.Sector)]++
		}
		prev = snap.State
	}
	ctrl.ReleaseAll()

	sum.Duration = last.Sub(first)
	sum.Presses = sink.presses
	sum.Releases = sink.releases
	sum.Overruns = ctrl.Snapshot().TickOverruns
	return sum, nil
}

func printSessions(w io.Writer, sessions []trace.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tSAMPLES\tACTIONS")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			humanize.Time(s.StartedAt),
			duration,
			humanize.Comma(int64(s.Samples)),
			humanize.Comma(int64(s.Actions)))
	}
	return tw.Flush()
}

func printSummary(w io.Writer, sum Summary) {
	fmt.Fprintf(w, "session   %s\n", sum.Session)
	fmt.Fprintf(w, "samples   %s over %s\n", humanize.Comma(int64(sum.Samples)), sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "actions   %d press, %d release (%d recorded live)\n", sum.Presses, sum.Releases, sum.Recorded)
	fmt.Fprintf(w, "overruns  %d\n", sum.Overruns)

	names := make([]string, 0, len(sum.Activations))
	for name := range sum.Activations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %d\n", name, sum.Activations[name])
	}
}
