package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/strategic-discovery/internal/client"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/flow"
	"github.com/ashureev/strategic-discovery/internal/report"
	"github.com/spf13/cobra"
)

// RunCmd drives the whole wizard against a server: profile, taxonomy,
// diagnostic questions, research, report and submission.
func RunCmd() *cobra.Command {
	var (
		server      string
		profilePath string
		prefsPath   string
		industry    string
		subIndustry string
		niche       string
		auto        bool
		noSubmit    bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Walk through the discovery wizard against a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile(profilePath)
			if err != nil {
				return err
			}
			if industry != "" {
				p.Industry, p.SubIndustry, p.Niche = industry, subIndustry, niche
			}
			c, err := client.New(server, client.WithLogger(slog.Default()))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			w := &wizard{
				out:    cmd.OutOrStdout(),
				in:     bufio.NewScanner(cmd.InOrStdin()),
				auto:   auto,
				stages: make(chan flow.Stage, 32),
			}
			ctrl, err := flow.New(ctx, c, flow.NewFilePreferences(prefsPath),
				flow.WithLogger(slog.Default()),
				flow.WithListener(w.onStage))
			if err != nil {
				return err
			}
			defer ctrl.Close()
			return w.run(ctx, ctrl, p, !noSubmit)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Discovery server URL")
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Prospect profile (YAML or JSON)")
	cmd.Flags().StringVar(&prefsPath, "prefs", defaultPrefsPath(), "Preferences file")
	cmd.Flags().StringVar(&industry, "industry", "", "Override the profile's industry")
	cmd.Flags().StringVar(&subIndustry, "sub-industry", "", "Sub-industry, with --industry")
	cmd.Flags().StringVar(&niche, "niche", "", "Niche, with --sub-industry")
	cmd.Flags().BoolVarP(&auto, "yes", "y", false, "Pick the first option of every question")
	cmd.Flags().BoolVar(&noSubmit, "no-submit", false, "Stop at the report without submitting the prospect")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

type wizard struct {
	out    io.Writer
	in     *bufio.Scanner
	auto   bool
	stages chan flow.Stage
}

// onStage runs under the controller lock, so it only queues.
func (w *wizard) onStage(_, to flow.Stage) {
	select {
	case w.stages <- to:
	default:
	}
}

func (w *wizard) run(ctx context.Context, ctrl *flow.Controller, p domain.ProspectProfile, submit bool) error {
	if err := ctrl.SubmitInput(p); err != nil {
		return err
	}
	if err := ctrl.Confirm(); err != nil {
		return err
	}
	p = ctrl.Profile()
	if err := ctrl.SelectTaxonomy(ctx, p.Industry, p.SubIndustry, p.Niche); err != nil {
		return err
	}

	for ctrl.Stage() == flow.StageQuestions {
		q, idx, total, ok := ctrl.Question()
		if !ok {
			break
		}
		fmt.Fprintf(w.out, "\n%s %s\n", labelStyle.Render(fmt.Sprintf("[%d/%d]", idx+1, total)), titleStyle.Render(q.Text))
		if q.Context != "" {
			fmt.Fprintln(w.out, labelStyle.Render(q.Context))
		}
		for i, o := range q.Options {
			fmt.Fprintf(w.out, "  %d) %s\n", i+1, o.Label)
		}
		if err := w.answer(ctx, ctrl, q); err != nil {
			return err
		}
	}

	stage, err := w.waitFor(ctx, flow.StageReport, flow.StageInput)
	if err != nil {
		return err
	}
	if stage == flow.StageInput {
		return fmt.Errorf("research failed: %s", ctrl.LastError())
	}

	_, rep := ctrl.Report()
	if rep == nil {
		return errors.New("report stage without a report")
	}
	fmt.Fprintln(w.out)
	profile := ctrl.Profile()
	renderReport(w.out, profile, *rep, report.LeadScore(profile))
	if !submit {
		return nil
	}

	lead, err := ctrl.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w.out, field("Prospect", lead.ProspectID))
	renderLead(w.out, lead.LeadScore, lead.LeadTier)
	return nil
}

// answer prompts until the controller accepts a choice. An empty line or
// closed input picks the first option.
func (w *wizard) answer(ctx context.Context, ctrl *flow.Controller, q domain.Question) error {
	for {
		var line string
		if !w.auto {
			fmt.Fprint(w.out, "> ")
			if w.in.Scan() {
				line = strings.TrimSpace(w.in.Text())
			}
		}
		ids, err := pickOptions(q, line)
		if err == nil {
			err = ctrl.Answer(ctx, ids...)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrInvalidInput) || w.auto {
			return err
		}
		fmt.Fprintln(w.out, errorStyle.Render(err.Error()))
	}
}

// pickOptions maps "2" or "1,3" to option IDs.
func pickOptions(q domain.Question, line string) ([]string, error) {
	if len(q.Options) == 0 {
		return nil, fmt.Errorf("question %s has no options", q.ID)
	}
	if line == "" {
		return []string{q.Options[0].ID}, nil
	}
	var ids []string
	for _, f := range strings.Split(line, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 1 || n > len(q.Options) {
			return nil, fmt.Errorf("%w: pick a number from 1 to %d", domain.ErrInvalidInput, len(q.Options))
		}
		ids = append(ids, q.Options[n-1].ID)
	}
	return ids, nil
}

func (w *wizard) waitFor(ctx context.Context, want ...flow.Stage) (flow.Stage, error) {
	for {
		select {
		case s := <-w.stages:
			fmt.Fprintln(w.out, stageStyle.Render("· "+string(s)))
			for _, ws := range want {
				if s == ws {
					return s, nil
				}
			}
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for report: %w", ctx.Err())
		}
	}
}
