package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ashureev/strategic-discovery/internal/config"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/llm"
	"github.com/ashureev/strategic-discovery/internal/report"
	"github.com/ashureev/strategic-discovery/internal/taxonomy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type reportOutput struct {
	Report    domain.StrategicReport `json:"report"`
	LeadScore domain.Score           `json:"leadScore"`
	LeadTier  domain.LeadTier        `json:"leadTier"`
}

// ReportCmd assembles a report in-process, without a server.
func ReportCmd() *cobra.Command {
	var (
		profilePath  string
		taxonomyPath string
		format       string
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a strategic report locally from a profile file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "text" {
				return fmt.Errorf("unknown format %q (want json or text)", format)
			}
			p, err := loadProfile(profilePath)
			if err != nil {
				return err
			}
			tree, err := loadTree(taxonomyPath)
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return err
			}
			if err := tree.ValidateProfile(p); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			gen := llm.Offline
			if cfg.HasModel() {
				gemini, err := llm.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
				if err != nil {
					return fmt.Errorf("init gemini: %w", err)
				}
				gen = llm.NewRetrying(gemini, llm.DefaultRetryConfig(), slog.Default())
			} else {
				slog.Warn("GEMINI_API_KEY not set, report uses fallback content")
			}

			orch := report.NewDefault(gen, report.Models{
				Section:   cfg.Gemini.Model,
				Synthesis: cfg.Gemini.SynthesisModel,
			}, cfg.Agents.Timeout, slog.Default(), nil, nil)
			rep := orch.AssembleReport(ctx, p)
			score := report.LeadScore(p)

			out := cmd.OutOrStdout()
			if format == "text" {
				renderReport(out, p, rep, score)
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reportOutput{Report: rep, LeadScore: score, LeadTier: domain.LeadTierFor(score)})
		},
	}
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Prospect profile (YAML or JSON)")
	cmd.Flags().StringVar(&taxonomyPath, "taxonomy", "", "Taxonomy file (default: built-in)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: json or text")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall deadline")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

// loadProfile reads a profile written in YAML or JSON. YAML is a superset
// of JSON, so both go through the YAML decoder and are then re-encoded so
// the profile's JSON field names and decoders apply.
func loadProfile(path string) (domain.ProspectProfile, error) {
	var p domain.ProspectProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if raw == nil {
		return p, fmt.Errorf("profile %s is empty", path)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	if err := json.Unmarshal(js, &p); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func loadTree(path string) (*taxonomy.Tree, error) {
	if path == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.LoadFile(path)
}
