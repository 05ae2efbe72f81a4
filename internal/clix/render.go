package clix

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"bigscreen/internal/models"
	"bigscreen/internal/services"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// PhaseString colours a phase for terminal output.
func PhaseString(p models.Phase) string {
	switch p {
	case models.PhaseCompleted:
		return color.GreenString(p.String())
	case models.PhaseFailed:
		return color.RedString(p.String())
	case models.PhaseIdle:
		return p.String()
	default:
		return color.YellowString(p.String())
	}
}

// ProgressLine is a one-line summary of a run snapshot.
func ProgressLine(run models.PipelineRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-13s %3d%%", run.Source, PhaseString(run.Phase), run.Progress)
	switch run.Phase {
	case models.PhaseExtracting:
		if len(run.Keywords) > 0 {
			fmt.Fprintf(&b, "  keywords: %s", strings.Join(run.Keywords, ", "))
		}
	case models.PhasePreprocessing:
		if len(run.CompletedSteps) > 0 {
			fmt.Fprintf(&b, "  done: %s", strings.Join(run.CompletedSteps, " > "))
		}
	case models.PhaseClassifying, models.PhaseAggregating:
		if run.Metrics != nil {
			fmt.Fprintf(&b, "  accuracy %.1f%%  f1 %.1f%%", run.Metrics.Accuracy*100, run.Metrics.F1Score*100)
		}
	case models.PhaseFailed:
		fmt.Fprintf(&b, "  %s", color.RedString(run.Error))
	}
	return b.String()
}

// RenderStages prints the task of every stage the run reached.
func RenderStages(w io.Writer, run models.PipelineRun) {
	table := newTable(w, []string{"Stage", "Task", "Status", "Progress"})
	for _, s := range run.Stages {
		table.Append([]string{string(s.Kind), s.TaskID, s.Status, strconv.Itoa(s.Progress) + "%"})
	}
	table.Render()
}

// RenderBundle prints the overall metrics and one row per result card.
func RenderBundle(w io.Writer, bundle *models.AnalysisBundle) {
	if bundle == nil {
		return
	}
	if m := bundle.Metrics; m != nil {
		fmt.Fprintf(w, "Accuracy: %.2f%%  Precision: %.2f%%  Recall: %.2f%%  F1: %.2f%%\n\n",
			m.Accuracy*100, m.Precision*100, m.Recall*100, m.F1Score*100)
	}

	cards := bundle.Cards()
	if len(cards) == 0 {
		fmt.Fprintln(w, "No category statistics.")
		return
	}
	table := newTable(w, []string{"Category", "Count", "Percentage", "Confidence", "Samples"})
	for _, c := range cards {
		table.Append([]string{
			c.Category,
			strconv.Itoa(c.Count),
			fmt.Sprintf("%.1f%%", c.Percentage),
			fmt.Sprintf("%.2f", c.Confidence),
			strconv.Itoa(c.Samples),
		})
	}
	table.Render()
}

// RenderRuns prints recorded runs, newest first.
func RenderRuns(w io.Writer, runs []*models.RunRecord) {
	table := newTable(w, []string{"ID", "Source", "Status", "Phase", "Accuracy", "Started At", "Error"})
	for _, r := range runs {
		status := r.Status
		switch r.Status {
		case models.RunStatusCompleted:
			status = color.GreenString(status)
		case models.RunStatusFailed:
			status = color.RedString(status)
		case models.RunStatusCancelled:
			status = color.YellowString(status)
		}
		acc := "-"
		if r.Accuracy != nil {
			acc = fmt.Sprintf("%.2f%%", *r.Accuracy*100)
		}
		errMsg := ""
		if r.ErrorMessage != nil {
			errMsg = *r.ErrorMessage
		}
		table.Append([]string{
			r.ID.String(),
			r.Source,
			status,
			r.Phase,
			acc,
			r.StartedAt.Local().Format(timeLayout),
			errMsg,
		})
	}
	table.Render()
}

// RenderCatalog prints the data sources with their categories.
func RenderCatalog(w io.Writer, cat *services.Catalog) {
	table := newTable(w, []string{"Type", "Name", "Documents", "Updated", "Categories"})
	for _, ds := range cat.Sources {
		categories := ds.Categories
		if mapped, ok := cat.Mapping[ds.Type]; ok {
			categories = mapped
		}
		table.Append([]string{
			ds.Type,
			ds.Name,
			strconv.Itoa(ds.Count),
			ds.LastUpdated,
			strings.Join(categories, ", "),
		})
	}
	table.Render()
}
