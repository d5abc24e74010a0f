package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"

	"github.com/medlink/notify-delivery-service/internal/domain/model"
)

type statsSnapshot struct {
	Service model.ServiceStats `json:"service"`
	Hub     model.HubStats     `json:"hub"`
}

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Terminal dashboard for a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "http://localhost:8087",
				Usage: "Base URL of the server's HTTP listener",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 2 * time.Second,
				Usage: "Poll interval",
			},
		},
		Action: func(c *cli.Context) error {
			return runMonitor(c.String("addr"), c.Duration("interval"))
		},
	}
}

func runMonitor(addr string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("monitor: init terminal: %w", err)
	}
	defer ui.Close()

	summary := widgets.NewParagraph()
	summary.Title = " " + ServiceName + " "
	summary.SetRect(0, 0, 60, 8)

	connPlot := widgets.NewSparkline()
	connPlot.LineColor = ui.ColorGreen
	connGroup := widgets.NewSparklineGroup(connPlot)
	connGroup.Title = " connections "
	connGroup.SetRect(0, 8, 60, 14)

	queuedGauge := widgets.NewGauge()
	queuedGauge.Title = " queued backlog "
	queuedGauge.SetRect(0, 14, 60, 17)

	client := &http.Client{Timeout: 5 * time.Second}
	history := make([]float64, 0, 60)

	redraw := func() {
		snap, err := fetchStats(client, addr)
		if err != nil {
			summary.Text = fmt.Sprintf("unreachable: %v", err)
			ui.Render(summary)
			return
		}

		summary.Text = fmt.Sprintf(
			"online users:  %d\ntracked users: %d\nconnections:   %d\nqueued:        %d\nhub uptime:    %s",
			snap.Service.OnlineUsers,
			snap.Service.TotalTrackedUsers,
			snap.Service.TotalConnections,
			snap.Service.QueuedCount,
			snap.Hub.Uptime.Round(time.Second),
		)

		history = append(history, float64(snap.Service.TotalConnections))
		if len(history) > 60 {
			history = history[1:]
		}
		connPlot.Data = history

		// The gauge saturates at an arbitrary reference of 1000 queued.
		pct := int(snap.Service.QueuedCount / 10)
		if pct > 100 {
			pct = 100
		}
		queuedGauge.Percent = pct

		ui.Render(summary, connGroup, queuedGauge)
	}

	redraw()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	events := ui.PollEvents()

	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				redraw()
			}
		case <-ticker.C:
			redraw()
		}
	}
}

func fetchStats(client *http.Client, addr string) (*statsSnapshot, error) {
	resp, err := client.Get(addr + "/admin/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var snap statsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
