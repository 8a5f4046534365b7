// predict runs one prediction through the gateway (or directly against
// the agent) and prints the reasoning steps as they stream in.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/courtside-labs/hoopstream/internal/agent"
	"github.com/courtside-labs/hoopstream/internal/session"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8000", "prediction agent or gateway base URL")
		home    = flag.String("home", "", "home team name")
		away    = flag.String("away", "", "away team name")
		date    = flag.String("date", time.Now().Format("2006-01-02"), "game date (YYYY-MM-DD)")
		timeout = flag.Duration("timeout", agent.DefaultTimeout, "wall-clock bound for the whole stream")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *home == "" || *away == "" {
		fmt.Fprintln(os.Stderr, "usage: predict -home Lakers -away Celtics [-date 2026-02-12]")
		os.Exit(2)
	}

	runner := session.NewRunner(agent.NewClient(*baseURL, *timeout))
	runner.Start(context.Background(), agent.PredictionRequest{
		HomeTeam: *home,
		AwayTeam: *away,
		GameDate: *date,
	})

	printed := 0
	for range runner.Updates() {
		snap := runner.Snapshot()
		for ; printed < len(snap.Steps); printed++ {
			st := snap.Steps[printed]
			fmt.Printf("[%s] %s\n", st.Phase, st.Title)
			for _, line := range st.Detail {
				fmt.Printf("    %s\n", line)
			}
		}

		switch snap.Status {
		case session.StatusComplete:
			fmt.Printf("\nwinner: %s (confidence %.0f%%)\n", snap.Result.Winner, snap.Result.Confidence*100)
			if len(snap.Result.KeyFactors) > 0 {
				fmt.Printf("key factors: %s\n", strings.Join(snap.Result.KeyFactors, "; "))
			}
			if snap.Result.DetailedAnalysis != "" {
				fmt.Printf("\n%s\n", snap.Result.DetailedAnalysis)
			}
			return
		case session.StatusError:
			fmt.Fprintf(os.Stderr, "prediction failed: %s\n", snap.Err)
			os.Exit(1)
		}
	}
}
