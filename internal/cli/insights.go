package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var insightsCmd = &cobra.Command{
	Use:   "insights [team]",
	Short: "Show a team's acceptance history per finding category",
	Long: `Print the per-category acceptance counts and the resulting scoring
bias for a team. Categories the team consistently dismisses are demoted in
future reviews; this shows by how much.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInsights,
}

func init() {
	insightsCmd.Flags().Float64("decay", 0, "scale history by this factor in (0,1) before listing")
}

func runInsights(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	team := "default"
	if len(args) == 1 {
		team = args[0]
	}

	eng, closeEngine, err := buildEngine(cfg, false, log)
	if err != nil {
		return err
	}
	defer closeEngine()

	if factor, _ := cmd.Flags().GetFloat64("decay"); factor > 0 && factor < 1 {
		if err := eng.DecayTeam(team, factor); err != nil {
			return fmt.Errorf("decaying history: %w", err)
		}
		fmt.Printf("History scaled by %.2f.\n\n", factor)
	}

	profiles, err := eng.TeamInsights(team)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Printf("No feedback recorded for team %q yet.\n", team)
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Team %s", team)))
	fmt.Printf("%-20s %9s %10s %6s\n", "CATEGORY", "ACCEPTED", "DISMISSED", "BIAS")
	for _, p := range profiles {
		fmt.Printf("%-20s %9d %10d %6.2f\n", p.Category, p.Accepted, p.Dismissed, p.Bias())
	}
	return nil
}
