// Package cmd provides command-line interface commands for the GhostMesh
// core. The status command queries a running core over its HTTP API.
package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Flags for the status command
var (
	apiAddr    string
	outputJSON bool
	noColor    bool
)

const requestTimeout = 10 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the policy state of every tracked entity",
		Long: `Queries a running GhostMesh core over its status API and prints the
current enforcement posture (normal, throttled, isolated) of every entity
the policy engine has seen.`,
		RunE: runStatus,
	}

	cmd.Flags().StringVar(&apiAddr, "api", "http://localhost:8086", "base URL of the core's status API")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output raw JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

type statusResponse struct {
	Entities map[string]string `json:"entities"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Get(apiAddr + "/api/v1/policy/status")
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Failed to reach core at %s\n", apiAddr)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status from core: %s", resp.Status)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	headerColor.Println("GhostMesh policy status")
	if len(status.Entities) == 0 {
		fmt.Println("  no entities tracked yet")
		return nil
	}

	ids := make([]string, 0, len(status.Entities))
	for id := range status.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		state := status.Entities[id]
		switch state {
		case "isolated":
			errorColor.Printf("  %-24s %s\n", id, state)
		case "throttled":
			warningColor.Printf("  %-24s %s\n", id, state)
		default:
			successColor.Printf("  %-24s %s\n", id, state)
		}
	}
	return nil
}
