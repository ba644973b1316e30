// ABOUTME: Shared output helpers for nexusctl commands
// ABOUTME: JSON mode plus colored key/value and run rendering

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/2389/nexus-gateway/internal/client"
)

var (
	labelColor  = color.New(color.FgCyan)
	okColor     = color.New(color.FgGreen)
	failColor   = color.New(color.FgRed)
	mutedColor  = color.New(color.FgHiBlack)
)

// printJSON writes v as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printField(label string, value any) {
	labelColor.Printf("%-12s", label)
	fmt.Printf(" %v\n", value)
}

// printRun renders a run for human eyes, or JSON in --json mode.
func printRun(run *client.Run) error {
	if jsonOutput {
		return printJSON(run)
	}

	printField("run_id", run.RunID)
	printField("workflow", run.WorkflowID)
	switch run.Status {
	case "completed":
		labelColor.Printf("%-12s ", "status")
		okColor.Println(run.Status)
	case "failed", "cancelled":
		labelColor.Printf("%-12s ", "status")
		failColor.Println(run.Status)
	default:
		printField("status", run.Status)
	}
	if run.Error != "" {
		printField("error", run.Error)
	}
	if run.Result != nil {
		result, err := json.MarshalIndent(run.Result, "", "  ")
		if err != nil {
			return err
		}
		labelColor.Println("result")
		fmt.Println(string(result))
	}
	if run.EndedAt != nil {
		mutedColor.Printf("%-12s %s\n", "ended_at", run.EndedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
