package main

import (
	"fmt"
	"strings"

	"github.com/bazelment/quill/transcript"
)

// printLine renders one transcript line. Unknown kinds print their raw
// text so newer servers stay usable with this client.
func printLine(l transcript.Line) {
	switch l.Kind {
	case transcript.LineUser:
		fmt.Printf("> %s\n", l.Text)
	case transcript.LineReasoning:
		fmt.Printf("  [thinking] %s\n", indent(l.Text))
	case transcript.LineAssistant:
		fmt.Printf("%s\n", l.Text)
	case transcript.LineToolCall:
		printToolCall(l)
	case transcript.LineError:
		fmt.Printf("  error: %s\n", l.Text)
	case transcript.LineSummary:
		fmt.Printf("  --- %d earlier messages summarized ---\n  %s\n", l.SummaryCount, indent(l.Text))
	default:
		if l.Text != "" {
			fmt.Printf("  %s\n", l.Text)
		}
	}
}

func printToolCall(l transcript.Line) {
	status := "running"
	switch {
	case l.Phase == transcript.PhaseReady:
		status = "awaiting approval"
	case l.Interrupted:
		status = "interrupted"
	case l.HasResult && l.ResultOK:
		status = "ok"
	case l.HasResult:
		status = "failed"
	}
	fmt.Printf("  [%s] %s %s\n", status, l.ToolName, l.ArgsText)
	if l.HasResult && l.ResultText != "" {
		fmt.Printf("    %s\n", indent(l.ResultText))
	}
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}

func printApprovals(reqs []transcript.ApprovalRequest) {
	if len(reqs) == 0 {
		return
	}
	fmt.Printf("\n%d tool call(s) awaiting approval:\n", len(reqs))
	for _, r := range reqs {
		fmt.Printf("  %s  %s %s\n", r.ToolCallID, r.ToolName, r.ToolArgs)
	}
}
