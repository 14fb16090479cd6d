// Package report renders run reports for operators and automation.
//
// A Reporter prints one line per unit in a table, or emits a JSON document
// or newline-delimited JSON records:
//
//	r := report.NewReporter(os.Stdout, report.FormatTable, logger)
//	r.Render(runReport)
//	os.Exit(report.ExitCode(runReport, continueOnFailure))
//
// Rendering never fails a deployment. Write errors are logged and dropped.
package report
