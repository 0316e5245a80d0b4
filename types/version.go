package types

// Version is the canonical nanoplex version.
// It is recorded in reports/versions.txt and the run report.
const Version = "0.3.0"

// ReportFormatVersion is the layout version of reports/run_report.json.
// Bumped independently of Version when report fields change.
const ReportFormatVersion = "1"
