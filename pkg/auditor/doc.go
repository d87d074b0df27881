// Package auditor normalizes cloud.gov audit events and classifies them into
// a daily security summary.
//
// Quick start:
//
//	a, err := auditor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, _ := a.Summarize(exportBytes, time.Now())
//	fmt.Println(report.Summary.FailedLogins, report.Summary.Status)
//
// Input may be a Cloud Controller JSON document ({"resources": [...]}), a
// bare JSON array of events, or the delimited text export. The Auditor is
// safe for concurrent use.
package auditor
