package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"placement-credit-sync/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// CLIResponse is the JSON envelope every command emits with --format json.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "ok", Data: data})
}

func writeQueueText(w io.Writer, entries []model.ScoreQueueEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No queued entries.")
		return
	}

	fmt.Fprintln(w, "STUDENT_KEY\tTEST_CODE\tTEST_DATE\tSCORE\tENQUEUED_AT")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			e.StudentKey, e.TestCode, e.TestDate.Format(timeLayout), int(e.Score), e.EnqueuedAt.Format(timeLayout))
	}
	fmt.Fprintf(w, "%d queued %s\n", len(entries), plural(len(entries), "entry", "entries"))
}

func writeCreditsText(w io.Writer, studentID string, credits []model.CreditRecord) {
	if len(credits) == 0 {
		fmt.Fprintf(w, "No credits recorded for %s.\n", studentID)
		return
	}

	fmt.Fprintln(w, "COURSE\tOUTCOME\tEXAM_DATE\tSERIAL_NBR\tVERSION\tEXAM_SOURCE\tREFUSED")
	for _, c := range credits {
		refused := "-"
		if c.RefusedDate != nil {
			refused = c.RefusedDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			c.CourseID, c.Outcome, c.ExamDate.Format("2006-01-02"), c.SerialNumber, c.ExamVersion, c.ExamSource, refused)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
