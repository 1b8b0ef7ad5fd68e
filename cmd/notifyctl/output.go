package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"sigs.k8s.io/yaml"

	"civicnotify/internal/complaint"
)

// ContactInfo is one routing target in directory results.
type ContactInfo struct {
	City        string `json:"city,omitempty"`
	Category    string `json:"category,omitempty"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Placeholder bool   `json:"placeholder"`
}

// DirectoryResult is the result of the directory command.
type DirectoryResult struct {
	Ready            bool          `json:"ready"`
	Default          ContactInfo   `json:"default"`
	Departments      []ContactInfo `json:"departments"`
	Cities           []string      `json:"cities"`
	PlaceholderCount int           `json:"placeholderCount"`
	Errors           []string      `json:"errors,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
}

// DeliveriesResult is the result of the deliveries command.
type DeliveriesResult struct {
	Deliveries []complaint.DispatchAttempt `json:"deliveries"`
	Outcomes   map[string]int              `json:"outcomes"`
	Total      int                         `json:"total"`
}

// ComplaintInfo is a complaint row with its description shortened.
type ComplaintInfo struct {
	ID          string    `json:"id"`
	City        string    `json:"city"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Submitter   string    `json:"submitter"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ComplaintsResult is the result of the complaints command.
type ComplaintsResult struct {
	Complaints []ComplaintInfo `json:"complaints"`
}

// GatewayResult is the result of the gateway command.
type GatewayResult struct {
	Instance      string         `json:"instance"`
	AccountStatus string         `json:"accountStatus,omitempty"`
	Authenticated bool           `json:"authenticated"`
	Queue         map[string]any `json:"queue,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
}

// outputResult writes the result in the specified format.
func outputResult(w io.Writer, result any, format string) error {
	switch format {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	default:
		return outputTable(w, result)
	}
}

func outputJSON(w io.Writer, result any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func outputTable(out io.Writer, result any) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case DirectoryResult:
		outputDirectoryTable(w, r)
	case DeliveriesResult:
		outputDeliveriesTable(w, r)
	case ComplaintsResult:
		outputComplaintsTable(w, r)
	case GatewayResult:
		outputGatewayTable(w, r)
	default:
		return outputJSON(out, result)
	}
	return nil
}

func outputDirectoryTable(w *tabwriter.Writer, r DirectoryResult) {
	fmt.Fprintf(w, "CITIES\t%s\n", strings.Join(r.Cities, ", "))
	fmt.Fprintf(w, "DEFAULT\t%s (%s)%s\n\n", r.Default.Name, r.Default.Address, placeholderMark(r.Default.Placeholder))

	fmt.Fprintln(w, "CITY\tCATEGORY\tDEPARTMENT\tADDRESS")
	for _, d := range r.Departments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s%s\n", d.City, d.Category, d.Name, d.Address, placeholderMark(d.Placeholder))
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nERRORS:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  ❌ %s\n", e)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWARNINGS:")
		for _, msg := range r.Warnings {
			fmt.Fprintf(w, "  ⚠️  %s\n", msg)
		}
	}

	if r.Ready {
		fmt.Fprintln(w, "\n✅ Ready for production")
	} else {
		fmt.Fprintln(w, "\n❌ Not ready for production")
	}
}

func placeholderMark(p bool) string {
	if p {
		return "  (test number)"
	}
	return ""
}

func outputDeliveriesTable(w *tabwriter.Writer, r DeliveriesResult) {
	fmt.Fprintf(w, "TOTAL\t%d\n", r.Total)
	outcomes := make([]string, 0, len(r.Outcomes))
	for o := range r.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%d\n", strings.ToUpper(o), r.Outcomes[o])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "COMPLAINT\tROLE\tADDRESS\tOUTCOME\tATTEMPTS\tLAST ATTEMPT\tERROR")
	for _, d := range r.Deliveries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ComplaintID, d.Role, d.Address, d.Outcome, d.Attempts,
			d.LastAttemptAt.Local().Format("2006-01-02 15:04:05"), d.LastError)
	}
}

func outputComplaintsTable(w *tabwriter.Writer, r ComplaintsResult) {
	if len(r.Complaints) == 0 {
		fmt.Fprintln(w, "No complaints found")
		return
	}
	fmt.Fprintln(w, "ID\tCITY\tCATEGORY\tSTATUS\tSUBMITTED\tDESCRIPTION")
	for _, c := range r.Complaints {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.City, c.Category, c.Status, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Description)
	}
}

func outputGatewayTable(w *tabwriter.Writer, r GatewayResult) {
	fmt.Fprintf(w, "INSTANCE\t%s\n", r.Instance)
	fmt.Fprintf(w, "ACCOUNT STATUS\t%s\n", r.AccountStatus)
	fmt.Fprintf(w, "AUTHENTICATED\t%t\n", r.Authenticated)

	keys := make([]string, 0, len(r.Queue))
	for k := range r.Queue {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "QUEUE %s\t%v\n", strings.ToUpper(k), r.Queue[k])
	}

	for _, e := range r.Errors {
		fmt.Fprintf(w, "❌\t%s\n", e)
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
