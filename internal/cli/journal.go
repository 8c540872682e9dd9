package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/daybook/internal/client"
	"github.com/lazypower/daybook/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	requestTimeout = 30 * time.Second
)

// mutationFlags are shared by add, edit and rm.
type mutationFlags struct {
	date        string
	id          string
	activity    string
	description string
	start       string
	end         string
	variable    string
	value       string
	note        string
}

func (f *mutationFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.date, "date", "d", "", "day as YYYY-MM-DD (default today)")
	fs.StringVar(&f.id, "id", "", "activity entry id (edit, rm)")
	fs.StringVarP(&f.activity, "activity", "a", "", "activity name")
	fs.StringVarP(&f.description, "description", "m", "", "activity description; durations like 1h30min set the missing time")
	fs.StringVar(&f.start, "start", "", "start time HH:MM")
	fs.StringVar(&f.end, "end", "", "end time HH:MM")
	fs.StringVar(&f.variable, "variable", "", "variable name")
	fs.StringVar(&f.value, "value", "", "variable value")
	fs.StringVarP(&f.note, "note", "n", "", "note text")
}

// mutation builds the request body for facet (activity, variable or note).
func (f *mutationFlags) mutation(facet string, now time.Time) (client.Mutation, error) {
	day, err := parseDay(f.date, now)
	if err != nil {
		return client.Mutation{}, err
	}
	m := client.Mutation{
		Year:  day.Year(),
		Month: int(day.Month()),
		Day:   day.Day(),
		Type:  facet,
	}
	switch model.Facet(facet) {
	case model.FacetActivity:
		m.ID = f.id
		m.Activity = f.activity
		m.Description = f.description
		m.Start = f.start
		m.End = f.end
	case model.FacetVariable:
		m.Variable = f.variable
		m.Value = f.value
	case model.FacetNote:
		m.Note = f.note
	default:
		return client.Mutation{}, fmt.Errorf("unknown type %q (want activity, variable or note)", facet)
	}
	return m, nil
}

// parseDay reads YYYY-MM-DD, defaulting to the local calendar day of now.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

var (
	addFlags  mutationFlags
	editFlags mutationFlags
	rmFlags   mutationFlags
)

var addCmd = &cobra.Command{
	Use:   "add <activity|variable|note>",
	Short: "Log an activity, variable reading or note",
	Example: `  daybook add activity -a Running -m "30min jog with @Sam" --start 07:00
  daybook add variable --variable "Weight (kg)" --value 70
  daybook add note -n "Quiet day"`,
	Args: cobra.ExactArgs(1),
	RunE: mutateRun(&addFlags, (*client.Client).Create),
}

var editCmd = &cobra.Command{
	Use:   "edit <activity|variable|note>",
	Short: "Change a logged activity, variable reading or note",
	Args:  cobra.ExactArgs(1),
	RunE:  mutateRun(&editFlags, (*client.Client).Edit),
}

var rmCmd = &cobra.Command{
	Use:   "rm <activity|variable|note>",
	Short: "Remove a logged activity, variable reading or note",
	Args:  cobra.ExactArgs(1),
	RunE:  mutateRun(&rmFlags, (*client.Client).Delete),
}

func init() {
	addFlags.register(addCmd)
	editFlags.register(editCmd)
	rmFlags.register(rmCmd)
}

type mutateFunc func(*client.Client, context.Context, client.Mutation) (*client.Result, error)

func mutateRun(f *mutationFlags, send mutateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := f.mutation(args[0], time.Now())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		res, err := send(newClient(), ctx, m)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.ID != "" {
			fmt.Fprintf(out, "%s (%s)\n", res.Message, res.ID)
		} else {
			fmt.Fprintln(out, res.Message)
		}
		if res.Day != nil {
			renderDay(out, res.Day)
		}
		return nil
	}
}

var showCmd = &cobra.Command{
	Use:   "show [YYYY-MM-DD]",
	Short: "Show one day",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var s string
		if len(args) == 1 {
			s = args[0]
		}
		day, err := parseDay(s, time.Now())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		doc, err := newClient().Day(ctx, day.Year(), int(day.Month()), day.Day())
		if err != nil {
			return err
		}
		renderDay(cmd.OutOrStdout(), doc)
		return nil
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range <from> <to>",
	Short: "Show every logged day between two dates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		days, err := newClient().Range(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(days) == 0 {
			fmt.Fprintln(out, "Nothing logged in this range.")
			return nil
		}
		for i := range days {
			if i > 0 {
				fmt.Fprintln(out)
			}
			renderDay(out, &days[i])
		}
		return nil
	},
}

func renderDay(w io.Writer, d *model.DayDocument) {
	fmt.Fprintf(w, "## %s\n", d.Date.UTC().Format(dateLayout))
	for _, e := range d.Entries {
		fmt.Fprintf(w, "  %s-%s  %s: %s  [%s]\n", e.Start, e.End, e.Activity, e.Description, e.ID)
	}
	for _, r := range d.Variables {
		fmt.Fprintf(w, "  %s = %s\n", r.Variable, r.Value)
	}
	if d.Note != nil {
		fmt.Fprintf(w, "  note: %s\n", *d.Note)
	}
	if d.Location != nil {
		fmt.Fprintf(w, "  at %s\n", d.Location.Name)
	}
}
