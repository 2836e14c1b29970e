package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hackgods/clinic-scheduling/internal/client"
)

type app struct {
	v   *viper.Viper
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}
	a.v.SetEnvPrefix("CLINIC")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Book and manage clinic appointments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "Scheduling API base URL")
	flags.Duration("timeout", 10*time.Second, "Per-request timeout")
	flags.StringP("output", "o", "table", "Output format: table or json")
	flags.String("patient-id", "", "Patient booking on whose behalf")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		a.slotsCmd(),
		a.bookCmd(),
		a.listCmd(),
		a.conflictsCmd(),
		a.transitionCmd(),
		a.bulkCmd(),
		a.specialtiesCmd(),
		a.doctorsCmd(),
		a.scheduleCmd(),
	)
	return root
}

func (a *app) client() *client.Client {
	return client.New(a.v.GetString("api-url"), client.WithTimeout(a.v.GetDuration("timeout")))
}

func (a *app) jsonOutput() bool {
	return a.v.GetString("output") == "json"
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) table(header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %q is not a valid UUID", name, raw)
	}
	return id, nil
}

func optionalID(name, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return parseID(name, raw)
}
