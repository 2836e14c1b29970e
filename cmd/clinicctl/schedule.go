package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func (a *app) specialtiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "specialties",
		Short: "List specialties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specialties, err := a.client().ListSpecialties(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(specialties)
			}
			tw := a.table("ID", "NAME")
			for _, s := range specialties {
				fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Name)
			}
			return tw.Flush()
		},
	}
}

func (a *app) doctorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "List doctors, optionally of one specialty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawSpecialty, _ := cmd.Flags().GetString("specialty")
			specialtyID, err := optionalID("specialty", rawSpecialty)
			if err != nil {
				return err
			}
			doctors, err := a.client().ListDoctors(cmd.Context(), specialtyID)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(doctors)
			}
			tw := a.table("ID", "NAME", "SPECIALTY")
			for _, d := range doctors {
				specialty := "-"
				if d.SpecialtyID != nil {
					specialty = d.SpecialtyID.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, specialty)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("specialty", "", "Only doctors of this specialty")
	return cmd
}

func (a *app) scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or replace a doctor's working schedule",
	}
	cmd.AddCommand(a.scheduleGetCmd(), a.scheduleSetCmd())
	return cmd
}

func (a *app) scheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get DOCTOR_ID",
		Short: "Show a doctor's working schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := parseID("doctor", args[0])
			if err != nil {
				return err
			}
			entries, err := a.client().GetSchedule(cmd.Context(), doctorID)
			if err != nil {
				return err
			}
			return a.printSchedule(entries)
		},
	}
}

func (a *app) scheduleSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set DOCTOR_ID",
		Short: "Replace a doctor's working schedule from a JSON file",
		Long: "Replace a doctor's working schedule. The file holds a JSON array of schedules,\n" +
			"each with day_of_week or specific_date and its time_slots. Schedules not listed are removed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := parseID("doctor", args[0])
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("file")
			entries, err := readScheduleFile(path)
			if err != nil {
				return err
			}
			if _, err := appointment.NormalizeSchedule(doctorID, entries); err != nil {
				return err
			}

			saved, err := a.client().ReplaceSchedule(cmd.Context(), doctorID, entries)
			if err != nil {
				return err
			}
			return a.printSchedule(saved)
		},
	}
	cmd.Flags().StringP("file", "f", "", "Schedule JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readScheduleFile(path string) ([]appointment.ScheduleEntry, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("open schedule file: %w", err)
		}
		defer f.Close()
	}

	var schedules []api.ScheduleEntryRequest
	if err := json.NewDecoder(f).Decode(&schedules); err != nil {
		return nil, fmt.Errorf("%w: schedule file: %v", appointment.ErrValidation, err)
	}
	return api.ReplaceScheduleRequest{Schedules: schedules}.Entries(), nil
}

func (a *app) printSchedule(entries []appointment.ScheduleEntry) error {
	if a.jsonOutput() {
		return a.printJSON(entries)
	}
	tw := a.table("DAY", "DATE", "OPEN", "START", "END", "MAX")
	for _, e := range entries {
		date := "-"
		if e.SpecificDate != nil {
			date = *e.SpecificDate
		}
		if len(e.TimeSlots) == 0 {
			fmt.Fprintf(tw, "%d\t%s\t%t\t-\t-\t-\n", e.DayOfWeek, date, e.IsAvailable)
			continue
		}
		for _, s := range e.TimeSlots {
			fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%d\n", e.DayOfWeek, date, e.IsAvailable && s.IsAvailable, s.StartTime, s.EndTime, s.MaxPatients)
		}
	}
	return tw.Flush()
}
