package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/console"
)

func (a *app) slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots DOCTOR_ID",
		Short: "Show a doctor's slots for one date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := parseID("doctor", args[0])
			if err != nil {
				return err
			}
			date, _ := cmd.Flags().GetString("date")

			slots, err := a.client().ResolveSlots(cmd.Context(), doctorID, date)
			if err != nil {
				return err
			}
			morning, afternoon := appointment.PartitionSlots(slots)
			if a.jsonOutput() {
				return a.printJSON(booking.SlotGroups{Morning: morning, Afternoon: afternoon})
			}

			tw := a.table("PERIOD", "START", "END", "AVAILABLE", "SLOT")
			for _, part := range []struct {
				name  string
				slots []appointment.TimeSlot
			}{{"morning", morning}, {"afternoon", afternoon}} {
				for _, s := range part.slots {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", part.name, s.StartTime, s.EndTime, s.IsAvailable, s.ID)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("date", "", "Date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot through the booking wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			patientID, err := parseID("patient", a.v.GetString("patient-id"))
			if err != nil {
				return err
			}
			rawSpecialty, _ := flags.GetString("specialty")
			specialtyID, err := parseID("specialty", rawSpecialty)
			if err != nil {
				return err
			}
			rawDoctor, _ := flags.GetString("doctor")
			doctorID, err := parseID("doctor", rawDoctor)
			if err != nil {
				return err
			}
			rawSlot, _ := flags.GetString("slot")
			slotID, err := parseID("slot", rawSlot)
			if err != nil {
				return err
			}
			date, _ := flags.GetString("date")
			symptoms, _ := flags.GetString("symptoms")
			notes, _ := flags.GetString("notes")

			w := booking.NewWizard(a.client(), patientID)
			if err := w.SelectSpecialty(cmd.Context(), specialtyID); err != nil {
				return err
			}
			if err := w.SelectDoctor(cmd.Context(), doctorID); err != nil {
				return err
			}
			groups, err := w.Slots(cmd.Context(), date)
			if err != nil {
				return err
			}
			if len(groups.Morning)+len(groups.Afternoon) == 0 {
				return fmt.Errorf("no slots found for doctor %s on %s", doctorID, date)
			}
			if err := w.SelectSlot(date, slotID); err != nil {
				return err
			}
			if err := w.SetDetails(symptoms, notes); err != nil {
				return err
			}

			appt, err := w.Commit(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(appt)
			}
			fmt.Fprintf(a.out, "booked %s on %s at %s (%s)\n",
				appt.ID, appt.AppointmentDate, appt.AppointmentTime, appt.Status.Label())
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("specialty", "", "Specialty ID")
	flags.String("doctor", "", "Doctor ID")
	flags.String("date", "", "Date as YYYY-MM-DD")
	flags.String("slot", "", "Time slot ID")
	flags.String("symptoms", "", "Reason for the visit")
	flags.String("notes", "", "Optional notes")
	for _, name := range []string{"specialty", "doctor", "date", "slot", "symptoms"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func filterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("status", "", "Only this status")
	flags.String("doctor", "", "Only this doctor")
	flags.String("patient", "", "Only this patient")
	flags.String("from", "", "First date, YYYY-MM-DD")
	flags.String("to", "", "Last date, YYYY-MM-DD")
}

func readFilter(cmd *cobra.Command) (appointment.Filter, error) {
	flags := cmd.Flags()
	status, _ := flags.GetString("status")
	rawDoctor, _ := flags.GetString("doctor")
	rawPatient, _ := flags.GetString("patient")
	from, _ := flags.GetString("from")
	to, _ := flags.GetString("to")

	f := appointment.Filter{
		Status:   appointment.Status(strings.ToUpper(status)),
		DateFrom: from,
		DateTo:   to,
	}
	var err error
	if f.DoctorID, err = optionalID("doctor", rawDoctor); err != nil {
		return f, err
	}
	if f.PatientID, err = optionalID("patient", rawPatient); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func (a *app) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List appointments with conflict markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFilter(cmd)
			if err != nil {
				return err
			}

			view := console.NewView(a.client(), console.WithFilter(f))
			if err := view.Refresh(cmd.Context()); err != nil {
				return err
			}
			rows := view.Rows()
			if a.jsonOutput() {
				return a.printJSON(rows)
			}

			tw := a.table("ID", "DATE", "TIME", "DOCTOR", "PATIENT", "STATUS", "CONFLICT")
			for _, r := range rows {
				conflict := ""
				if r.Conflict {
					conflict = "yes"
				}
				ap := r.Appointment
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					ap.ID, ap.AppointmentDate, ap.AppointmentTime, ap.DoctorID, ap.PatientID, r.Label, conflict)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d appointments, %d in conflict\n", len(rows), view.ConflictCount())
			return nil
		},
	}
	filterFlags(cmd)
	return cmd
}

func (a *app) conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List pairs of active appointments sharing doctor, date and time",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFilter(cmd)
			if err != nil {
				return err
			}
			pairs, err := a.client().Conflicts(cmd.Context(), f)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(pairs)
			}
			if len(pairs) == 0 {
				fmt.Fprintln(a.out, "no conflicts")
				return nil
			}
			tw := a.table("FIRST", "SECOND")
			for _, p := range pairs {
				fmt.Fprintf(tw, "%s\t%s\n", p.A, p.B)
			}
			return tw.Flush()
		},
	}
	filterFlags(cmd)
	return cmd
}

func (a *app) transitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition APPOINTMENT_ID ACTION",
		Short: "Apply CONFIRMED, COMPLETED, CANCEL or NO_SHOW to one appointment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("appointment", args[0])
			if err != nil {
				return err
			}
			action := appointment.Action(strings.ToUpper(args[1]))
			reason, _ := cmd.Flags().GetString("reason")
			if err := appointment.ValidateTransitionInput(action, reason); err != nil {
				return err
			}

			appt, err := a.client().Transition(cmd.Context(), id, action, reason)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(appt)
			}
			fmt.Fprintf(a.out, "%s is now %s\n", appt.ID, appt.Status.Label())
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Cancellation reason, required for CANCEL")
	return cmd
}

func (a *app) bulkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk ACTION APPOINTMENT_ID...",
		Short: "Apply CONFIRMED, COMPLETED or CANCEL to many appointments",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := appointment.Action(strings.ToUpper(args[0]))
			ids := make([]uuid.UUID, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := parseID("appointment", raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			res, err := a.client().Bulk(cmd.Context(), ids, action)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "%d succeeded, %d failed\n", res.Succeeded, res.Failed)
			for _, f := range res.Failures {
				fmt.Fprintf(a.out, "  %s: %s\n", f.ID, f.Message)
			}
			return nil
		},
	}
}
